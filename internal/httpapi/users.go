package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendly/internal/auth"
	"attendly/internal/errs"
	"attendly/internal/users"
)

func (s *Server) register(c *gin.Context) {
	var in users.RegisterInput
	if !bind(c, &in) {
		return
	}
	sess, err := s.Users.Register(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "token": sess.Token, "user": sess.User})
}

func (s *Server) login(c *gin.Context) {
	var in users.LoginInput
	if !bind(c, &in) {
		return
	}
	sess, err := s.Users.Login(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "token": sess.Token, "user": sess.User})
}

type otpRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp"`
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req otpRequest
	if !bind(c, &req) {
		return
	}
	if req.OTP == "" {
		s.fail(c, errs.ErrInvalidOTP)
		return
	}
	if err := s.Users.VerifyOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Email verified"})
}

func (s *Server) resendOTP(c *gin.Context) {
	var req otpRequest
	if !bind(c, &req) {
		return
	}
	if err := s.Users.ResendOTP(c.Request.Context(), req.Email); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "message": "OTP sent"})
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !bind(c, &req) {
		return
	}
	if err := s.Users.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "If that email exists, a reset link has been sent"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := s.Users.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Password reset successful"})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.Users.Logout(c.Request.Context(), auth.CurrentUser(c).ID); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out"})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.Users.Me(c.Request.Context(), auth.CurrentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (s *Server) updateMe(c *gin.Context) {
	var in users.SelfUpdateInput
	if !bind(c, &in) {
		return
	}
	u, changed, err := s.Users.UpdateSelf(c.Request.Context(), auth.CurrentUser(c).ID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !changed {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "No changes", "data": u})
		return
	}
	ok(c, http.StatusOK, u)
}

func (s *Server) listUsers(c *gin.Context) {
	list, err := s.Users.List(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) addUsers(c *gin.Context) {
	var in users.AddUsersInput
	if !bind(c, &in) {
		return
	}
	res, err := s.Users.AddUsers(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":       "success",
		"createdCount": res.CreatedCount,
		"skippedCount": res.SkippedCount,
		"createdUsers": res.CreatedUsers,
		"skippedUsers": res.SkippedUsers,
	})
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.Users.Get(c.Request.Context(), auth.CurrentUser(c), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (s *Server) adminUpdateUser(c *gin.Context) {
	var in users.AdminUpdateInput
	if !bind(c, &in) {
		return
	}
	u, err := s.Users.AdminUpdate(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.Users.Delete(c.Request.Context(), auth.CurrentUser(c), c.Param("userId")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "User deleted"})
}

func (s *Server) checkFaceprint(c *gin.Context) {
	has, err := s.Users.HasFaceprint(c.Request.Context(), auth.CurrentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "hasFaceprint": has})
}
