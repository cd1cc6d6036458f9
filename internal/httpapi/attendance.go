package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendly/internal/attendance"
	"attendly/internal/auth"
	"attendly/internal/leave"
)

func (s *Server) markAttendance(c *gin.Context) {
	var in attendance.MarkInput
	if !bind(c, &in) {
		return
	}
	rec, err := s.Attendance.Mark(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, rec)
}

func (s *Server) myAttendance(c *gin.Context) {
	list, err := s.Attendance.ListMine(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) allAttendance(c *gin.Context) {
	list, err := s.Attendance.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) facultyAttendance(c *gin.Context) {
	list, err := s.Attendance.ListForFaculty(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) attendanceByDate(c *gin.Context) {
	list, err := s.Attendance.ByDate(c.Request.Context(), auth.CurrentUser(c), c.Param("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) attendanceByMonth(c *gin.Context) {
	month, year, err := monthParams(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.Attendance.ByMonth(c.Request.Context(), auth.CurrentUser(c), month, year)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) attendanceByUser(c *gin.Context) {
	list, err := s.Attendance.ByUser(c.Request.Context(), auth.CurrentUser(c), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) updateAttendance(c *gin.Context) {
	var in attendance.UpdateInput
	if !bind(c, &in) {
		return
	}
	rec, err := s.Attendance.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

func (s *Server) deleteAttendance(c *gin.Context) {
	if err := s.Attendance.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Attendance deleted"})
}

func (s *Server) createLeave(c *gin.Context) {
	var in leave.Input
	if !bind(c, &in) {
		return
	}
	l, err := s.Leaves.Create(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, l)
}

func (s *Server) myLeaves(c *gin.Context) {
	list, err := s.Leaves.ListMine(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) updateMyLeave(c *gin.Context) {
	var in leave.UpdateInput
	if !bind(c, &in) {
		return
	}
	l, err := s.Leaves.UpdateMine(c.Request.Context(), auth.CurrentUser(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

func (s *Server) deleteMyLeave(c *gin.Context) {
	if err := s.Leaves.DeleteMine(c.Request.Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Leave deleted"})
}

func (s *Server) listLeaves(c *gin.Context) {
	list, err := s.Leaves.List(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) leavesByUser(c *gin.Context) {
	list, err := s.Leaves.ByUser(c.Request.Context(), auth.CurrentUser(c), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) leavesByDate(c *gin.Context) {
	list, err := s.Leaves.ByDate(c.Request.Context(), auth.CurrentUser(c), c.Param("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) leavesByMonth(c *gin.Context) {
	month, year, err := monthParams(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.Leaves.ByMonth(c.Request.Context(), auth.CurrentUser(c), month, year)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) approveLeave(c *gin.Context) {
	l, err := s.Leaves.Approve(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

func (s *Server) rejectLeave(c *gin.Context) {
	l, err := s.Leaves.Reject(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

func (s *Server) getLeave(c *gin.Context) {
	l, err := s.Leaves.Get(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, l)
}

func (s *Server) deleteLeave(c *gin.Context) {
	if err := s.Leaves.Delete(c.Request.Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Leave deleted"})
}
