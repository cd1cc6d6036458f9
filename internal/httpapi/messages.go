package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendly/internal/auth"
)

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) sendMessage(c *gin.Context) {
	var req messageRequest
	if !bind(c, &req) {
		return
	}
	msg, err := s.Chat.Send(c.Request.Context(), auth.CurrentUser(c), c.Param("receiverId"), req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": gin.H{"message": msg}})
}

func (s *Server) inbox(c *gin.Context) {
	list, err := s.Chat.Inbox(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) conversation(c *gin.Context) {
	list, err := s.Chat.Conversation(c.Request.Context(), auth.CurrentUser(c), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) markSeen(c *gin.Context) {
	msg, err := s.Chat.MarkSeen(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, msg)
}

func (s *Server) editMessage(c *gin.Context) {
	var req messageRequest
	if !bind(c, &req) {
		return
	}
	msg, err := s.Chat.Update(c.Request.Context(), auth.CurrentUser(c), c.Param("id"), req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, msg)
}

func (s *Server) deleteMessage(c *gin.Context) {
	if _, err := s.Chat.Delete(c.Request.Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Message deleted"})
}

// serveWS upgrades to a websocket and hands the connection to the chat hub until it closes.
func (s *Server) serveWS(c *gin.Context) {
	user := auth.CurrentUser(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.Hub.Serve(c.Request.Context(), conn, user)
}

func (s *Server) online(c *gin.Context) {
	ids, err := s.Hub.Online(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ids)
}
