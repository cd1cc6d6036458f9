package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendly/internal/announcement"
	"attendly/internal/auth"
	"attendly/internal/errs"
	"attendly/internal/holiday"
	"attendly/internal/schedule"
)

func (s *Server) createSchedule(c *gin.Context) {
	var in schedule.Input
	if !bind(c, &in) {
		return
	}
	sc, err := s.Schedules.Create(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, sc)
}

// listSchedules filters by the optional semester, batch and section query parameters.
func (s *Server) listSchedules(c *gin.Context) {
	f, err := scheduleFilter(c.Query("semester"), c.Query("batch"), c.Query("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeSchedules(c, f)
}

func (s *Server) findSchedules(c *gin.Context) {
	f, err := scheduleFilter(c.Param("semester"), c.Param("batch"), c.Param("section"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.writeSchedules(c, f)
}

func (s *Server) writeSchedules(c *gin.Context, f schedule.Filter) {
	list, err := s.Schedules.List(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func scheduleFilter(semester, batch, section string) (schedule.Filter, error) {
	f := schedule.Filter{Semester: semester}
	var err error
	if batch != "" {
		if f.Batch, err = strconv.Atoi(batch); err != nil {
			return f, errs.Invalid("batch must be a number")
		}
	}
	if section != "" {
		if f.Section, err = strconv.Atoi(section); err != nil {
			return f, errs.Invalid("section must be a number")
		}
	}
	return f, nil
}

func (s *Server) getSchedule(c *gin.Context) {
	sc, err := s.Schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, sc)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var in schedule.Input
	if !bind(c, &in) {
		return
	}
	sc, err := s.Schedules.Update(c.Request.Context(), auth.CurrentUser(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, sc)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.Schedules.Delete(c.Request.Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Schedule deleted"})
}

func (s *Server) createHoliday(c *gin.Context) {
	var in holiday.Input
	if !bind(c, &in) {
		return
	}
	h, err := s.Holidays.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, h)
}

func (s *Server) listHolidays(c *gin.Context) {
	year := 0
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(c, errs.Invalid("year must be a number"))
			return
		}
		year = y
	}
	list, err := s.Holidays.List(c.Request.Context(), year)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) getHoliday(c *gin.Context) {
	h, err := s.Holidays.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, h)
}

func (s *Server) updateHoliday(c *gin.Context) {
	var in holiday.UpdateInput
	if !bind(c, &in) {
		return
	}
	h, err := s.Holidays.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, h)
}

func (s *Server) deleteHoliday(c *gin.Context) {
	if err := s.Holidays.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Holiday deleted"})
}

// announcementRequest rejects unknown target roles before they reach the service.
type announcementRequest struct {
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	TargetRoles *[]string `json:"targetRoles" binding:"omitempty,dive,role"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Server) createAnnouncement(c *gin.Context) {
	var req announcementRequest
	if !bind(c, &req) {
		return
	}
	in := announcement.Input{Title: deref(req.Title), Content: deref(req.Content)}
	if req.TargetRoles != nil {
		in.TargetRoles = *req.TargetRoles
	}
	a, err := s.Announcements.Create(c.Request.Context(), auth.CurrentUser(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

func (s *Server) listAnnouncements(c *gin.Context) {
	list, err := s.Announcements.List(c.Request.Context(), auth.CurrentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (s *Server) getAnnouncement(c *gin.Context) {
	a, err := s.Announcements.Get(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (s *Server) updateAnnouncement(c *gin.Context) {
	var req announcementRequest
	if !bind(c, &req) {
		return
	}
	in := announcement.UpdateInput{Title: req.Title, Content: req.Content, TargetRoles: req.TargetRoles}
	a, err := s.Announcements.Update(c.Request.Context(), auth.CurrentUser(c), c.Param("id"), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

func (s *Server) deleteAnnouncement(c *gin.Context) {
	if err := s.Announcements.Delete(c.Request.Context(), auth.CurrentUser(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Announcement deleted"})
}

func (s *Server) readAnnouncement(c *gin.Context) {
	a, err := s.Announcements.MarkRead(c.Request.Context(), auth.CurrentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}
