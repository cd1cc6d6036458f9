package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"attendly/internal/errs"
	"attendly/internal/model"
)

var registerOnce sync.Once

// registerValidators adds the custom binding tags used by request bodies.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			_, err := model.ParseRole(fl.Field().String())
			return err == nil
		})
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	status, msg := errs.Status(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"status": "success", "data": data})
}

// bind decodes the JSON body into dst. On failure it writes a 400 and returns false.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return false
	}
	return true
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required", "required_without":
			return field + " is required"
		case "role":
			return "Invalid role: " + fmt.Sprint(fe.Value())
		case "email":
			return field + " must be a valid email"
		default:
			return field + " is invalid"
		}
	}
	return "Invalid request body"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// monthParams reads :month and :year path parameters.
func monthParams(c *gin.Context) (int, int, error) {
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return 0, 0, errs.ErrInvalidDate
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return 0, 0, errs.ErrInvalidDate
	}
	return month, year, nil
}
