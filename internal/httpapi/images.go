package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendly/internal/auth"
	"attendly/internal/cloudinary"
	"attendly/internal/errs"
	"attendly/internal/faceclient"
	"attendly/internal/jobs"
)

// imageRequest carries either a hosted image URL or an inline data URL.
type imageRequest struct {
	ImageURL string `json:"imageUrl"`
	Image    string `json:"image"`
}

// resolve returns a URL the face service can fetch, uploading inline images first.
func (s *Server) resolve(ctx context.Context, req imageRequest) (string, error) {
	data := req.Image
	if data == "" && cloudinary.IsDataURL(req.ImageURL) {
		data = req.ImageURL
	}
	if data == "" {
		if req.ImageURL == "" {
			return "", errs.ErrImageRequired
		}
		return req.ImageURL, nil
	}
	if s.Images == nil {
		return "", errs.ErrImageStorageDisabled
	}
	res, err := s.Images.UploadDataURL(ctx, data)
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

// upload stores a multipart file or a JSON data URL and returns its hosted URL.
func (s *Server) upload(c *gin.Context) {
	if s.Images == nil {
		s.fail(c, errs.ErrImageStorageDisabled)
		return
	}

	var (
		res *cloudinary.UploadResult
		err error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		res, err = s.Images.UploadBytes(c.Request.Context(), data, header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil || !cloudinary.IsDataURL(body.Data) {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"data": "<base64 data URL>"}`})
			return
		}
		res, err = s.Images.UploadDataURL(c.Request.Context(), body.Data)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       res.SecureURL,
		"public_id": res.PublicID,
		"width":     res.Width,
		"height":    res.Height,
		"bytes":     res.Bytes,
	})
}

// enrollFace registers the caller's face and stores the returned embedding.
func (s *Server) enrollFace(c *gin.Context) {
	var req imageRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	u := auth.CurrentUser(c)

	url, err := s.resolve(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	embedding, err := s.Faces.Register(ctx, faceclient.RegisterInput{
		RegNo:    u.RegNo,
		Email:    u.Email,
		Token:    strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")),
		ImageURL: url,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Users.SetFaceprint(ctx, u.ID, embedding); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Face registered", "imageUrl": url})
}

// checkin queues a face check-in. The worker identifies the face and records attendance.
func (s *Server) checkin(c *gin.Context) {
	var req imageRequest
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	url, err := s.resolve(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	msg, err := jobs.NewCheckin(url, s.now(), auth.CurrentUser(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Jobs.Publish(ctx, msg); err != nil {
		s.log.Error("queue checkin failed", zap.String("job_id", msg.ID), zap.Error(err))
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "jobId": msg.ID})
}
