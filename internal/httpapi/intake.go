package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"attendguard/internal/attendance"
	"attendguard/internal/auth"
	"attendguard/internal/cloudinary"
	"attendguard/internal/queue"
	"attendguard/internal/session"
)

// DeviceStore persists capture devices and their refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, deviceID, token string) error
}

// Uploader stores frame images and returns their public URL.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
	UploadDataURL(ctx context.Context, data string) (*cloudinary.UploadResult, error)
}

// Intake serves capture devices: registration, frame submission and
// attendance history. It never holds session state.
type Intake struct {
	Devices  DeviceStore
	Records  attendance.Store
	Issuer   auth.Issuer
	Uploader Uploader
	Frames   queue.Queue
	Location *time.Location
	Checks   []Check
	Now      func() time.Time
}

func (h *Intake) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register mounts the intake routes on r.
func (h *Intake) Register(r *gin.Engine) {
	r.GET("/healthz", healthHandler(h.Checks))
	r.POST("/v1/devices/register", h.registerDevice)
	r.POST("/v1/devices/refresh", h.refresh)

	authed := r.Group("/v1", auth.DeviceAuth(h.Issuer))
	authed.POST("/frames", h.submitFrame)
	authed.GET("/attendance", h.listAttendance)
	authed.GET("/attendance/daily", h.dailyTotals)
}

func (h *Intake) issue(c *gin.Context, deviceID string, status int) {
	tokens, err := h.Issuer.Issue(deviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.Devices.SaveRefreshToken(c.Request.Context(), deviceID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("save refresh token for %s: %v", deviceID, err)
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Intake) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Devices.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.issue(c, req.DeviceID, http.StatusCreated)
}

func (h *Intake) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, err := h.Issuer.Parse(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err := h.Devices.RotateRefreshToken(c.Request.Context(), claims.DeviceID, req.RefreshToken); err != nil {
		if errors.Is(err, attendance.ErrTokenRevoked) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token rotation failed"})
		return
	}
	h.issue(c, claims.DeviceID, http.StatusOK)
}

// submitFrame accepts a multipart file, a base64 data URL, or an already
// hosted image URL, and queues it for recognition.
func (h *Intake) submitFrame(c *gin.Context) {
	ctx := c.Request.Context()
	var imageURL string

	if strings.Contains(c.ContentType(), "multipart/form-data") {
		if h.Uploader == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
		res, err := h.Uploader.UploadBytes(ctx, data, header.Filename)
		if err != nil {
			log.Printf("frame upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}
		imageURL = res.SecureURL
	} else {
		var body struct {
			Data     string `json:"data"`
			ImageURL string `json:"image_url"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || (body.Data == "" && body.ImageURL == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "provide a file, {\"data\": \"<base64 data URL>\"} or {\"image_url\": \"...\"}"})
			return
		}
		imageURL = body.ImageURL
		if body.Data != "" {
			if h.Uploader == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
				return
			}
			res, err := h.Uploader.UploadDataURL(ctx, body.Data)
			if err != nil {
				log.Printf("frame upload failed: %v", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
				return
			}
			imageURL = res.SecureURL
		}
	}

	frame := attendance.Frame{
		ID:         uuid.NewString(),
		DeviceID:   auth.DeviceID(c),
		ImageURL:   imageURL,
		CapturedAt: h.now().UTC(),
	}
	msg, err := queue.Encode(queue.TypeFrame, frame)
	if err == nil {
		err = h.Frames.Publish(ctx, msg)
	}
	if err != nil {
		log.Printf("queue publish failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"frame_id": frame.ID, "image_url": frame.ImageURL})
}

func (h *Intake) listAttendance(c *gin.Context) {
	f := attendance.Filter{
		Date:       c.Query("date"),
		IdentityID: c.Query("identity_id"),
		Limit:      50,
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	recs, err := h.Records.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []session.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Intake) dailyTotals(c *gin.Context) {
	day := c.Query("date")
	if day == "" {
		loc := h.Location
		if loc == nil {
			loc = time.Local
		}
		day = h.now().In(loc).Format(session.DateLayout)
	}
	if _, err := time.Parse(session.DateLayout, day); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	recs, err := h.Records.List(c.Request.Context(), attendance.Filter{Date: day})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	totals := attendance.Totals(recs)
	if totals == nil {
		totals = []attendance.DailyTotal{}
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "totals": totals})
}
