package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/pdf-gateway/internal/api/dto"
	"github.com/cuongbtq/pdf-gateway/internal/config"
	"github.com/cuongbtq/pdf-gateway/shared/objectstore"
	"github.com/gin-gonic/gin"
)

const (
	uploadField = "file"
	// multipart framing allowance on top of the plan's file size limit
	formOverhead = 1 << 20
)

// FileHandler stores input files for later tool runs
type FileHandler struct {
	logger *slog.Logger
	store  objectstore.Store
	plans  func(name string) config.PlanConfig
}

func NewFileHandler(deps *Dependencies) *FileHandler {
	return &FileHandler{
		logger: deps.Logger,
		store:  deps.Store,
		plans:  deps.Plans,
	}
}

// UploadFile handles POST /api/v1/files
func (h *FileHandler) UploadFile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	maxBytes := h.plans(p.Plan).MaxUploadBytes
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+formOverhead)
	}

	header, err := c.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "file exceeds the upload limit of your plan",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "multipart field \"file\" is required",
		})
		return
	}

	if maxBytes > 0 && header.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "file exceeds the upload limit of your plan",
		})
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, h.logger, err, "Failed to read upload")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		respondError(c, h.logger, err, "Failed to read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	objectPath := objectstore.UploadPath(p.UserID, header.Filename)
	if err := h.store.Upload(c.Request.Context(), objectPath, data, contentType); err != nil {
		h.logger.Error("Failed to store upload",
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to store file",
		})
		return
	}

	h.logger.Info("File uploaded",
		slog.String("user_id", p.UserID),
		slog.String("path", objectPath),
		slog.Int("size", len(data)),
	)

	c.JSON(http.StatusCreated, dto.FileUploadResponse{
		Path:        objectPath,
		Filename:    objectstore.BaseName(objectPath),
		ContentType: contentType,
		Size:        len(data),
	})
}
