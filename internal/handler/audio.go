package handler

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/stemsplit/api/internal/service"
	"github.com/stemsplit/api/pkg/response"
)

// allowedExtensions mirrors what the inference toolchain can decode
var allowedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
	".wma":  true,
	".aac":  true,
	".aiff": true,
}

type AudioHandler struct {
	service   *service.AudioService
	validator *validator.Validate
	maxSize   int64
}

func NewAudioHandler(svc *service.AudioService, v *validator.Validate, maxSizeMB int) *AudioHandler {
	return &AudioHandler{
		service:   svc,
		validator: v,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
	}
}

// Upload handles POST /api/audio
func (h *AudioHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > h.maxSize {
		return response.PayloadTooLarge(c, "File size exceeds upload limit", map[string]interface{}{
			"max_size":  h.maxSize,
			"file_size": file.Size,
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		return response.ValidationError(c, "Unsupported audio format", map[string]interface{}{
			"extension": ext,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.Upload(c.Context(), file.Filename, f)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}
