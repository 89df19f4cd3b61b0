package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	redis *redis.Client
}

func NewHealthHandler(rdb *redis.Client) *HealthHandler {
	return &HealthHandler{redis: rdb}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	redisStatus := "ok"
	if err := h.redis.Ping(c.Context()).Err(); err != nil {
		redisStatus = "unavailable"
	}

	return c.JSON(fiber.Map{
		"status": "ok",
		"redis":  redisStatus,
	})
}
