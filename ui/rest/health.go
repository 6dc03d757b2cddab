package rest

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/menofreact/whatsapp-sending-engine/infrastructure/valkey"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
)

type Health struct {
	DB     *gorm.DB
	Valkey *valkey.Client
}

type HealthStatus struct {
	Database string `json:"database"`
	Valkey   string `json:"valkey"`
}

// InitRestHealth registers the unauthenticated liveness probe
func InitRestHealth(app fiber.Router, handler Health) Health {
	app.Get("/health", handler.Status)
	return handler
}

func (h *Health) Status(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := HealthStatus{Database: "disabled", Valkey: "disabled"}
	healthy := true

	if h.DB != nil {
		status.Database = "ok"
		sqlDB, err := h.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status.Database = err.Error()
			healthy = false
		}
	}
	if h.Valkey != nil {
		status.Valkey = "ok"
		if err := h.Valkey.Ping(ctx); err != nil {
			status.Valkey = err.Error()
			healthy = false
		}
	}

	code, label := fiber.StatusOK, "SUCCESS"
	if !healthy {
		code, label = fiber.StatusServiceUnavailable, "UNHEALTHY"
	}
	return c.Status(code).JSON(utils.ResponseData{
		Status:  code,
		Code:    label,
		Message: "Health status",
		Results: status,
	})
}
