package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menofreact/whatsapp-sending-engine/pkg/msgworker"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
)

// InitRestWorkerPool exposes the dispatch pool counters
func InitRestWorkerPool(app fiber.Router, pool *msgworker.Pool) {
	app.Get("/workers", func(c *fiber.Ctx) error {
		if pool == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
				Status:  fiber.StatusServiceUnavailable,
				Code:    "SERVICE_UNAVAILABLE",
				Message: "Dispatch worker pool not initialized",
			})
		}
		return c.JSON(utils.ResponseData{
			Status:  200,
			Code:    "SUCCESS",
			Message: "Dispatch worker pool",
			Results: pool.GetStats(),
		})
	})
}
