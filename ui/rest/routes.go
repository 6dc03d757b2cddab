package rest

import (
	"github.com/gofiber/fiber/v2"

	accountApp "github.com/menofreact/whatsapp-sending-engine/accounts/application"
	"github.com/menofreact/whatsapp-sending-engine/pkg/msgworker"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest/middleware"
)

// Routes groups every handler mounted under the API prefix
type Routes struct {
	Accounts *accountApp.AuthService
	Sessions SessionManager
	Queue    Queue
	Admin    Admin
	Health   Health
	Pool     *msgworker.Pool
}

// RegisterRoutes mounts the public routes and returns the authenticated group
// so callers can attach more protected routes (websocket).
func RegisterRoutes(api fiber.Router, r Routes) fiber.Router {
	InitRestHealth(api, r.Health)
	InitRestAuth(api, r.Accounts)

	protected := api.Group("", middleware.Auth(r.Accounts))
	InitRestSession(protected, r.Sessions)
	InitRestQueue(protected, r.Queue)

	admin := protected.Group("/admin", middleware.RequireAdmin())
	InitRestAdmin(admin, r.Admin)
	InitRestWorkerPool(admin, r.Pool)

	return protected
}
