package rest

import (
	"github.com/gofiber/fiber/v2"

	sessionDomain "github.com/menofreact/whatsapp-sending-engine/session/domain"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
	"github.com/menofreact/whatsapp-sending-engine/ui/rest/middleware"
)

type Session struct {
	Manager SessionManager
}

func InitRestSession(app fiber.Router, manager SessionManager) Session {
	rest := Session{Manager: manager}
	app.Get("/status", rest.Status)
	app.Post("/start", rest.Start)
	app.Get("/qr", rest.QR)
	app.Post("/logout", rest.Logout)
	app.Post("/restart", rest.Restart)
	return rest
}

func (handler *Session) Status(c *fiber.Ctx) error {
	state := handler.Manager.Status(middleware.TenantID(c))
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session status",
		Results: StatusResponse{
			Status:  state,
			QRReady: state == sessionDomain.StateScanQRCode,
		},
	})
}

func (handler *Session) Start(c *fiber.Ctx) error {
	tenantID := middleware.TenantID(c)
	_, err := handler.Manager.GetOrCreate(c.UserContext(), tenantID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session initializing",
		Results: StatusResponse{Status: handler.Manager.Status(tenantID)},
	})
}

func (handler *Session) QR(c *fiber.Ctx) error {
	png, err := handler.Manager.QR(middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scan the QR code with WhatsApp",
		Results: QRResponse{QR: "data:image/png;base64," + png},
	})
}

func (handler *Session) Logout(c *fiber.Ctx) error {
	err := handler.Manager.Logout(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Logged out, a new QR code will be issued",
	})
}

func (handler *Session) Restart(c *fiber.Ctx) error {
	err := handler.Manager.DestroyAndReinitialize(c.UserContext(), middleware.TenantID(c))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session restarted with fresh auth",
	})
}
