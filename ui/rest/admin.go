package rest

import (
	"github.com/gofiber/fiber/v2"

	accountApp "github.com/menofreact/whatsapp-sending-engine/accounts/application"
	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	"github.com/menofreact/whatsapp-sending-engine/core/config"
	"github.com/menofreact/whatsapp-sending-engine/pkg/debuglog"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
	"github.com/menofreact/whatsapp-sending-engine/validations"
)

type Admin struct {
	Accounts *accountApp.AuthService
	Sessions SessionManager
	Logs     *debuglog.Ring
}

// InitRestAdmin registers user management and diagnostics on a group that already requires ADMIN
func InitRestAdmin(app fiber.Router, handler Admin) Admin {
	app.Get("/users", handler.ListUsers)
	app.Post("/users", handler.CreateUser)
	app.Get("/sessions", handler.ListSessions)
	app.Get("/logs", handler.RecentLogs)
	app.Get("/settings", handler.Settings)
	return handler
}

func (handler *Admin) ListUsers(c *fiber.Ctx) error {
	users, err := handler.Accounts.ListUsers(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Users",
		Results: users,
	})
}

func (handler *Admin) CreateUser(c *fiber.Ctx) error {
	var request domain.CreateUserRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body"))
	}
	utils.PanicIfNeeded(validations.ValidateCreateUser(c.UserContext(), request))

	user, err := handler.Accounts.CreateUser(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "User created successfully",
		Results: user,
	})
}

func (handler *Admin) ListSessions(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Sessions",
		Results: handler.Sessions.Sessions(c.UserContext()),
	})
}

func (handler *Admin) RecentLogs(c *fiber.Ctx) error {
	lines := []string{}
	if handler.Logs != nil {
		lines = handler.Logs.Lines()
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Recent log lines",
		Results: lines,
	})
}

func (handler *Admin) Settings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Runtime settings",
		Results: config.GetAllSettings(),
	})
}
