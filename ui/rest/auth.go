package rest

import (
	"github.com/gofiber/fiber/v2"

	accountApp "github.com/menofreact/whatsapp-sending-engine/accounts/application"
	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
	"github.com/menofreact/whatsapp-sending-engine/validations"
)

type Auth struct {
	Service *accountApp.AuthService
}

// InitRestAuth registers the public login route
func InitRestAuth(app fiber.Router, service *accountApp.AuthService) Auth {
	rest := Auth{Service: service}
	app.Post("/auth/login", rest.Login)
	return rest
}

func (handler *Auth) Login(c *fiber.Ctx) error {
	var request domain.LoginRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body"))
	}
	utils.PanicIfNeeded(validations.ValidateLogin(c.UserContext(), request))

	response, err := handler.Service.Login(c.UserContext(), request.Username, request.Password)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Login success",
		Results: response,
	})
}
