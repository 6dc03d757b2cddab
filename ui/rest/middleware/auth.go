package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	"github.com/menofreact/whatsapp-sending-engine/pkg/utils"
)

const (
	LocalTenantID = "tenant_id"
	localUsername = "username"
	localRole     = "role"
)

// TokenValidator resolves a bearer token to an active account
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(utils.ResponseData{
		Status:  fiber.StatusUnauthorized,
		Code:    "AUTHENTICATION_FAILED",
		Message: message,
	})
}

// bearerToken reads "Authorization: Bearer <t>", falling back to ?token= for
// websocket upgrades where browsers cannot set headers.
func bearerToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// Auth protects API routes and injects the caller's tenant into Locals
func Auth(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		token := bearerToken(c)
		if token == "" {
			return unauthorized(c, "missing authorization token")
		}

		user, err := validator.ValidateToken(c.UserContext(), token)
		if err != nil {
			return unauthorized(c, err.Error())
		}

		c.Locals(LocalTenantID, user.ID)
		c.Locals(localUsername, user.Username)
		c.Locals(localRole, user.Role)
		return c.Next()
	}
}

// RequireAdmin must run after Auth
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals(localRole).(domain.Role); role != domain.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(utils.ResponseData{
				Status:  fiber.StatusForbidden,
				Code:    "UNAUTHORIZED",
				Message: "insufficient permissions",
			})
		}
		return c.Next()
	}
}

// TenantID returns the tenant set by Auth
func TenantID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalTenantID).(string)
	return id
}

func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(localUsername).(string)
	return name
}
