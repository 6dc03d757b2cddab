package validations

import (
	"context"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]+$`)

func ValidateLogin(ctx context.Context, request domain.LoginRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Username, validation.Required),
		validation.Field(&request.Password, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidateCreateUser(ctx context.Context, request domain.CreateUserRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Username, validation.Required, validation.Length(3, 64), validation.Match(usernamePattern)),
		validation.Field(&request.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&request.Role, validation.In("", "admin", "user", "ADMIN", "OPERATOR", "operator")),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}
