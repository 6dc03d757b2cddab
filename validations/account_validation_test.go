package validations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
)

func TestValidateLogin(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, ValidateLogin(ctx, domain.LoginRequest{Username: "admin", Password: "x"}))
	assert.IsType(t, pkgError.ValidationError(""), ValidateLogin(ctx, domain.LoginRequest{Username: "admin"}))
}

func TestValidateCreateUser(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "clinic.front", Password: "longenough", Role: "user"}))
	assert.NoError(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "boss", Password: "longenough", Role: "ADMIN"}))

	assert.Error(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "ab", Password: "longenough"}))
	assert.Error(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "has space", Password: "longenough"}))
	assert.Error(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "valid", Password: "short"}))
	assert.Error(t, ValidateCreateUser(ctx, domain.CreateUserRequest{Username: "valid", Password: "longenough", Role: "root"}))
}
