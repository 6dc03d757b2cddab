package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
	"github.com/menofreact/whatsapp-sending-engine/accounts/repository"
	"github.com/menofreact/whatsapp-sending-engine/accounts/security"
	pkgError "github.com/menofreact/whatsapp-sending-engine/pkg/error"
)

func newService(t *testing.T) (*AuthService, *security.TokenIssuer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewUserGormRepository(db)
	require.NoError(t, repo.InitSchema(context.Background()))

	tokens := security.NewTokenIssuer("test-secret", time.Hour)
	return NewAuthService(repo, tokens), tokens
}

func TestSeedAdmin_OnlyOnEmptyTable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.SeedAdmin(ctx, "admin", "")
	require.NoError(t, err)
	assert.False(t, created, "no password, no seed")

	created, err = svc.SeedAdmin(ctx, "admin", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.SeedAdmin(ctx, "admin2", "s3cret-pass")
	require.NoError(t, err)
	assert.False(t, created)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
}

func TestLogin(t *testing.T) {
	svc, tokens := newService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, domain.CreateUserRequest{Username: "front", Password: "password1", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, user.Role)

	res, err := svc.Login(ctx, "front", "password1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, res.UserID)
	assert.Equal(t, domain.RoleOperator, res.Role)

	claims, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	validated, err := svc.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, "front", validated.Username)

	_, err = svc.Login(ctx, "front", "wrong")
	assert.IsType(t, pkgError.AuthError(""), err)
	_, err = svc.Login(ctx, "ghost", "password1")
	assert.IsType(t, pkgError.AuthError(""), err)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, domain.CreateUserRequest{Username: "front", Password: "password1"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{Username: "front", Password: "password2"})
	assert.IsType(t, pkgError.ValidationError(""), err)
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ValidateToken(ctx, "garbage")
	assert.IsType(t, pkgError.AuthError(""), err)

	other := security.NewTokenIssuer("other-secret", time.Hour)
	forged, err := other.Generate(domain.NewUser("x", "", domain.RoleAdmin))
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, forged)
	assert.IsType(t, pkgError.AuthError(""), err)
}

func TestTenantIDs(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a, _ := svc.CreateUser(ctx, domain.CreateUserRequest{Username: "aaa", Password: "password1"})
	b, _ := svc.CreateUser(ctx, domain.CreateUserRequest{Username: "bbb", Password: "password1"})

	ids, err := svc.TenantIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}
