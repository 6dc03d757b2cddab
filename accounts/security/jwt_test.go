package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menofreact/whatsapp-sending-engine/accounts/domain"
)

func TestToken_RoundTripAndExpiry(t *testing.T) {
	user := domain.NewUser("front", "", domain.RoleOperator)

	issuer := NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Generate(user)
	require.NoError(t, err)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, domain.RoleOperator, claims.Role)

	expired := &TokenIssuer{secret: []byte("secret"), ttl: -time.Minute}
	old, err := expired.Generate(user)
	require.NoError(t, err)
	_, err = issuer.Validate(old)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("password1")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("password1", hash))
	assert.False(t, CheckPasswordHash("password2", hash))
}
