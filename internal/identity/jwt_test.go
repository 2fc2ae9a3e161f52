package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
)

const testAddr = id.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-signing-key", "chaintrail-test")

	token, err := svc.GenerateToken(testAddr, id.RoleRetailer, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testAddr, claims.Address)
	assert.Equal(t, id.RoleRetailer, claims.Role)
}

func TestTokenWithoutRole(t *testing.T) {
	svc := NewService("test-signing-key", "chaintrail-test")

	token, err := svc.GenerateToken(testAddr, id.RoleUnknown, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testAddr, claims.Address)
	assert.Equal(t, id.RoleUnknown, claims.Role)
}

func TestValidateRejections(t *testing.T) {
	svc := NewService("test-signing-key", "chaintrail-test")

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.GenerateToken(testAddr, id.RoleConsumer, -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewService("different-key", "chaintrail-test")
		token, err := other.GenerateToken(testAddr, id.RoleConsumer, time.Hour)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.jwt")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
