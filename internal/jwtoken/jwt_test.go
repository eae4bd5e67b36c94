package jwtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "presenza/pkg/domain-errors"
)

func TestValidateToken(t *testing.T) {
	svc := New("test-signing-key", "presenza-test")

	t.Run("valid token round-trips claims", func(t *testing.T) {
		token, err := svc.GenerateToken("op-1", "conf-1", time.Minute)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "op-1", claims.OperatorID)
		assert.Equal(t, "conf-1", claims.ConferenceID)
	})

	t.Run("expired token is unauthorized", func(t *testing.T) {
		token, err := svc.GenerateToken("op-1", "conf-1", -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("token signed with a different key is rejected", func(t *testing.T) {
		other := New("other-key", "presenza-test")
		token, err := other.GenerateToken("op-1", "conf-1", time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := svc.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}
