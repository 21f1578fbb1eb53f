package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/citylinebank/backend/internal/models"
)

func TestSessions_IssueValidate(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	defer viper.Set("jwt.secret_key", "")

	identity := models.Identity{AccountNo: "1000001", Role: models.RoleCustomer}

	t.Run("roundtrip without redis", func(t *testing.T) {
		sessions := NewSessions(nil)

		token, err := sessions.Issue(context.Background(), identity)
		assert.NoError(t, err)
		assert.NotEmpty(t, token)

		got, err := sessions.Validate(context.Background(), token)
		assert.NoError(t, err)
		assert.Equal(t, identity, got)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		sessions := NewSessions(nil)

		_, err := sessions.Validate(context.Background(), "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("token signed with another secret is rejected", func(t *testing.T) {
		sessions := NewSessions(nil)

		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"account_no": "1000001",
			"role":       models.RoleAdmin,
			"exp":        time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("other-secret"))
		assert.NoError(t, err)

		_, err = sessions.Validate(context.Background(), forged)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		sessions := NewSessions(nil)

		expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"account_no": "1000001",
			"role":       models.RoleCustomer,
			"exp":        time.Now().Add(-time.Hour).Unix(),
		}).SignedString([]byte("test-secret"))
		assert.NoError(t, err)

		_, err = sessions.Validate(context.Background(), expired)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("token missing from the allowlist is rejected", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		sessions := NewSessions(client)

		mock.Regexp().ExpectSet(`session:.+`, "1000001", sessions.expiry()).SetVal("OK")
		token, err := sessions.Issue(context.Background(), identity)
		assert.NoError(t, err)

		mock.ExpectGet(sessionKey(token)).RedisNil()
		_, err = sessions.Validate(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidSession)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("allowlisted token validates and revocation removes it", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		sessions := NewSessions(client)

		mock.Regexp().ExpectSet(`session:.+`, "1000001", sessions.expiry()).SetVal("OK")
		token, err := sessions.Issue(context.Background(), identity)
		assert.NoError(t, err)

		mock.ExpectGet(sessionKey(token)).SetVal("1000001")
		got, err := sessions.Validate(context.Background(), token)
		assert.NoError(t, err)
		assert.Equal(t, identity, got)

		mock.ExpectDel(sessionKey(token)).SetVal(1)
		sessions.Revoke(context.Background(), token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
