// Package auth issues and validates session tokens for the HTTP
// layer. Tokens are HS256 JWTs tracked in a Redis allowlist so logout
// revokes them immediately; without Redis the JWT expiry alone bounds
// the session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/citylinebank/backend/internal/models"
)

var ErrInvalidSession = errors.New("invalid or expired session")

type Sessions struct {
	redis *redis.Client
}

func NewSessions(redisClient *redis.Client) *Sessions {
	viper.SetDefault("jwt.expiry_hours", 12)
	return &Sessions{redis: redisClient}
}

func sessionKey(token string) string {
	return "session:" + token
}

func (s *Sessions) expiry() time.Duration {
	return time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
}

// Issue creates a session token carrying the caller's identity.
func (s *Sessions) Issue(ctx context.Context, identity models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"account_no": identity.AccountNo,
		"role":       identity.Role,
		"exp":        time.Now().Add(s.expiry()).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(viper.GetString("jwt.secret_key")))
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, sessionKey(token), identity.AccountNo, s.expiry()).Err(); err != nil {
			return "", err
		}
	}
	return token, nil
}

// Validate checks the token signature, expiry, and allowlist, and
// returns the identity it carries.
func (s *Sessions) Validate(ctx context.Context, tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidSession
	}
	accountNo, _ := claims["account_no"].(string)
	role, _ := claims["role"].(string)
	if accountNo == "" || role == "" {
		return models.Identity{}, ErrInvalidSession
	}

	if s.redis != nil {
		if err := s.redis.Get(ctx, sessionKey(tokenString)).Err(); err != nil {
			return models.Identity{}, ErrInvalidSession
		}
	}
	return models.Identity{AccountNo: accountNo, Role: role}, nil
}

// Revoke drops the token from the allowlist.
func (s *Sessions) Revoke(ctx context.Context, tokenString string) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, sessionKey(tokenString))
}
