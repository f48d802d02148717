package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// ErrInvalidToken covers every credential failure: malformed, expired, wrong
// signature, or a subject that no longer resolves to a user. Callers treat
// all of them the same way, so no finer taxonomy is exposed.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns an opaque credential token into an authenticated user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (models.User, error)
}

// JWTVerifier validates HS256 tokens whose subject claim is the username,
// then resolves the account through the user repository.
type JWTVerifier struct {
	secret []byte
	users  repositories.UserRepository
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret string, users repositories.UserRepository) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), users: users}
}

// Verify parses and validates the token and loads the subject's account.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (models.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.User{}, ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return models.User{}, ErrInvalidToken
	}

	user, err := v.users.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.User{}, ErrInvalidToken
		}
		return models.User{}, err
	}
	return user, nil
}
