package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nimbusdash/aegis/internal/models"
)

var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Service issues and verifies session tokens. Tokens are HS256 JWTs whose
// claims carry the principal identity, role and active tenant. A claim is
// never patched in place: switching tenant means issuing a new token.
type Service struct {
	secret   []byte
	duration time.Duration
}

func NewService(secret string, duration time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		duration: duration,
	}
}

// Duration returns the configured token lifetime.
func (s *Service) Duration() time.Duration {
	return s.duration
}

// Issue mints a session token for the user scoped to activeTenantID.
func (s *Service) Issue(user *models.User, activeTenantID string) (string, error) {
	now := time.Now()
	claims := models.Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		TenantID: activeTenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and returns the decoded claims.
// Failures map onto the token error taxonomy: ErrTokenMissing for an empty
// token, ErrTokenExpired when past exp, ErrTokenInvalid for everything else.
func (s *Service) Verify(tokenString string) (*models.Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	claims := &models.Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
