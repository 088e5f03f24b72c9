package usecase

import (
	"fmt"
	"time"

	"github.com/kdrangari/msgtracker-api/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateSigner issues and checks the OAuth state parameter, a short-lived JWT
// carrying the user id.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl}
}

func (s *StateSigner) Sign(userID string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: APP_JWT_SECRET is not set", apperror.ErrConfiguration)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID,
		"nonce":  uuid.New().String(),
		"exp":    now.Add(s.ttl).Unix(),
		"iat":    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify returns the user id from a valid state.
func (s *StateSigner) Verify(state string) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: APP_JWT_SECRET is not set", apperror.ErrConfiguration)
	}

	token, err := jwt.Parse(state, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid state: %v", apperror.ErrAuthentication, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid state claims", apperror.ErrAuthentication)
	}

	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("%w: state has no user", apperror.ErrAuthentication)
	}
	return userID, nil
}
