package repository

import (
	"context"

	authdomain "github.com/kdrangari/msgtracker-api/internal/auth/domain"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*authdomain.User, error)
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
	// FindOrCreateByEmail returns the user with this email, creating it on first sight.
	FindOrCreateByEmail(ctx context.Context, email string) (*authdomain.User, error)
}
