package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/magic-code-auth/internal/domain/entity"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	// Create inserts u and fills CreatedAt. It returns ErrDuplicateEmail when
	// the email is already taken.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}
