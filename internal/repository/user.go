package repository

import (
	"context"
	"errors"

	"user-portal/internal/domain"
)

var (
	// ErrNotFound indicates no user matches the given identifier.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateIdentity indicates the email or username is already taken.
	ErrDuplicateIdentity = errors.New("email or username already registered")
)

// UserUpdate carries the mutable fields of a user; nil means leave unchanged.
type UserUpdate struct {
	Username     *string
	Email        *string
	Role         *domain.Role
	PasswordHash *string
}

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*domain.User, error)
	Delete(ctx context.Context, id string) error
	TouchLastActive(ctx context.Context, id string) error
	CountByRole(ctx context.Context, role domain.Role) (int64, error)
}
