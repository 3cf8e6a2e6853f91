package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"user-portal/internal/auth"
	"user-portal/internal/domain"
	"user-portal/internal/repository"
)

var (
	// ErrInvalidCredentials indicates the email/password pair is incorrect.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSelfDelete indicates an account attempted to delete itself.
	ErrSelfDelete = errors.New("cannot delete own account")
	// ErrValidation indicates missing or malformed input fields.
	ErrValidation = errors.New("invalid input")
)

// CreateUserInput carries the fields needed to create an account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
}

// UpdateUserInput carries optional account mutations; nil means unchanged.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Role     *domain.Role
	Password *string
}

// ReportRow is one line of the account activity report.
type ReportRow struct {
	User         domain.User
	DaysInactive *int
}

// UserService describes account lifecycle and authentication operations.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, actorID string, input CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, actorID, id string) error
	Report(ctx context.Context) ([]ReportRow, error)
	EnsureAdmin(ctx context.Context, username, email, password string) (*domain.User, bool, error)
}

type userService struct {
	users  repository.UserRepository
	logger *logrus.Logger
}

func NewUserService(users repository.UserRepository, logger *logrus.Logger) UserService {
	return &userService{users: users, logger: logger}
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// best effort; a failed timestamp update must not fail the login
	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		s.logger.Warnf("touch last active for %s: %v", user.ID, err)
	}

	return sanitizeUser(user), nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *userService) Create(ctx context.Context, actorID string, input CreateUserInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := normalizeEmail(input.Email)
	password := strings.TrimSpace(input.Password)

	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	role := input.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role", ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedBy:    actorID,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) Update(ctx context.Context, id string, input UpdateUserInput) (*domain.User, error) {
	upd := repository.UserUpdate{}

	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" {
			return nil, fmt.Errorf("%w: username cannot be empty", ErrValidation)
		}
		upd.Username = &username
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email cannot be empty", ErrValidation)
		}
		upd.Email = &email
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role", ErrValidation)
		}
		upd.Role = input.Role
	}
	if input.Password != nil {
		password := strings.TrimSpace(*input.Password)
		if password != "" {
			if len(password) < 8 {
				return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
			}
			// raw passwords never reach storage
			hash, err := auth.HashPassword(password)
			if err != nil {
				return nil, err
			}
			upd.PasswordHash = &hash
		}
	}

	user, err := s.users.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return ErrSelfDelete
	}
	return s.users.Delete(ctx, id)
}

func (s *userService) Report(ctx context.Context) ([]ReportRow, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := make([]ReportRow, len(users))
	for i := range users {
		users[i].PasswordHash = ""
		rows[i] = ReportRow{User: users[i]}
		if users[i].LastActive != nil {
			days := int(now.Sub(*users[i].LastActive).Hours() / 24)
			if days < 0 {
				days = 0
			}
			rows[i].DaysInactive = &days
		}
	}
	return rows, nil
}

// EnsureAdmin creates the initial admin account unless one already exists.
// The second return value reports whether a new account was created.
func (s *userService) EnsureAdmin(ctx context.Context, username, email, password string) (*domain.User, bool, error) {
	count, err := s.users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, nil
	}

	user, err := s.Create(ctx, "", CreateUserInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
