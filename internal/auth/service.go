package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-sheetviz/internal/record"
	"github.com/ryanbastic/go-sheetviz/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *record.User
}

// Service registers and authenticates users.
type Service struct {
	users  storage.UserStore
	tokens *TokenIssuer
	logger *slog.Logger
	cost   int
}

func NewService(users storage.UserStore, tokens *TokenIssuer, logger *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
}

// Register creates a user account with the user role.
func (s *Service) Register(ctx context.Context, username, email, password string) (*record.User, error) {
	return s.create(ctx, username, email, password, record.RoleUser)
}

func (s *Service) create(ctx context.Context, username, email, password string, role record.Role) (*record.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be %d to %d characters", ErrInvalidInput, minPasswordLen, maxPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, record.NewUser{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username, "role", u.Role)
	return u, nil
}

// Login checks the password and issues a token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrAccountDisabled
	}

	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Me returns the account behind an identity.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*record.User, error) {
	return s.users.GetUser(ctx, id)
}

// EnsureAdmin creates an admin account unless the username already exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	if _, err := s.create(ctx, username, "", password, record.RoleAdmin); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

// CreateUser creates an account with an explicit role.
func (s *Service) CreateUser(ctx context.Context, username, email, password string, role record.Role) (*record.User, error) {
	if _, ok := roleCapabilities[role]; !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.create(ctx, username, email, password, role)
}
