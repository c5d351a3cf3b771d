package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// Service is the identity provider: it turns credentials into sessions and
// sessions back into verified identities.
type Service struct {
	users    UserRepository
	sessions SessionStore
}

func NewService(users UserRepository, sessions SessionStore) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
	}
}

// Login verifies the password against the stored bcrypt hash and issues a
// session token. Unknown accounts and bad passwords are indistinguishable to
// the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Identity, error) {
	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	ident := Identity{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
	}

	token, err := s.sessions.Create(ctx, ident)
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	return token, &ident, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve maps a bearer token back to the identity it was issued for.
func (s *Service) Resolve(ctx context.Context, token string) (*Identity, error) {
	return s.sessions.Get(ctx, token)
}

// ListAgents backs the admin agent-review page.
func (s *Service) ListAgents(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.ListAgents(ctx, limit, offset)
}
