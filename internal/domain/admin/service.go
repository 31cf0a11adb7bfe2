package admin

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hmis/hmis/internal/platform/apperr"
	"github.com/hmis/hmis/internal/platform/auth"
)

const minPasswordLen = 6

// ErrInvalidCredentials is returned for an unknown email or a wrong password
// alike.
var ErrInvalidCredentials error = &apperr.Error{Kind: apperr.ErrValidation, Msg: "invalid credentials"}

// Service manages staff accounts and issues session tokens.
type Service struct {
	users  UserRepository
	issuer *auth.TokenIssuer
	cost   int
	logger zerolog.Logger
}

func NewService(users UserRepository, issuer *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		users:  users,
		issuer: issuer,
		cost:   bcrypt.DefaultCost,
		logger: logger.With().Str("component", "admin").Logger(),
	}
}

// SetHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) SetHashCost(cost int) {
	s.cost = cost
}

// Register creates a staff account. Role defaults to Operator.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" {
		return nil, apperr.Validation("username", "is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, apperr.Validation("email", "a valid email is required")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperr.Validation("password", "must be at least %d characters long", minPasswordLen)
	}
	if req.Role == "" {
		req.Role = auth.RoleOperator
	}
	if !auth.ValidRole(req.Role) {
		return nil, apperr.Validation("role", "invalid role: %s", req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	u := &User{Username: req.Username, Email: req.Email, PasswordHash: string(hash), Role: req.Role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login checks the credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if apperr.IsNotFound(err) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.issuer.Issue(u.ID.String(), u.Username, u.Role)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// DeleteUser removes an account. An admin cannot delete their own account.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID, actorID string) error {
	if id.String() == actorID {
		return apperr.Validation("id", "cannot delete your own account")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", id.String()).Str("actor", actorID).Msg("user removed")
	return nil
}

// EnsureAdmin registers an Admin account unless one with the same email
// already exists. Used to bootstrap a fresh install.
func (s *Service) EnsureAdmin(ctx context.Context, req RegisterRequest) (*User, bool, error) {
	existing, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err == nil {
		return existing, false, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, false, err
	}
	req.Role = auth.RoleAdmin
	u, err := s.Register(ctx, req)
	return u, err == nil, err
}
