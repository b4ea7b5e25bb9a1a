package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ikpa/internal/apperr"
	"ikpa/internal/core"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores bytes past 72.
	MaxPasswordLength = 72
)

// HashPassword hashes pw with bcrypt at the default cost.
func HashPassword(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether pw matches hash.
func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type UserStore interface {
	CreateUser(ctx context.Context, u *core.User) error
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
}

type RegisterRequest struct {
	Email    string        `json:"email"`
	Name     string        `json:"name"`
	Password string        `json:"password"`
	Currency core.Currency `json:"currency"`
	Country  string        `json:"country"`
}

type Service struct {
	users  UserStore
	tokens *Tokens
	now    func() time.Time
}

func NewService(users UserStore, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, now: time.Now}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (core.User, Token, error) {
	if req.Currency == "" {
		req.Currency = core.NGN
	}
	u := core.User{
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Name:      strings.TrimSpace(req.Name),
		Currency:  req.Currency,
		Country:   strings.ToUpper(strings.TrimSpace(req.Country)),
		CreatedAt: s.now(),
	}
	if err := u.Validate(); err != nil {
		return core.User{}, Token{}, apperr.Validation(err.Error())
	}
	if n := len(req.Password); n < MinPasswordLength || n > MaxPasswordLength {
		return core.User{}, Token{}, apperr.Validation("password must be between 8 and 72 characters")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return core.User{}, Token{}, err
	}
	u.PasswordHash = hash

	if err := s.users.CreateUser(ctx, &u); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return core.User{}, Token{}, apperr.Conflict("email is already registered")
		}
		return core.User{}, Token{}, err
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return core.User{}, Token{}, err
	}
	slog.InfoContext(ctx, "User registered", "component", "auth", "user_id", u.ID)
	return u, tok, nil
}

// Login checks credentials. Unknown emails and wrong passwords get the same
// error.
func (s *Service) Login(ctx context.Context, email, password string) (core.User, Token, error) {
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, Token{}, invalid
	}
	if err != nil {
		return core.User{}, Token{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		slog.WarnContext(ctx, "Login failed", "component", "auth", "user_id", u.ID)
		return core.User{}, Token{}, invalid
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return core.User{}, Token{}, err
	}
	return u, tok, nil
}
