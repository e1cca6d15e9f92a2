// Package auth implements the credential store: registration, login, bearer
// token issuance and revocation, and email verification.
package auth

import (
	"context"
	"crypto/sha1"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/db"
	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 4
	// MaxPasswordLength is the longest input bcrypt accepts, in bytes.
	MaxPasswordLength = 72
)

var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInvalidVerificationLink = errors.New("invalid verification link")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Config struct {
	Secret   string
	TokenTTL time.Duration
	// AppURL prefixes the verification links handed to the Mailer.
	AppURL string
}

type Service struct {
	users    db.UserRepositoryInterface
	tokens   db.TokenRepositoryInterface
	mailer   Mailer
	secret   []byte
	tokenTTL time.Duration
	appURL   string
	sessions SessionCloser
	logger   *log.Logger
	now      func() time.Time
}

// SessionCloser ends long-lived connections that were opened with a token,
// so revoking the token cuts them off too.
type SessionCloser interface {
	CloseOwner(ownerID uuid.UUID)
}

type Option func(*Service)

func WithSessionCloser(c SessionCloser) Option {
	return func(s *Service) { s.sessions = c }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users db.UserRepositoryInterface, tokens db.TokenRepositoryInterface, mailer Mailer, cfg Config, opts ...Option) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		appURL:   strings.TrimRight(cfg.AppURL, "/"),
		logger:   log.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = 24 * time.Hour
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register creates the user, issues a first token and sends the
// verification link. A failed mail delivery is logged, not returned.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	errs := validation.Errors{}
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	if name == "" {
		errs.Add("name", "The name field is required.")
	}
	switch {
	case email == "":
		errs.Add("email", "The email field is required.")
	case !isValidEmail(email):
		errs.Add("email", "The email must be a valid email address.")
	default:
		_, err := s.users.GetByEmail(ctx, email)
		if err == nil {
			errs.Add("email", "The email has already been taken.")
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, "", fmt.Errorf("look up email: %w", err)
		}
	}
	switch {
	case in.Password == "":
		errs.Add("password", "The password field is required.")
	case len(in.Password) < MinPasswordLength:
		errs.Add("password", fmt.Sprintf("The password must be at least %d characters.", MinPasswordLength))
	case len(in.Password) > MaxPasswordLength:
		errs.Add("password", fmt.Sprintf("The password may not be greater than %d characters.", MaxPasswordLength))
	}
	switch {
	case in.ConfirmPassword == "":
		errs.Add("c_password", "The c password field is required.")
	case in.ConfirmPassword != in.Password:
		errs.Add("c_password", "The c password and password must match.")
	}
	if err := errs.Err(); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueToken(ctx, user, "register")
	if err != nil {
		return nil, "", err
	}

	s.sendVerification(ctx, user)
	s.logger.Info("user registered", "user", user.ID, "email", user.Email)
	return user, token, nil
}

// Login checks the password and issues a new token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("login for unknown email", "email", email)
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("look up email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("login with wrong password", "user", user.ID)
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(ctx, user, "login")
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user", user.ID)
	return user, token, nil
}

// Logout revokes every token issued to the user and closes its live sessions.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	n, err := s.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if s.sessions != nil {
		s.sessions.CloseOwner(userID)
	}
	s.logger.Info("user logged out", "user", userID, "revoked", n)
	return nil
}

// VerifyEmail marks the user's email as verified. It reports whether the
// address had already been verified.
func (s *Service) VerifyEmail(ctx context.Context, id, hash string) (alreadyVerified bool, err error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return false, ErrInvalidVerificationLink
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrInvalidVerificationLink
	}
	if err != nil {
		return false, fmt.Errorf("get user %s: %w", userID, err)
	}
	if subtle.ConstantTimeCompare([]byte(hash), []byte(VerificationHash(user.Email))) != 1 {
		return false, ErrInvalidVerificationLink
	}
	if user.EmailVerifiedAt != nil {
		return true, nil
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID, s.now()); err != nil {
		return false, fmt.Errorf("verify user %s: %w", user.ID, err)
	}
	s.logger.Info("email verified", "user", user.ID)
	return false, nil
}

// ResendVerification sends a fresh link to an unverified address. It
// reports whether the address was already verified instead.
func (s *Service) ResendVerification(ctx context.Context, email string) (alreadyVerified bool, err error) {
	email = strings.TrimSpace(email)
	errs := validation.Errors{}
	switch {
	case email == "":
		errs.Add("email", "The email field is required.")
	case !isValidEmail(email):
		errs.Add("email", "The email must be a valid email address.")
	}
	if err := errs.Err(); err != nil {
		return false, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		errs.Add("email", "The selected email is invalid.")
		return false, errs
	}
	if err != nil {
		return false, fmt.Errorf("look up email: %w", err)
	}
	if user.EmailVerifiedAt != nil {
		return true, nil
	}
	s.sendVerification(ctx, user)
	return false, nil
}

// User returns the user with the given id.
func (s *Service) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return user, nil
}

// VerificationHash is the hex SHA-1 of the email, the last path segment of
// a verification link.
func VerificationHash(email string) string {
	sum := sha1.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

func (s *Service) VerificationURL(user *models.User) string {
	return fmt.Sprintf("%s/api/email/verify/%s/%s", s.appURL, user.ID, VerificationHash(user.Email))
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendVerification(ctx, user, s.VerificationURL(user)); err != nil {
		s.logger.Error("send verification mail", "user", user.ID, "err", err)
	}
}

func isValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
