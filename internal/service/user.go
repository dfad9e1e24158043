// Package service contains the business rules of EventHub.
//
//	Handler (HTTP) → Service (rules, ordering, validation) → Repository (storage)
//	                         ↘ auth.TokenService / auth.PasswordService / media.Store
//
// Services accept plain Go values, never *http.Request, and return apperror
// values the handler layer can map to status codes. They depend on the
// repository interfaces, so tests inject in-memory fakes and cmd/server picks
// SQLite or MongoDB.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/eventhub/internal/apperror"
	"github.com/sakif/eventhub/internal/auth"
	"github.com/sakif/eventhub/internal/model"
	"github.com/sakif/eventhub/internal/repository"
	"github.com/sakif/eventhub/internal/validation"
)

// UserService runs the account flows: sign-up, login, session refresh,
// logout and profile edits.
type UserService struct {
	users         repository.UserRepository
	events        repository.EventRepository
	registrations repository.RegistrationRepository
	tokens        *auth.TokenService
	passwords     *auth.PasswordService
	validate      *validation.Validator
	logger        *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	events repository.EventRepository,
	registrations repository.RegistrationRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	validate *validation.Validator,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:         users,
		events:        events,
		registrations: registrations,
		tokens:        tokens,
		passwords:     passwords,
		validate:      validate,
		logger:        logger,
	}
}

// RegisterInput is the sign-up request body.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
	Fullname string `json:"fullname" validate:"required,max=100"`
}

// LoginInput needs a password plus either a username or an email.
type LoginInput struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

// AccountDetailsInput updates email and/or fullname. Empty fields are kept.
type AccountDetailsInput struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Fullname string `json:"fullname" validate:"max=100"`
}

// Session is what a successful login or refresh hands back to the handler,
// which sets both tokens as cookies and echoes them in the body.
type Session struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func sanitize(u *model.User) *model.User {
	out := *u
	out.PasswordHash = ""
	out.RefreshToken = ""
	return &out
}

// Register creates an account. Username and email are stored lower-cased.
// The password is hashed here; only the hash reaches the store.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Fullname = strings.TrimSpace(in.Fullname)
	if strings.TrimSpace(in.Password) == "" {
		in.Password = ""
	}

	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, fmt.Errorf("service/user: checking existing user: %w", err)
	}
	if exists {
		return nil, apperror.Conflict("A user with same username or email exists")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		Fullname:     in.Fullname,
		PasswordHash: hash,
	}
	// A concurrent sign-up with the same name still hits the unique index
	// and comes back as a Conflict.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return sanitize(user), nil
}

// Login verifies credentials and starts a new session. Storing the new
// refresh token replaces any earlier one, so only the latest login can
// refresh.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" && in.Email == "" {
		return nil, apperror.ValidationFailed("username", "Username or email is required")
	}
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	identifier := in.Username
	if identifier == "" {
		identifier = in.Email
	}

	user, err := s.users.GetByLogin(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("service/user: looking up %q: %w", identifier, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login failed: wrong password", slog.String("userID", user.ID))
			return nil, apperror.Unauthorized("Invalid user credentials")
		}
		return nil, fmt.Errorf("service/user: verifying password: %w", err)
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return session, nil
}

// RefreshSession trades a refresh token for a new token pair. The presented
// token must be the one currently stored for the user.
func (s *UserService) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apperror.Unauthorized("Unauthorized request")
	}

	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid refresh token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid refresh token")
		}
		return nil, fmt.Errorf("service/user: loading user %s: %w", userID, err)
	}

	if user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, apperror.Unauthorized("Refresh token is expired or used")
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session refreshed", slog.String("userID", user.ID))
	return session, nil
}

func (s *UserService) startSession(ctx context.Context, user *model.User) (*Session, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Username, user.Email, user.Fullname)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, fmt.Errorf("service/user: storing refresh token: %w", err)
	}

	return &Session{
		User:         sanitize(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Logout clears the stored refresh token. Outstanding access tokens stay
// valid until they expire.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshToken(ctx, userID, ""); err != nil {
		return fmt.Errorf("service/user: clearing refresh token: %w", err)
	}
	s.logger.Info("user logged out", slog.String("userID", userID))
	return nil
}

// CurrentUser returns the sanitized profile of an authenticated user with
// the events they attend and the events they host.
func (s *UserService) CurrentUser(ctx context.Context, user *model.User) (*model.User, error) {
	registered, err := s.registrations.ListEventIDsByAttendee(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing registrations: %w", err)
	}
	organized, err := s.events.ListIDsByHost(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing hosted events: %w", err)
	}

	out := sanitize(user)
	out.RegisteredEvents = registered
	out.OrganizedEvents = organized
	return out, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := s.validate.Validate(in); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/user: loading user %s: %w", userID, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.OldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.Unauthorized("Invalid old password")
		}
		return fmt.Errorf("service/user: verifying password: %w", err)
	}

	hash, err := s.passwords.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("service/user: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("service/user: updating password: %w", err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

func (s *UserService) UpdateAccountDetails(ctx context.Context, user *model.User, in AccountDetailsInput) (*model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Fullname = strings.TrimSpace(in.Fullname)

	if in.Email == "" && in.Fullname == "" {
		return nil, apperror.ValidationFailed("", "Email or fullname is required")
	}
	if err := s.validate.Validate(in); err != nil {
		return nil, err
	}

	email, fullname := user.Email, user.Fullname
	if in.Email != "" {
		email = in.Email
	}
	if in.Fullname != "" {
		fullname = in.Fullname
	}

	updated, err := s.users.UpdateAccountDetails(ctx, user.ID, email, fullname)
	if err != nil {
		return nil, fmt.Errorf("service/user: updating account details: %w", err)
	}
	return sanitize(updated), nil
}
