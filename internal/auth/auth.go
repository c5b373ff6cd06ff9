// Package auth implements account operations on top of the REST client:
// login, signup, password change, logout and account deletion.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/raphaelgruber/mcpchat-go/internal/client"
	"github.com/raphaelgruber/mcpchat-go/internal/store"
)

var (
	// ErrLoginFailed wraps every login failure.
	ErrLoginFailed = errors.New("로그인에 실패했습니다. 아이디와 비밀번호를 확인해주세요.")
	// ErrInvalidInput wraps signup validation failures.
	ErrInvalidInput = errors.New("입력 정보를 확인해주세요")
)

// API is the subset of the backend client used by this package.
type API interface {
	Login(ctx context.Context, username, password string) (*client.TokenResponse, error)
	Signup(ctx context.Context, in client.SignupRequest) (*client.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	DeleteMe(ctx context.Context) error
	Logout(ctx context.Context) error
}

// ScreenTracker is told when the user enters or leaves the login screen.
type ScreenTracker interface {
	SetLoginScreen(on bool)
}

// SignupInput is the signup form.
type SignupInput struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Service performs account operations and keeps the local token in sync.
type Service struct {
	api      API
	st       store.Store
	tracker  ScreenTracker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates an auth service. tracker may be nil.
func NewService(api API, st store.Store, tracker ScreenTracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:      api,
		st:       st,
		tracker:  tracker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// LoggedIn reports whether a token is stored.
func (s *Service) LoggedIn() bool {
	tok, ok := s.st.Get(store.KeyAccessToken)
	return ok && tok != ""
}

// Login exchanges credentials for a token and stores it.
func (s *Service) Login(ctx context.Context, username, password string) error {
	s.setLoginScreen(true)

	tok, err := s.api.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		s.logger.Warn("login failed", "username", username, "error", err)
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: 토큰 발급에 실패했습니다", ErrLoginFailed)
	}

	if err := s.st.Set(store.KeyAccessToken, tok.AccessToken); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	s.setLoginScreen(false)
	s.logger.Info("logged in", "username", username)
	return nil
}

// Signup validates the form and creates the account. It does not log in.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*client.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if err := CheckPassword(in.Password); err != nil {
		return nil, err
	}

	user, err := s.api.Signup(ctx, client.SignupRequest{
		Username: in.Username,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	s.logger.Info("account created", "username", user.Username)
	return user, nil
}

// ChangePassword checks confirmation and policy locally before calling the
// server.
func (s *Service) ChangePassword(ctx context.Context, current, next, confirm string) error {
	if next != confirm {
		return ErrPasswordMismatch
	}
	if err := CheckPassword(next); err != nil {
		return err
	}
	if err := s.api.ChangePassword(ctx, current, next); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.logger.Info("password changed")
	return nil
}

// Logout ends the server session and clears local state. Local state is
// cleared even when the server call fails.
func (s *Service) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("server logout failed", "error", err)
	}
	s.clear()
}

// DeleteAccount deletes the account and clears local state.
func (s *Service) DeleteAccount(ctx context.Context) error {
	if err := s.api.DeleteMe(ctx); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.clear()
	s.logger.Info("account deleted")
	return nil
}

func (s *Service) clear() {
	if err := s.st.Clear(); err != nil {
		s.logger.Error("failed to clear local state", "error", err)
	}
	s.setLoginScreen(true)
}

func (s *Service) setLoginScreen(on bool) {
	if s.tracker != nil {
		s.tracker.SetLoginScreen(on)
	}
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, " "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s 항목을 입력해주세요.", fe.Field())
	case "email":
		return "올바른 이메일 형식이 아닙니다."
	case "min", "max":
		return fmt.Sprintf("%s 길이가 올바르지 않습니다.", fe.Field())
	}
	return fmt.Sprintf("%s 값이 올바르지 않습니다.", fe.Field())
}
