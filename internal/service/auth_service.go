package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

// Mailer delivers password reset tokens.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the log instead of sending mail.
type LogMailer struct {
	Logger *zap.Logger
}

// SendPasswordReset logs the reset request.
func (m LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	if m.Logger != nil {
		m.Logger.Info("password reset issued", zap.String("email", email), zap.Int("token_length", len(token)))
	}
	return nil
}

// AuthChangeFunc observes sign-in and sign-out. viewer is nil on sign-out.
type AuthChangeFunc func(viewerID string, viewer *models.Viewer)

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	ResetTokenExpiry  time.Duration
	Issuer            string
}

// AuthService is the authentication collaborator: accounts, tokens and password resets.
type AuthService struct {
	repo      authUserRepository
	mailer    Mailer
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig

	mu        sync.RWMutex
	listeners map[int]AuthChangeFunc
	nextID    int
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, mailer Mailer, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if config.ResetTokenExpiry <= 0 {
		config.ResetTokenExpiry = time.Hour
	}
	return &AuthService{repo: repo, mailer: mailer, validator: validate, logger: logger, config: config, listeners: make(map[int]AuthChangeFunc)}
}

// OnAuthChange registers fn and returns a function that unregisters it.
func (s *AuthService) OnAuthChange(fn AuthChangeFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *AuthService) notify(viewerID string, viewer *models.Viewer) {
	s.mu.RLock()
	listeners := make([]AuthChangeFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(viewerID, viewer)
	}
}

// SignUp registers a new account.
func (s *AuthService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Viewer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation("invalid sign-up payload", validationFields(err)...)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}
	return models.ViewerFromUser(user), nil
}

// SignIn authenticates a user, issues an access token and notifies listeners.
func (s *AuthService) SignIn(ctx context.Context, req models.SignInRequest) (*models.SignInResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation("invalid sign-in payload", validationFields(err)...)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	issuedAt := time.Now().UTC()
	token, err := s.sign(user, models.TokenPurposeAccess, issuedAt, s.config.AccessTokenExpiry)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, issuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	viewer := models.ViewerFromUser(user)
	s.notify(viewer.ID, viewer)

	return &models.SignInResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		Viewer:      *viewer,
	}, nil
}

// SignOut notifies listeners that the viewer left. Access tokens are stateless and expire on their own.
func (s *AuthService) SignOut(_ context.Context, viewerID string) error {
	if viewerID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "no signed-in viewer")
	}
	s.notify(viewerID, nil)
	return nil
}

// SendPasswordReset issues a reset token to the account's email. Unknown emails succeed silently.
func (s *AuthService) SendPasswordReset(ctx context.Context, req models.PasswordResetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation("invalid password reset payload", validationFields(err)...)
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	token, err := s.sign(user, models.TokenPurposeReset, time.Now().UTC(), s.config.ResetTokenExpiry)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create reset token")
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		return appErrors.WrapAs(appErrors.ErrRemoteUnavailable, err, "failed to send password reset email")
	}
	return nil
}

// ResetPassword sets a new password using a token from SendPasswordReset.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ConfirmPasswordResetRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation("invalid reset password payload", validationFields(err)...)
	}

	claims, err := s.parse(req.Token, models.TokenPurposeReset)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, claims.UserID, string(hash), time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}
	return nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	return s.parse(tokenString, models.TokenPurposeAccess)
}

func (s *AuthService) parse(tokenString, purpose string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Purpose != purpose {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token not valid for this operation")
	}
	return claims, nil
}

func (s *AuthService) sign(user *models.User, purpose string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

// validationFields lists the JSON-less struct field names validator rejected.
func validationFields(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return fields
}
