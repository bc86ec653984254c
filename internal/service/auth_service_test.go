package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/models"
	"github.com/noah-isme/educore-sync/internal/repository"
	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

type recordingMailer struct {
	email string
	token string
	err   error
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, token string) error {
	if m.err != nil {
		return m.err
	}
	m.email, m.token = email, token
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *repository.MemoryUserRepository, *recordingMailer) {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	mailer := &recordingMailer{}
	svc := NewAuthService(repo, mailer, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		ResetTokenExpiry:  15 * time.Minute,
		Issuer:            "educore-sync",
	})
	_, err := svc.SignUp(context.Background(), models.SignUpRequest{
		Email:    "Admin@School.test",
		Password: "password",
		FullName: "Head Teacher",
		Role:     models.RoleAdmin,
	})
	require.NoError(t, err)
	return svc, repo, mailer
}

func TestAuthServiceSignInSuccess(t *testing.T) {
	svc, repo, _ := newTestAuthService(t)

	res, err := svc.SignIn(context.Background(), models.SignInRequest{Email: "admin@school.test", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "admin@school.test", res.Viewer.Email)
	assert.Equal(t, models.RoleAdmin, res.Viewer.Role)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Viewer.ID, claims.UserID)
	assert.Equal(t, "educore-sync", claims.Issuer)

	user, err := repo.FindByID(context.Background(), res.Viewer.ID)
	require.NoError(t, err)
	assert.NotNil(t, user.LastLogin)
}

func TestAuthServiceSignInInvalidPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.SignIn(context.Background(), models.SignInRequest{Email: "admin@school.test", Password: "wrong"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.SignIn(context.Background(), models.SignInRequest{Email: "nobody@school.test", Password: "password"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceSignInValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.SignIn(context.Background(), models.SignInRequest{Email: "not-an-email"})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.ElementsMatch(t, []string{"email", "password"}, appErr.Fields)
}

func TestAuthServiceSignUpDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.SignUp(context.Background(), models.SignUpRequest{
		Email: "admin@school.test", Password: "password", FullName: "Someone", Role: models.RoleTeacher,
	})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

type deactivatedUsers struct {
	*repository.MemoryUserRepository
}

func (r deactivatedUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := r.MemoryUserRepository.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	user.Active = false
	return user, nil
}

func TestAuthServiceInactiveAccount(t *testing.T) {
	repo := deactivatedUsers{repository.NewMemoryUserRepository()}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{AccessTokenSecret: "secret"})
	_, err := svc.SignUp(context.Background(), models.SignUpRequest{Email: "t@school.test", Password: "password", FullName: "T", Role: models.RoleTeacher})
	require.NoError(t, err)

	_, err = svc.SignIn(context.Background(), models.SignInRequest{Email: "t@school.test", Password: "password"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceAuthChangeListeners(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	var events []string
	unsubscribe := svc.OnAuthChange(func(viewerID string, viewer *models.Viewer) {
		if viewer == nil {
			events = append(events, "out:"+viewerID)
			return
		}
		events = append(events, "in:"+viewer.Email)
	})

	res, err := svc.SignIn(context.Background(), models.SignInRequest{Email: "admin@school.test", Password: "password"})
	require.NoError(t, err)
	require.NoError(t, svc.SignOut(context.Background(), res.Viewer.ID))

	unsubscribe()
	_, err = svc.SignIn(context.Background(), models.SignInRequest{Email: "admin@school.test", Password: "password"})
	require.NoError(t, err)

	assert.Equal(t, []string{"in:admin@school.test", "out:" + res.Viewer.ID}, events)
	assert.True(t, errors.Is(svc.SignOut(context.Background(), ""), appErrors.ErrUnauthorized))
}

func TestAuthServicePasswordResetFlow(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendPasswordReset(ctx, models.PasswordResetRequest{Email: "admin@school.test"}))
	require.NotEmpty(t, mailer.token)
	assert.Equal(t, "admin@school.test", mailer.email)

	_, err := svc.ValidateToken(mailer.token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized), "reset tokens are not access tokens")

	require.NoError(t, svc.ResetPassword(ctx, models.ConfirmPasswordResetRequest{Token: mailer.token, NewPassword: "new-password"}))

	_, err = svc.SignIn(ctx, models.SignInRequest{Email: "admin@school.test", Password: "password"})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
	_, err = svc.SignIn(ctx, models.SignInRequest{Email: "admin@school.test", Password: "new-password"})
	require.NoError(t, err)
}

func TestAuthServicePasswordResetUnknownEmail(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)

	require.NoError(t, svc.SendPasswordReset(context.Background(), models.PasswordResetRequest{Email: "ghost@school.test"}))
	assert.Empty(t, mailer.token)
}

func TestAuthServicePasswordResetMailerFailure(t *testing.T) {
	svc, _, mailer := newTestAuthService(t)
	mailer.err = errors.New("smtp down")

	err := svc.SendPasswordReset(context.Background(), models.PasswordResetRequest{Email: "admin@school.test"})
	assert.True(t, errors.Is(err, appErrors.ErrRemoteUnavailable))
}

func TestAuthServiceResetPasswordRejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	res, err := svc.SignIn(context.Background(), models.SignInRequest{Email: "admin@school.test", Password: "password"})
	require.NoError(t, err)

	err = svc.ResetPassword(context.Background(), models.ConfirmPasswordResetRequest{Token: res.AccessToken, NewPassword: "new-password"})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceValidateTokenTampered(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.ValidateToken("not.a.token")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
