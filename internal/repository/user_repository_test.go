package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/educore-sync/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}).
		AddRow("1", "admin@educore.test", "hash", "Admin", string(models.RoleAdmin), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("admin@educore.test").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "admin@educore.test")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Email: "dup@educore.test", Role: models.RoleTeacher})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePassword(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", "newhash", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u1", "newhash", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryUserRepository(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user := &models.User{Email: "Teacher@EduCore.test", FullName: "Kwame", Role: models.RoleTeacher, Active: true}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	found, err := repo.FindByEmail(ctx, "teacher@educore.test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	assert.ErrorIs(t, repo.Create(ctx, &models.User{Email: "teacher@educore.test"}), ErrEmailTaken)

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "h2", time.Now()))
	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", found.PasswordHash)

	_, err = repo.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
