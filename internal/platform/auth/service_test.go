package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("test-secret")

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, testSecret), mock
}

var userCols = []string{"user_id", "password_hash", "role", "is_disabled", "created_at"}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	svc, mock := newTestService(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("alice", string(hash), "admin", 0, time.Now()))

	token, err := svc.Login(context.Background(), "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	sub, role, err := parseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parseToken: %v", err)
	}
	if sub != "alice" || role != "admin" {
		t.Errorf("unexpected claims: sub=%q role=%q", sub, role)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, mock := newTestService(t)

	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("alice", string(hash), "admin", 0, time.Now()))

	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestLoginUnknownOrDisabledUser(t *testing.T) {
	svc, mock := newTestService(t)

	// 未登録ユーザ
	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows(userCols))
	if _, err := svc.Login(context.Background(), "nobody", "pw"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for unknown user, got %v", err)
	}

	// 無効化済みユーザ
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("bob").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("bob", string(hash), "user", 1, time.Now()))
	if _, err := svc.Login(context.Background(), "bob", "pw"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed for disabled user, got %v", err)
	}
}

func TestRegisterStoresBcryptHash(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("carol").
		WillReturnRows(sqlmock.NewRows(userCols))
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("carol", sqlmock.AnyArg(), "user").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Register(context.Background(), "carol", "pw", "user"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRegisterRejectsExistingUser(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("alice", "x", "user", 0, time.Now()))

	if err := svc.Register(context.Background(), "alice", "pw", "user"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDeleteMissingUser(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec(`DELETE FROM users`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
