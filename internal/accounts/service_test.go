package accounts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:belay_accounts_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		BcryptCost: bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("failed to construct account service: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)

	user, err := service.Register(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected assigned user id")
	}
	if user.PasswordHash == "s3cret" {
		t.Fatalf("password must not be stored in the clear")
	}

	authenticated, err := service.Authenticate(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authenticated.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, authenticated.ID)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "alice", "one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Register(context.Background(), "alice", "two")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestRegisterRejectsEmptyCredentials(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "  ", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank username, got %v", err)
	}
	if _, err := service.Register(context.Background(), "alice", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Register(context.Background(), "alice", "right"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := service.Authenticate(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateRejectsUnknownUsername(t *testing.T) {
	service := newTestService(t)

	_, err := service.Authenticate(context.Background(), "nobody", "pw")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateUsername(t *testing.T) {
	service := newTestService(t)

	user, err := service.Register(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Register(context.Background(), "bob", "pw"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.UpdateUsername(context.Background(), user.ID, "bob"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if err := service.UpdateUsername(context.Background(), user.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := service.UpdateUsername(context.Background(), user.ID, "alice2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Authenticate(context.Background(), "alice2", "pw"); err != nil {
		t.Fatalf("rename should keep credentials working: %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	service := newTestService(t)

	user, err := service.Register(context.Background(), "alice", "old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.UpdatePassword(context.Background(), user.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := service.UpdatePassword(context.Background(), user.ID, "new"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := service.Authenticate(context.Background(), "alice", "old"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
	if _, err := service.Authenticate(context.Background(), "alice", "new"); err != nil {
		t.Fatalf("new password should authenticate: %v", err)
	}
}

func TestUpdateUsernameUnknownUser(t *testing.T) {
	service := newTestService(t)

	err := service.UpdateUsername(context.Background(), 42, "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
