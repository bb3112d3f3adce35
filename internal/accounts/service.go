package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidInput indicates an empty username or password.
	ErrInvalidInput = errors.New("accounts: invalid input")
	// ErrDuplicateUsername indicates the requested username is already taken.
	ErrDuplicateUsername = errors.New("accounts: duplicate username")
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("accounts: invalid credentials")
	// ErrUserNotFound indicates the referenced user id does not exist.
	ErrUserNotFound = errors.New("accounts: user not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew     = "accounts.service.new"
	opRegister       = "accounts.register"
	opAuthenticate   = "accounts.authenticate"
	opUpdateUsername = "accounts.update_username"
	opUpdatePassword = "accounts.update_password"
)

// ServiceError carries a machine-readable operation code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation.reason identifier for the failure.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies required by the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
	// BcryptCost overrides the hashing cost; zero selects the bcrypt default.
	// Tests lower it to keep hashing fast.
	BcryptCost int
}

// Service manages registration, credential checks, and self-service updates
// for user accounts. Password hashes never leave this package.
type Service struct {
	db         *gorm.DB
	logger     *zap.Logger
	bcryptCost int
}

// NewService validates the configuration and constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &Service{db: cfg.Database, logger: logger, bcryptCost: cost}, nil
}

// Register creates an account with a bcrypt-hashed password and returns it.
func (s *Service) Register(ctx context.Context, username, password string) (User, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" || password == "" {
		return User{}, newServiceError(opRegister, "empty_credentials", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, newServiceError(opRegister, "hash_failed", err)
	}

	user := User{Username: trimmed, PasswordHash: string(hash)}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireUsernameFree(tx, opRegister, trimmed); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			s.logError(opRegister, "insert_failed", err, zap.String("username", trimmed))
			return newServiceError(opRegister, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return User{}, txErr
	}

	return user, nil
}

// Authenticate verifies a username/password pair and returns the account.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, newServiceError(opAuthenticate, "unknown_username", ErrInvalidCredentials)
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err, zap.String("username", username))
		return User{}, newServiceError(opAuthenticate, "lookup_failed", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, newServiceError(opAuthenticate, "password_mismatch", ErrInvalidCredentials)
	}

	return user, nil
}

// UpdateUsername renames an account, enforcing the same uniqueness rule as
// registration.
func (s *Service) UpdateUsername(ctx context.Context, userID uint, newUsername string) error {
	trimmed := strings.TrimSpace(newUsername)
	if trimmed == "" {
		return newServiceError(opUpdateUsername, "empty_username", ErrInvalidInput)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireUsernameFree(tx, opUpdateUsername, trimmed); err != nil {
			return err
		}

		result := tx.Model(&User{}).Where("id = ?", userID).Update("username", trimmed)
		if result.Error != nil {
			s.logError(opUpdateUsername, "update_failed", result.Error, zap.Uint("user_id", userID))
			return newServiceError(opUpdateUsername, "update_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateUsername, "user_not_found", ErrUserNotFound)
		}
		return nil
	})
}

// UpdatePassword replaces the stored hash for an account.
func (s *Service) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	if newPassword == "" {
		return newServiceError(opUpdatePassword, "empty_password", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		s.logError(opUpdatePassword, "hash_failed", err)
		return newServiceError(opUpdatePassword, "hash_failed", err)
	}

	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("password_hash", string(hash))
	if result.Error != nil {
		s.logError(opUpdatePassword, "update_failed", result.Error, zap.Uint("user_id", userID))
		return newServiceError(opUpdatePassword, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opUpdatePassword, "user_not_found", ErrUserNotFound)
	}
	return nil
}

func (s *Service) requireUsernameFree(tx *gorm.DB, operation, username string) error {
	var existing User
	err := tx.Select("id").Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return newServiceError(operation, "duplicate_username", ErrDuplicateUsername)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(operation, "lookup_failed", err, zap.String("username", username))
		return newServiceError(operation, "lookup_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("account service error", attrs...)
}
