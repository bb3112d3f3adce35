package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnauthenticated indicates the presented token does not resolve to a live
// session: it is malformed, expired, signed with the wrong key, or revoked.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingIssuer   = errors.New("token issuer is required")
	noOpLogger         = zap.NewNop()
)

// SessionStore issues, resolves, and revokes bearer sessions for the request
// layer. The chat core never sees tokens, only the resolved user id.
type SessionStore interface {
	Create(ctx context.Context, userID uint) (string, error)
	Resolve(ctx context.Context, token string) (uint, error)
	Revoke(ctx context.Context, token string) error
}

// SessionRecord is the persisted trace of an issued token, keyed by its jti.
// Deleting the row revokes the session even though the JWT itself is still
// within its validity window.
type SessionRecord struct {
	TokenID   string    `gorm:"column:token_id;primaryKey;size:190;not null"`
	UserID    uint      `gorm:"column:user_id;not null;index:idx_sessions_user"`
	IssuedAt  time.Time `gorm:"column:issued_at;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SessionRecord) TableName() string {
	return "session_records"
}

// SessionStoreConfig describes the dependencies of the persistent store.
type SessionStoreConfig struct {
	Database *gorm.DB
	Issuer   *TokenIssuer
	Clock    func() time.Time
	Logger   *zap.Logger
}

type persistentSessionStore struct {
	db     *gorm.DB
	issuer *TokenIssuer
	clock  func() time.Time
	logger *zap.Logger
}

// NewSessionStore constructs a SessionStore backed by the relational store.
func NewSessionStore(cfg SessionStoreConfig) (SessionStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Issuer == nil {
		return nil, errMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &persistentSessionStore{
		db:     cfg.Database,
		issuer: cfg.Issuer,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *persistentSessionStore) Create(ctx context.Context, userID uint) (string, error) {
	token, tokenID, expiresAt, err := s.issuer.IssueSessionToken(userID)
	if err != nil {
		s.logger.Error("session token issue failed", zap.Error(err), zap.Uint("user_id", userID))
		return "", err
	}

	record := SessionRecord{
		TokenID:   tokenID,
		UserID:    userID,
		IssuedAt:  s.clock().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Error("session record insert failed", zap.Error(err), zap.Uint("user_id", userID))
		return "", err
	}

	return token, nil
}

func (s *persistentSessionStore) Resolve(ctx context.Context, token string) (uint, error) {
	userID, tokenID, err := s.issuer.ValidateToken(token)
	if err != nil {
		return 0, ErrUnauthenticated
	}

	var record SessionRecord
	err = s.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUnauthenticated
	}
	if err != nil {
		s.logger.Error("session record lookup failed", zap.Error(err))
		return 0, err
	}
	if record.UserID != userID {
		return 0, ErrUnauthenticated
	}

	return userID, nil
}

func (s *persistentSessionStore) Revoke(ctx context.Context, token string) error {
	_, tokenID, err := s.issuer.ValidateToken(token)
	if err != nil {
		// An invalid token holds no session to revoke.
		return nil
	}
	if err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).Delete(&SessionRecord{}).Error; err != nil {
		s.logger.Error("session record delete failed", zap.Error(err))
		return err
	}
	return nil
}
