package chat

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidInput indicates a required field was empty after trimming.
	ErrInvalidInput = errors.New("chat: invalid input")
	// ErrDuplicateName indicates a channel name collision.
	ErrDuplicateName = errors.New("chat: duplicate name")
	// ErrNotFound indicates a referenced channel, message, or parent does not exist.
	ErrNotFound = errors.New("chat: not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew       = "chat.service.new"
	opListChannels     = "chat.list_channels"
	opCreateChannel    = "chat.create_channel"
	opTopLevelMessages = "chat.top_level_messages"
	opPostMessage      = "chat.post_message"
	opThread           = "chat.thread"
	opAddReaction      = "chat.add_reaction"
	opReactionsFor     = "chat.reactions_for"
	opMarkRead         = "chat.mark_read"
	opSetLastRead      = "chat.set_last_read"
	opLastRead         = "chat.last_read"
	opUnreadCounts     = "chat.unread_counts"
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

// ServiceConfig describes the dependencies required by the chat service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service implements the channel, message, reaction, and read-cursor
// operations over a shared transactional store. Each exported method runs as
// one request-scoped transaction: a mutation and its cursor side effect either
// both commit or neither does.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates the configuration and constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
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
	s.loggerOrDefault().Error("chat service error", attrs...)
}
