package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListChannels returns every channel in storage order. There is no pagination
// and no visibility filtering: all authenticated users see all channels.
func (s *Service) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	if err := s.db.WithContext(ctx).Find(&channels).Error; err != nil {
		s.logError(opListChannels, "query_failed", err)
		return nil, newServiceError(opListChannels, "query_failed", err)
	}
	return channels, nil
}

// CreateChannel inserts a channel with the given name. Names are matched
// case-sensitively; a collision fails with ErrDuplicateName and a name that
// trims to empty fails with ErrInvalidInput.
func (s *Service) CreateChannel(ctx context.Context, name string) (Channel, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Channel{}, newServiceError(opCreateChannel, "empty_name", ErrInvalidInput)
	}

	channel := Channel{Name: trimmed}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Channel
		err := tx.Where("name = ?", trimmed).Take(&existing).Error
		if err == nil {
			return newServiceError(opCreateChannel, "duplicate_name", ErrDuplicateName)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCreateChannel, "lookup_failed", err, zap.String("name", trimmed))
			return newServiceError(opCreateChannel, "lookup_failed", err)
		}

		if err := tx.Create(&channel).Error; err != nil {
			s.logError(opCreateChannel, "insert_failed", err, zap.String("name", trimmed))
			return newServiceError(opCreateChannel, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Channel{}, txErr
	}

	return channel, nil
}
