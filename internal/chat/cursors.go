package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetLastRead upserts the caller's read cursor for a channel. The write is
// unconditional and last-writer-wins: setting a lower id than the stored one
// is allowed and retroactively raises the apparent unread count.
func (s *Service) SetLastRead(ctx context.Context, userID, channelID, messageID uint) error {
	cursor := ReadCursor{UserID: userID, ChannelID: channelID, LastReadMessageID: messageID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id"}),
	}).Create(&cursor).Error
	if err != nil {
		s.logError(opSetLastRead, "upsert_failed", err,
			zap.Uint("user_id", userID),
			zap.Uint("channel_id", channelID))
		return newServiceError(opSetLastRead, "upsert_failed", err)
	}
	return nil
}

// MarkRead is the request-facing cursor update: it verifies the message exists
// in the named channel before upserting, so a caller cannot point a cursor at
// a message from elsewhere.
func (s *Service) MarkRead(ctx context.Context, userID, channelID, messageID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message Message
		err := tx.Select("id").Where("id = ? AND channel_id = ?", messageID, channelID).Take(&message).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opMarkRead, "message_not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opMarkRead, "message_lookup_failed", err,
				zap.Uint("message_id", messageID),
				zap.Uint("channel_id", channelID))
			return newServiceError(opMarkRead, "message_lookup_failed", err)
		}
		return s.upsertCursor(tx, opMarkRead, userID, channelID, messageID)
	})
}

// LastRead returns the stored cursor for a (user, channel) pair. The second
// return value reports whether the pair has ever been set.
func (s *Service) LastRead(ctx context.Context, userID, channelID uint) (uint, bool, error) {
	var cursor ReadCursor
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		Take(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		s.logError(opLastRead, "query_failed", err,
			zap.Uint("user_id", userID),
			zap.Uint("channel_id", channelID))
		return 0, false, newServiceError(opLastRead, "query_failed", err)
	}
	return cursor.LastReadMessageID, true, nil
}

func (s *Service) upsertCursor(tx *gorm.DB, operation string, userID, channelID, messageID uint) error {
	cursor := ReadCursor{UserID: userID, ChannelID: channelID, LastReadMessageID: messageID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id"}),
	}).Create(&cursor).Error
	if err != nil {
		s.logError(operation, "cursor_upsert_failed", err,
			zap.Uint("user_id", userID),
			zap.Uint("channel_id", channelID))
		return newServiceError(operation, "cursor_upsert_failed", err)
	}
	return nil
}
