package chat

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reactionsForMessagesQuery = `
SELECT r.message_id, r.emoji, u.username
FROM reactions r
JOIN users u ON u.id = r.user_id
WHERE r.message_id IN ?
ORDER BY r.id ASC`

type reactionRow struct {
	MessageID uint
	Emoji     string
	Username  string
}

// AddReaction attaches an emoji reaction to a message and, in the same
// transaction, advances the reactor's cursor for the message's channel to the
// message id. Reactions are append-only: there is no removal and no
// deduplication, so reacting twice with the same emoji yields two entries.
func (s *Service) AddReaction(ctx context.Context, userID, messageID uint, emoji string) error {
	trimmed := strings.TrimSpace(emoji)
	if trimmed == "" {
		return newServiceError(opAddReaction, "empty_emoji", ErrInvalidInput)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message Message
		err := tx.Select("id", "channel_id").Where("id = ?", messageID).Take(&message).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opAddReaction, "message_not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opAddReaction, "message_lookup_failed", err, zap.Uint("message_id", messageID))
			return newServiceError(opAddReaction, "message_lookup_failed", err)
		}

		reaction := Reaction{MessageID: messageID, UserID: userID, Emoji: trimmed}
		if err := tx.Create(&reaction).Error; err != nil {
			s.logError(opAddReaction, "insert_failed", err,
				zap.Uint("message_id", messageID),
				zap.Uint("user_id", userID))
			return newServiceError(opAddReaction, "insert_failed", err)
		}

		return s.upsertCursor(tx, opAddReaction, userID, message.ChannelID, message.ID)
	})
}

// ReactionsFor returns the reactions of a single message grouped by emoji.
func (s *Service) ReactionsFor(ctx context.Context, messageID uint) (map[string][]string, error) {
	var grouped map[string][]string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message Message
		err := tx.Select("id").Where("id = ?", messageID).Take(&message).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opReactionsFor, "message_not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opReactionsFor, "message_lookup_failed", err, zap.Uint("message_id", messageID))
			return newServiceError(opReactionsFor, "message_lookup_failed", err)
		}

		byMessage, err := s.reactionsByMessage(tx, opReactionsFor, []uint{messageID})
		if err != nil {
			return err
		}
		grouped = byMessage[messageID]
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return grouped, nil
}

// reactionsByMessage groups the reactions of the given messages by emoji with
// reactor usernames in insertion order. Messages without reactions map to an
// empty group so the serialized shape is always an object, never null.
func (s *Service) reactionsByMessage(tx *gorm.DB, operation string, messageIDs []uint) (map[uint]map[string][]string, error) {
	grouped := make(map[uint]map[string][]string, len(messageIDs))
	for _, id := range messageIDs {
		grouped[id] = map[string][]string{}
	}
	if len(messageIDs) == 0 {
		return grouped, nil
	}

	var rows []reactionRow
	if err := tx.Raw(reactionsForMessagesQuery, messageIDs).Scan(&rows).Error; err != nil {
		s.logError(operation, "reactions_query_failed", err)
		return nil, newServiceError(operation, "reactions_query_failed", err)
	}

	for _, row := range rows {
		groups, ok := grouped[row.MessageID]
		if !ok {
			groups = map[string][]string{}
			grouped[row.MessageID] = groups
		}
		groups[row.Emoji] = append(groups[row.Emoji], row.Username)
	}
	return grouped, nil
}
