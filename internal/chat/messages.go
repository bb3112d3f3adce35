package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// messageRow is the scan target for message queries joined with the author's
// username and, for top-level listings, the computed reply count.
type messageRow struct {
	ID         uint
	ChannelID  uint
	UserID     uint
	Username   string
	Content    string
	Timestamp  time.Time
	ReplyCount int64
}

const topLevelMessagesQuery = `
SELECT m.id, m.channel_id, m.user_id, m.content, m.timestamp, u.username,
       (SELECT COUNT(*) FROM messages r WHERE r.replies_to = m.id) AS reply_count
FROM messages m
JOIN users u ON u.id = m.user_id
WHERE m.channel_id = ? AND m.replies_to IS NULL
ORDER BY m.timestamp ASC, m.id ASC`

const messageByIDQuery = `
SELECT m.id, m.channel_id, m.user_id, m.content, m.timestamp, u.username
FROM messages m
JOIN users u ON u.id = m.user_id
WHERE m.id = ?`

const threadRepliesQuery = `
SELECT m.id, m.channel_id, m.user_id, m.content, m.timestamp, u.username
FROM messages m
JOIN users u ON u.id = m.user_id
WHERE m.replies_to = ?
ORDER BY m.timestamp ASC, m.id ASC`

// TopLevelMessages lists the non-reply messages of a channel in timestamp
// order (ties broken by id, which is monotonic with creation), each carrying
// its reply count and grouped reactions. Reading the listing counts as having
// seen it: when any messages are returned the caller's cursor for the channel
// advances to the id of the last one.
func (s *Service) TopLevelMessages(ctx context.Context, callerID, channelID uint) ([]MessageView, error) {
	var views []MessageView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireChannel(tx, opTopLevelMessages, channelID); err != nil {
			return err
		}

		var rows []messageRow
		if err := tx.Raw(topLevelMessagesQuery, channelID).Scan(&rows).Error; err != nil {
			s.logError(opTopLevelMessages, "query_failed", err, zap.Uint("channel_id", channelID))
			return newServiceError(opTopLevelMessages, "query_failed", err)
		}

		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		reactions, err := s.reactionsByMessage(tx, opTopLevelMessages, ids)
		if err != nil {
			return err
		}

		views = make([]MessageView, 0, len(rows))
		for _, row := range rows {
			views = append(views, MessageView{
				ID:         row.ID,
				UserID:     row.UserID,
				Username:   row.Username,
				Content:    row.Content,
				Timestamp:  row.Timestamp,
				ReplyCount: row.ReplyCount,
				Reactions:  reactions[row.ID],
			})
		}

		if len(rows) > 0 {
			last := rows[len(rows)-1].ID
			if err := s.upsertCursor(tx, opTopLevelMessages, callerID, channelID, last); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return views, nil
}

// PostMessage validates and inserts a message, then advances the poster's
// cursor for the channel to the new id in the same transaction: posting
// implies having seen up to your own message. When repliesTo is set the parent
// must exist; its own replies_to is not re-checked, so nesting depth is
// bounded by caller convention rather than by the store.
func (s *Service) PostMessage(ctx context.Context, authorID, channelID uint, content string, repliesTo *uint) (uint, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0, newServiceError(opPostMessage, "empty_content", ErrInvalidInput)
	}

	message := Message{
		ChannelID: channelID,
		UserID:    authorID,
		Content:   trimmed,
		RepliesTo: repliesTo,
		Timestamp: s.clock().UTC(),
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireChannel(tx, opPostMessage, channelID); err != nil {
			return err
		}

		if repliesTo != nil {
			var parent Message
			err := tx.Select("id").Where("id = ?", *repliesTo).Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opPostMessage, "parent_not_found", ErrNotFound)
			}
			if err != nil {
				s.logError(opPostMessage, "parent_lookup_failed", err, zap.Uint("parent_id", *repliesTo))
				return newServiceError(opPostMessage, "parent_lookup_failed", err)
			}
		}

		if err := tx.Create(&message).Error; err != nil {
			s.logError(opPostMessage, "insert_failed", err,
				zap.Uint("channel_id", channelID),
				zap.Uint("author_id", authorID))
			return newServiceError(opPostMessage, "insert_failed", err)
		}

		return s.upsertCursor(tx, opPostMessage, authorID, channelID, message.ID)
	})
	if txErr != nil {
		return 0, txErr
	}

	return message.ID, nil
}

// Thread returns a parent message and its replies in timestamp order, each
// with grouped reactions. Viewing a thread advances the caller's cursor for
// the parent's channel to the last reply id, or to the parent's own id when
// the thread is empty.
func (s *Service) Thread(ctx context.Context, callerID, parentID uint) (ThreadView, error) {
	var view ThreadView
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent messageRow
		result := tx.Raw(messageByIDQuery, parentID).Scan(&parent)
		if result.Error != nil {
			s.logError(opThread, "parent_lookup_failed", result.Error, zap.Uint("parent_id", parentID))
			return newServiceError(opThread, "parent_lookup_failed", result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opThread, "parent_not_found", ErrNotFound)
		}

		var replies []messageRow
		if err := tx.Raw(threadRepliesQuery, parentID).Scan(&replies).Error; err != nil {
			s.logError(opThread, "replies_query_failed", err, zap.Uint("parent_id", parentID))
			return newServiceError(opThread, "replies_query_failed", err)
		}

		ids := make([]uint, 0, len(replies)+1)
		ids = append(ids, parent.ID)
		for _, reply := range replies {
			ids = append(ids, reply.ID)
		}
		reactions, err := s.reactionsByMessage(tx, opThread, ids)
		if err != nil {
			return err
		}

		view.Parent = MessageView{
			ID:         parent.ID,
			ChannelID:  parent.ChannelID,
			UserID:     parent.UserID,
			Username:   parent.Username,
			Content:    parent.Content,
			Timestamp:  parent.Timestamp,
			ReplyCount: int64(len(replies)),
			Reactions:  reactions[parent.ID],
		}
		view.Replies = make([]MessageView, 0, len(replies))
		for _, reply := range replies {
			view.Replies = append(view.Replies, MessageView{
				ID:        reply.ID,
				UserID:    reply.UserID,
				Username:  reply.Username,
				Content:   reply.Content,
				Timestamp: reply.Timestamp,
				Reactions: reactions[reply.ID],
			})
		}

		seen := parent.ID
		if len(replies) > 0 {
			seen = replies[len(replies)-1].ID
		}
		return s.upsertCursor(tx, opThread, callerID, parent.ChannelID, seen)
	})
	if txErr != nil {
		return ThreadView{}, txErr
	}
	return view, nil
}

func (s *Service) requireChannel(tx *gorm.DB, operation string, channelID uint) error {
	var channel Channel
	err := tx.Select("id").Where("id = ?", channelID).Take(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(operation, "channel_not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(operation, "channel_lookup_failed", err, zap.Uint("channel_id", channelID))
		return newServiceError(operation, "channel_lookup_failed", err)
	}
	return nil
}
