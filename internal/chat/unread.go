package chat

import (
	"context"

	"go.uber.org/zap"
)

// A missing cursor counts as zero, so every message in the channel is unread.
const unreadCountsQuery = `
SELECT c.id AS channel_id,
       (SELECT COUNT(*) FROM messages m
        WHERE m.channel_id = c.id
          AND m.id > COALESCE(ucr.last_read_message_id, 0)) AS unread_count
FROM channels c
LEFT JOIN user_channel_reads ucr ON ucr.channel_id = c.id AND ucr.user_id = ?`

type unreadRow struct {
	ChannelID   uint
	UnreadCount int64
}

// UnreadCounts computes, for every channel, how many messages carry an id
// greater than the user's cursor there. The count deliberately includes
// thread replies even though TopLevelMessages does not surface them: a fresh
// reply bumps the parent channel's unread total until the thread is viewed.
func (s *Service) UnreadCounts(ctx context.Context, userID uint) (map[uint]int64, error) {
	var rows []unreadRow
	if err := s.db.WithContext(ctx).Raw(unreadCountsQuery, userID).Scan(&rows).Error; err != nil {
		s.logError(opUnreadCounts, "query_failed", err, zap.Uint("user_id", userID))
		return nil, newServiceError(opUnreadCounts, "query_failed", err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ChannelID] = row.UnreadCount
	}
	return counts, nil
}
