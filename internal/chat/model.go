package chat

import "time"

// Channel is a named container for messages, visible to every authenticated user.
type Channel struct {
	ID   uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex:idx_channels_name"`
}

// TableName provides the explicit table binding for GORM.
func (Channel) TableName() string {
	return "channels"
}

// Message is a posted message. A nil RepliesTo marks a top-level message; a
// non-nil value references the parent of a single-level thread. The
// autoincrement id doubles as a logical sequence number: read cursors and
// unread counts compare against it rather than against timestamps.
type Message struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	ChannelID uint      `gorm:"column:channel_id;not null;index:idx_messages_channel"`
	UserID    uint      `gorm:"column:user_id;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	RepliesTo *uint     `gorm:"column:replies_to;index:idx_messages_parent"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "messages"
}

// Reaction records one emoji reaction by one user on one message. There is no
// uniqueness constraint: the same user may react with the same emoji more than
// once, and aggregation surfaces every row.
type Reaction struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID uint   `gorm:"column:message_id;not null;index:idx_reactions_message"`
	UserID    uint   `gorm:"column:user_id;not null"`
	Emoji     string `gorm:"column:emoji;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Reaction) TableName() string {
	return "reactions"
}

// ReadCursor stores the highest message id a user is considered to have seen
// in a channel. One row per (user, channel) pair; upserts overwrite
// unconditionally, so the stored value is not guaranteed to be monotonic.
type ReadCursor struct {
	UserID            uint `gorm:"column:user_id;primaryKey"`
	ChannelID         uint `gorm:"column:channel_id;primaryKey"`
	LastReadMessageID uint `gorm:"column:last_read_message_id;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (ReadCursor) TableName() string {
	return "user_channel_reads"
}

// MessageView is the read-side shape of a message: the stored row joined with
// its author's username, the number of replies beneath it, and its reactions
// grouped by emoji (usernames in insertion order, duplicates preserved).
type MessageView struct {
	ID         uint                `json:"id"`
	ChannelID  uint                `json:"channel_id,omitempty"`
	UserID     uint                `json:"user_id"`
	Username   string              `json:"username"`
	Content    string              `json:"content"`
	Timestamp  time.Time           `json:"timestamp"`
	ReplyCount int64               `json:"reply_count"`
	Reactions  map[string][]string `json:"reactions"`
}

// ThreadView is a parent message together with its replies in timestamp order.
type ThreadView struct {
	Parent  MessageView   `json:"parent"`
	Replies []MessageView `json:"replies"`
}
