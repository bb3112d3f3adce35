package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/belay/backend/internal/accounts"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// stepClock hands out strictly increasing timestamps one second apart so
// ordering assertions stay deterministic without sleeping.
type stepClock struct {
	mu      sync.Mutex
	current time.Time
}

func newStepClock() *stepClock {
	return &stepClock{current: time.Unix(1700000000, 0).UTC()}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:belay_chat_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&accounts.User{}, &Channel{}, &Message{}, &Reaction{}, &ReadCursor{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    newStepClock().Now,
	})
	if err != nil {
		t.Fatalf("failed to construct chat service: %v", err)
	}

	return service, db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	user := accounts.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %q: %v", username, err)
	}
	return user.ID
}

func createTestChannel(t *testing.T, service *Service, name string) uint {
	t.Helper()
	channel, err := service.CreateChannel(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to create channel %q: %v", name, err)
	}
	return channel.ID
}

func postTestMessage(t *testing.T, service *Service, authorID, channelID uint, content string, repliesTo *uint) uint {
	t.Helper()
	messageID, err := service.PostMessage(context.Background(), authorID, channelID, content, repliesTo)
	if err != nil {
		t.Fatalf("failed to post message: %v", err)
	}
	return messageID
}

func uintPtr(value uint) *uint {
	return &value
}
