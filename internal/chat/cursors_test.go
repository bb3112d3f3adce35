package chat

import (
	"context"
	"errors"
	"testing"
)

func TestSetLastReadIsIdempotent(t *testing.T) {
	service, db := newTestService(t)
	user := createTestUser(t, db, "alice")
	channel := createTestChannel(t, service, "general")
	message := postTestMessage(t, service, user, channel, "hi", nil)

	for i := 0; i < 2; i++ {
		if err := service.SetLastRead(context.Background(), user, channel, message); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i+1, err)
		}
	}

	cursor, set, err := service.LastRead(context.Background(), user, channel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set || cursor != message {
		t.Fatalf("expected cursor %d, got %d (set=%v)", message, cursor, set)
	}
}

func TestSetLastReadOverwritesUnconditionally(t *testing.T) {
	service, db := newTestService(t)
	user := createTestUser(t, db, "alice")
	channel := createTestChannel(t, service, "general")
	first := postTestMessage(t, service, user, channel, "one", nil)
	second := postTestMessage(t, service, user, channel, "two", nil)

	if err := service.SetLastRead(context.Background(), user, channel, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Moving the cursor backwards is allowed and raises the unread count again.
	if err := service.SetLastRead(context.Background(), user, channel, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cursor, _, err := service.LastRead(context.Background(), user, channel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cursor != first {
		t.Fatalf("expected cursor to move back to %d, got %d", first, cursor)
	}

	counts, err := service.UnreadCounts(context.Background(), user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[channel] != 1 {
		t.Fatalf("expected 1 unread after rewinding cursor, got %d", counts[channel])
	}
}

func TestLastReadUnsetPair(t *testing.T) {
	service, db := newTestService(t)
	user := createTestUser(t, db, "alice")
	channel := createTestChannel(t, service, "general")

	cursor, set, err := service.LastRead(context.Background(), user, channel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set || cursor != 0 {
		t.Fatalf("expected unset cursor, got %d (set=%v)", cursor, set)
	}
}

func TestMarkReadVerifiesMessageBelongsToChannel(t *testing.T) {
	service, db := newTestService(t)
	user := createTestUser(t, db, "alice")
	general := createTestChannel(t, service, "general")
	random := createTestChannel(t, service, "random")
	message := postTestMessage(t, service, user, general, "hi", nil)

	err := service.MarkRead(context.Background(), user, random, message)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for message outside channel, got %v", err)
	}

	if err := service.MarkRead(context.Background(), user, general, message); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
