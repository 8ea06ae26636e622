package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/profiles"
)

func TestConversationIDSymmetric(t *testing.T) {
	if ConversationID("alice", "bob") != ConversationID("bob", "alice") {
		t.Fatal("expected a symmetric conversation id")
	}
	if got := ConversationID("bob", "alice"); got != "alice_bob" {
		t.Fatalf("expected sorted pair, got %q", got)
	}
}

func newTestMessenger(store *docstore.MemoryStore, uid string) *Messenger {
	return NewMessenger(store, profiles.NewService(store, nil), uid)
}

func seedProfile(t *testing.T, store *docstore.MemoryStore, uid, username string) {
	t.Helper()
	err := store.Set(context.Background(), "users", uid, map[string]any{
		"uid":      uid,
		"username": username,
	}, false)
	if err != nil {
		t.Fatalf("seed profile %s: %v", uid, err)
	}
}

func TestSendMessageCreatesConversation(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	msgr := newTestMessenger(store, "alice")

	if err := msgr.SendMessage(ctx, "bob", "hi bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	doc, err := store.Get(ctx, "conversations", "alice_bob")
	if err != nil {
		t.Fatalf("conversation doc: %v", err)
	}
	if docstore.String(doc.Data, "lastMessage") != "hi bob" {
		t.Fatalf("expected last message recorded, got %q", docstore.String(doc.Data, "lastMessage"))
	}
	unread := docstore.IntMap(doc.Data, "unreadCount")
	if unread["bob"] != 1 || unread["alice"] != 0 {
		t.Fatalf("expected recipient unread 1, sender 0, got %v", unread)
	}
}

func TestSendMessageIncrementsRecipientUnread(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	msgr := newTestMessenger(store, "alice")

	for i := 0; i < 3; i++ {
		if err := msgr.SendMessage(ctx, "bob", "ping"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	doc, _ := store.Get(ctx, "conversations", "alice_bob")
	if unread := docstore.IntMap(doc.Data, "unreadCount"); unread["bob"] != 3 {
		t.Fatalf("expected 3 unread for recipient, got %d", unread["bob"])
	}
}

func TestSendMessageValidation(t *testing.T) {
	msgr := newTestMessenger(docstore.NewMemoryStore(), "alice")
	ctx := context.Background()

	if err := msgr.SendMessage(ctx, "bob", "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for blank text, got %v", err)
	}
	if err := msgr.SendMessage(ctx, "alice", "hi"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for self recipient, got %v", err)
	}
	if err := msgr.SendMessage(ctx, "", "hi"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty recipient, got %v", err)
	}
}

func TestThreadOrdersOldestFirst(t *testing.T) {
	store := docstore.NewMemoryStore()
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.NowFunc = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	ctx := context.Background()
	alice := newTestMessenger(store, "alice")
	bob := newTestMessenger(store, "bob")

	if err := alice.SendMessage(ctx, "bob", "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := bob.SendMessage(ctx, "alice", "second"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := alice.SendMessage(ctx, "bob", "third"); err != nil {
		t.Fatalf("send: %v", err)
	}

	messages, err := bob.Thread(ctx, "alice")
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].Text != "first" || messages[2].Text != "third" {
		t.Fatalf("expected oldest first, got %q..%q", messages[0].Text, messages[2].Text)
	}
	if messages[1].SenderID != "bob" {
		t.Fatalf("expected sender recorded, got %q", messages[1].SenderID)
	}
}

func TestThreadResetsOwnUnreadOnly(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	alice := newTestMessenger(store, "alice")
	bob := newTestMessenger(store, "bob")

	if err := alice.SendMessage(ctx, "bob", "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := bob.SendMessage(ctx, "alice", "two"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// alice has 1 unread from bob, bob has 1 unread from alice.
	if _, err := bob.Thread(ctx, "alice"); err != nil {
		t.Fatalf("thread: %v", err)
	}

	doc, _ := store.Get(ctx, "conversations", "alice_bob")
	unread := docstore.IntMap(doc.Data, "unreadCount")
	if unread["bob"] != 0 {
		t.Fatalf("expected reader's counter zeroed, got %d", unread["bob"])
	}
	if unread["alice"] != 1 {
		t.Fatalf("expected counterpart's counter untouched, got %d", unread["alice"])
	}
}

func TestThreadRejectsSelf(t *testing.T) {
	msgr := newTestMessenger(docstore.NewMemoryStore(), "alice")
	if _, err := msgr.Thread(context.Background(), "alice"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConversationsScopedToViewer(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	seedProfile(t, store, "bob", "Bob")
	seedProfile(t, store, "carol", "Carol")

	alice := newTestMessenger(store, "alice")
	carol := newTestMessenger(store, "carol")
	if err := alice.SendMessage(ctx, "bob", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := carol.SendMessage(ctx, "bob", "hey"); err != nil {
		t.Fatalf("send: %v", err)
	}

	views, err := alice.Conversations(ctx)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected only alice's conversation, got %d", len(views))
	}
	if views[0].OtherUserID != "bob" || views[0].OtherUsername != "Bob" {
		t.Fatalf("expected counterpart profile attached, got %+v", views[0])
	}
}

func TestConversationsUnknownCounterpart(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	alice := newTestMessenger(store, "alice")

	if err := alice.SendMessage(ctx, "ghost", "anyone there"); err != nil {
		t.Fatalf("send: %v", err)
	}

	views, err := alice.Conversations(ctx)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if views[0].OtherUsername != "Unknown User" {
		t.Fatalf("expected fallback display name, got %q", views[0].OtherUsername)
	}
}

func TestOpenThreadDeliversLiveMessages(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	seedProfile(t, store, "bob", "Bob")

	alice := newTestMessenger(store, "alice")
	defer alice.Dispose()

	snapshots := make(chan []models.Message, 4)
	profile, err := alice.OpenThread(ctx, "bob", func(messages []models.Message) {
		snapshots <- messages
	}, nil)
	if err != nil {
		t.Fatalf("open thread: %v", err)
	}
	if profile.Username != "Bob" {
		t.Fatalf("expected counterpart profile, got %+v", profile)
	}

	if got := waitMessages(t, snapshots); len(got) != 0 {
		t.Fatalf("expected empty initial delivery, got %d", len(got))
	}

	if err := alice.SendMessage(ctx, "bob", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := waitMessages(t, snapshots)
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("expected the sent message delivered, got %+v", got)
	}
}

func TestOpenThreadUnknownCounterpart(t *testing.T) {
	store := docstore.NewMemoryStore()
	alice := newTestMessenger(store, "alice")
	defer alice.Dispose()

	profile, err := alice.OpenThread(context.Background(), "ghost", func([]models.Message) {}, nil)
	if err != nil {
		t.Fatalf("open thread: %v", err)
	}
	if profile.Username != "Unknown User" {
		t.Fatalf("expected fallback profile, got %+v", profile)
	}
}

func waitMessages(t *testing.T, ch <-chan []models.Message) []models.Message {
	t.Helper()
	select {
	case messages := <-ch:
		return messages
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message delivery")
		return nil
	}
}
