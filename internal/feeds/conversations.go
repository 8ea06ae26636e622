package feeds

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syncovids/backend/internal/apperr"
	"github.com/syncovids/backend/internal/docstore"
	"github.com/syncovids/backend/internal/models"
	"github.com/syncovids/backend/internal/profiles"
)

const conversationsCollection = "conversations"

// ConversationID derives the single thread id for an unordered user pair.
// Symmetric: ConversationID(a, b) == ConversationID(b, a).
func ConversationID(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

func messagesCollection(conversationID string) string {
	return conversationsCollection + "/" + conversationID + "/messages"
}

// ConversationView is a conversation enriched with the counterpart's profile
// for the signed-in viewer.
type ConversationView struct {
	models.Conversation
	OtherUserID    string `json:"otherUserId"`
	OtherUsername  string `json:"otherUsername"`
	OtherAvatarURL string `json:"otherAvatarUrl,omitempty"`
	Unread         int    `json:"unread"`
}

// Messenger runs the conversation list and per-thread message feeds for one
// signed-in user. At most one subscription of each kind is active; switching
// threads releases the prior messages subscription first.
type Messenger struct {
	store    docstore.Store
	profiles *profiles.Service
	uid      string

	mu      sync.Mutex
	convSub docstore.Subscription
	msgSub  docstore.Subscription
}

// NewMessenger constructs the feed pair for a signed-in user.
func NewMessenger(store docstore.Store, profileSvc *profiles.Service, uid string) *Messenger {
	return &Messenger{store: store, profiles: profileSvc, uid: uid}
}

// SubscribeConversations attaches the live conversation list, ordered by last
// message time descending.
func (m *Messenger) SubscribeConversations(ctx context.Context, deliver func([]ConversationView), onError func(error)) error {
	m.mu.Lock()
	if m.convSub != nil {
		m.convSub.Close()
		m.convSub = nil
	}
	m.mu.Unlock()

	sub, err := m.store.LiveQuery(ctx, conversationsCollection,
		[]docstore.Filter{{Field: "participants", Op: docstore.OpArrayContains, Value: m.uid}},
		&docstore.Order{Field: "lastMessageTime", Desc: true},
	)
	if err != nil {
		return apperr.Transient(err)
	}

	m.mu.Lock()
	m.convSub = sub
	m.mu.Unlock()

	go func() {
		for snapshot := range sub.Snapshots() {
			views := make([]ConversationView, 0, len(snapshot.Docs))
			for _, doc := range snapshot.Docs {
				views = append(views, m.viewFromDoc(ctx, doc))
			}
			deliver(views)
		}
		if err := sub.Err(); err != nil && onError != nil {
			onError(apperr.Transient(err))
		}
	}()
	return nil
}

// Conversations returns a one-shot snapshot of the viewer's conversation
// list, ordered by last message time descending.
func (m *Messenger) Conversations(ctx context.Context) ([]ConversationView, error) {
	docs, err := m.store.Query(ctx, conversationsCollection,
		[]docstore.Filter{{Field: "participants", Op: docstore.OpArrayContains, Value: m.uid}},
		&docstore.Order{Field: "lastMessageTime", Desc: true},
	)
	if err != nil {
		return nil, apperr.Transient(err)
	}

	views := make([]ConversationView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, m.viewFromDoc(ctx, doc))
	}
	return views, nil
}

// Thread returns a one-shot snapshot of the messages exchanged with the
// counterpart, oldest first, and zeroes the viewer's unread counter.
func (m *Messenger) Thread(ctx context.Context, otherUID string) ([]models.Message, error) {
	if otherUID == "" || otherUID == m.uid {
		return nil, apperr.Validation("cannot open a thread with yourself")
	}

	conversationID := ConversationID(m.uid, otherUID)
	if err := m.resetUnread(ctx, conversationID); err != nil {
		return nil, err
	}

	docs, err := m.store.Query(ctx, messagesCollection(conversationID), nil,
		&docstore.Order{Field: "timestamp", Desc: false})
	if err != nil {
		return nil, apperr.Transient(err)
	}

	messages := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, messageFromDoc(doc))
	}
	return messages, nil
}

// OpenThread resolves the deterministic conversation id for the counterpart,
// fetches their display profile, zeroes the opener's unread counter, and
// attaches the live message feed ordered ascending by server timestamp. Any
// prior message subscription is released first.
func (m *Messenger) OpenThread(ctx context.Context, otherUID string, deliver func([]models.Message), onError func(error)) (models.Profile, error) {
	if otherUID == "" || otherUID == m.uid {
		return models.Profile{}, apperr.Validation("cannot open a thread with yourself")
	}

	profile, err := m.profiles.Get(ctx, otherUID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return models.Profile{}, err
	}
	if profile.Username == "" {
		profile = models.Profile{UID: otherUID, Username: "Unknown User"}
	}

	conversationID := ConversationID(m.uid, otherUID)
	if err := m.resetUnread(ctx, conversationID); err != nil {
		return models.Profile{}, err
	}

	m.mu.Lock()
	if m.msgSub != nil {
		m.msgSub.Close()
		m.msgSub = nil
	}
	m.mu.Unlock()

	sub, err := m.store.LiveQuery(ctx, messagesCollection(conversationID), nil,
		&docstore.Order{Field: "timestamp", Desc: false})
	if err != nil {
		return models.Profile{}, apperr.Transient(err)
	}

	m.mu.Lock()
	m.msgSub = sub
	m.mu.Unlock()

	go func() {
		for snapshot := range sub.Snapshots() {
			messages := make([]models.Message, 0, len(snapshot.Docs))
			for _, doc := range snapshot.Docs {
				messages = append(messages, messageFromDoc(doc))
			}
			deliver(messages)
		}
		if err := sub.Err(); err != nil && onError != nil {
			onError(apperr.Transient(err))
		}
	}()
	return profile, nil
}

// SendMessage appends a message and updates the conversation document as one
// atomic batch: last message text and time, recipient's unread counter
// incremented, sender's zeroed. The conversation is created on first send
// with merge semantics, preserving fields outside this update.
func (m *Messenger) SendMessage(ctx context.Context, recipientUID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.Validation("message text is required")
	}
	if recipientUID == "" || recipientUID == m.uid {
		return apperr.Validation("recipient is required")
	}

	conversationID := ConversationID(m.uid, recipientUID)

	unread := map[string]int{}
	if doc, err := m.store.Get(ctx, conversationsCollection, conversationID); err == nil {
		unread = docstore.IntMap(doc.Data, "unreadCount")
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return apperr.Transient(err)
	}
	unread[recipientUID]++
	unread[m.uid] = 0

	err := m.store.ApplyBatch(ctx, []docstore.Write{
		{
			Collection: messagesCollection(conversationID),
			Data: map[string]any{
				"senderId":  m.uid,
				"text":      text,
				"timestamp": docstore.ServerTimestamp,
			},
		},
		{
			Collection: conversationsCollection,
			ID:         conversationID,
			Merge:      true,
			Data: map[string]any{
				"participants":    []string{m.uid, recipientUID},
				"lastMessage":     text,
				"lastMessageTime": docstore.ServerTimestamp,
				"unreadCount":     unread,
			},
		},
	})
	if err != nil {
		return apperr.Transient(err)
	}
	return nil
}

// CloseThread releases the message subscription, keeping the conversation
// list attached.
func (m *Messenger) CloseThread() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgSub != nil {
		m.msgSub.Close()
		m.msgSub = nil
	}
}

// Dispose releases every subscription this messenger owns. Called on
// sign-out and navigation away.
func (m *Messenger) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgSub != nil {
		m.msgSub.Close()
		m.msgSub = nil
	}
	if m.convSub != nil {
		m.convSub.Close()
		m.convSub = nil
	}
}

// resetUnread zeroes the opener's own counter, leaving the counterpart's
// untouched. A missing conversation needs no reset.
func (m *Messenger) resetUnread(ctx context.Context, conversationID string) error {
	doc, err := m.store.Get(ctx, conversationsCollection, conversationID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return apperr.Transient(err)
	}

	unread := docstore.IntMap(doc.Data, "unreadCount")
	if unread[m.uid] == 0 {
		return nil
	}
	unread[m.uid] = 0

	if err := m.store.Update(ctx, conversationsCollection, conversationID, map[string]any{
		"unreadCount": unread,
	}); err != nil {
		return apperr.Transient(err)
	}
	return nil
}

func (m *Messenger) viewFromDoc(ctx context.Context, doc docstore.Document) ConversationView {
	conv := conversationFromDoc(doc)

	otherUID := ""
	for _, participant := range conv.Participants {
		if participant != m.uid {
			otherUID = participant
			break
		}
	}

	view := ConversationView{
		Conversation:  conv,
		OtherUserID:   otherUID,
		OtherUsername: "Unknown User",
		Unread:        conv.UnreadCount[m.uid],
	}
	if profile, err := m.profiles.Get(ctx, otherUID); err == nil {
		view.OtherUsername = profile.Username
		view.OtherAvatarURL = profile.ProfilePicture
	}
	return view
}

func conversationFromDoc(doc docstore.Document) models.Conversation {
	return models.Conversation{
		ID:              doc.ID,
		Participants:    docstore.StringSlice(doc.Data, "participants"),
		LastMessage:     docstore.String(doc.Data, "lastMessage"),
		LastMessageTime: docstore.Time(doc.Data, "lastMessageTime"),
		UnreadCount:     docstore.IntMap(doc.Data, "unreadCount"),
	}
}

func messageFromDoc(doc docstore.Document) models.Message {
	return models.Message{
		ID:        doc.ID,
		SenderID:  docstore.String(doc.Data, "senderId"),
		Text:      docstore.String(doc.Data, "text"),
		Timestamp: docstore.Time(doc.Data, "timestamp"),
	}
}
