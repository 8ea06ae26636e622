package models

import "time"

// Account represents a sign-in identity managed by the identity provider.
type Account struct {
	ID          string
	Email       string
	Password    string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile is the public user document stored in the "users" collection.
type Profile struct {
	UID            string `json:"uid"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

// MediaKind classifies a stored object by its filename extension.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	KindImage MediaKind = "image"
	KindNone  MediaKind = "none"
)

// MediaItem describes a resolved, playable stored object. Immutable once
// resolved for a given page view.
type MediaItem struct {
	Path        string    `json:"path"`
	DisplayName string    `json:"displayName"`
	Kind        MediaKind `json:"kind"`
	URL         string    `json:"url"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Comment is a viewer comment attached to one media file. Comments are
// created and deleted by their author; there is no edit operation.
type Comment struct {
	ID         string    `json:"id"`
	FileID     string    `json:"fileId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	AvatarURL  string    `json:"avatarUrl,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Conversation is the per-pair thread document. Exactly one exists for an
// unordered pair of participants; its id is symmetric in the pair.
type Conversation struct {
	ID              string         `json:"id"`
	Participants    []string       `json:"participants"`
	LastMessage     string         `json:"lastMessage"`
	LastMessageTime time.Time      `json:"lastMessageTime"`
	UnreadCount     map[string]int `json:"unreadCount"`
}

// Message belongs to exactly one conversation and is immutable once created.
// Messages order ascending by their server-assigned timestamp.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
