// Package docstore defines the narrow document-database interface the rest of
// the service is written against, together with the live-query subscription
// contract. Two implementations exist: an in-memory store used by tests and
// local development, and a PostgreSQL store used in production.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrClosed indicates the store or a subscription has been shut down.
var ErrClosed = errors.New("docstore closed")

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp marks a field to be stamped with the store's clock at write
// time. The client never supplies its own time for such fields.
var ServerTimestamp = serverTimestamp{}

// Document is a decoded document together with its identity.
type Document struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// Op enumerates the supported filter operators.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field matches a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order sorts query results by a single field.
type Order struct {
	Field string
	Desc  bool
}

// Write describes one mutation inside a batch. An empty ID on a non-merge
// write requests a generated id.
type Write struct {
	Collection string
	ID         string
	Data       map[string]any
	Merge      bool
}

// Snapshot carries the full current result set of a live query. Deltas are
// never delivered; consumers replace their prior state wholesale.
type Snapshot struct {
	Docs []Document
}

// Subscription is a cancellable live-query stream. Snapshots are delivered in
// the order the store emits them; no ordering holds across independent
// subscriptions. Close must be called before establishing a replacement
// subscription of the same kind and on navigation away or sign-out.
type Subscription interface {
	// Snapshots yields result sets until the subscription is closed or fails.
	// The channel is closed afterwards; Err reports a terminal failure.
	Snapshots() <-chan Snapshot
	// Err returns the terminal error, if any, after Snapshots is closed.
	Err() error
	// Close releases the subscription. Safe to call more than once.
	Close()
}

// Store is the document-database surface. Collections are slash-separated
// paths, which accommodates subcollections such as
// "conversations/{id}/messages".
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes a document at a known id. With merge, present fields are
	// shallow-merged over the existing document and absent fields preserved.
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	// Update modifies fields of an existing document; ErrNotFound if absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Add creates a document with a generated id and returns it.
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error)
	// LiveQuery delivers the current result set immediately and again after
	// every relevant change.
	LiveQuery(ctx context.Context, collection string, filters []Filter, order *Order) (Subscription, error)
	// ApplyBatch applies all writes atomically, in order.
	ApplyBatch(ctx context.Context, writes []Write) error
	Close()
}

// timeLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing fractional zeros, which breaks the lexicographic ordering the
// stores sort by; the fixed width keeps text and chronological order aligned.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EncodeTime renders a timestamp into its stored representation.
func EncodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// DecodeTime parses a stored timestamp, returning the zero time on absence or
// malformed input rather than failing the whole document.
func DecodeTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// String reads a string field, defaulting to empty.
func String(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// StringSlice reads a []string field, tolerating []any from JSON decoding.
func StringSlice(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IntMap reads a map[string]int field, tolerating the numeric types JSON
// decoding produces. Missing fields yield an empty, non-nil map.
func IntMap(data map[string]any, key string) map[string]int {
	out := make(map[string]int)
	raw, ok := data[key].(map[string]any)
	if !ok {
		if typed, ok := data[key].(map[string]int); ok {
			for k, v := range typed {
				out[k] = v
			}
		}
		return out
	}
	for k, v := range raw {
		switch n := v.(type) {
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		case float64:
			out[k] = int(n)
		}
	}
	return out
}

// Time reads a timestamp field, defaulting to the zero time.
func Time(data map[string]any, key string) time.Time {
	return DecodeTime(data[key])
}

// resolveServerTimestamps replaces sentinel values with the provided clock
// reading. Called by every implementation at its write boundary.
func resolveServerTimestamps(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = EncodeTime(now)
			continue
		}
		out[k] = v
	}
	return out
}
