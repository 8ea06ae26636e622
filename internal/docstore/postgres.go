package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notifyChannel = "doc_changes"

// PostgresStore implements Store over a single jsonb documents table. Live
// queries ride on LISTEN/NOTIFY: every write notifies the touched collection
// and each matching subscription re-runs its query to produce the next full
// snapshot.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu        sync.Mutex
	subs      map[int]*pgSubscription
	nextSubID int
	closed    bool

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewPostgresStore starts the notification listener and returns the store.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool:         pool,
		logger:       logger,
		subs:         make(map[int]*pgSubscription),
		listenCancel: cancel,
		listenDone:   make(chan struct{}),
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		cancel()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	go s.listen(listenCtx, conn)
	return s, nil
}

func (s *PostgresStore) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(s.listenDone)
	defer conn.Release()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("docstore listener failed", "error", err)
				s.failSubscriptions(fmt.Errorf("notification listener: %w", err))
			}
			return
		}
		s.wake(notification.Payload)
	}
}

func (s *PostgresStore) wake(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

// failSubscriptions terminates every live subscription with the given error.
// Feeds surface this as an inline failure and stop updating until the caller
// re-establishes the subscription.
func (s *PostgresStore) failSubscriptions(err error) {
	s.mu.Lock()
	subs := make([]*pgSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fail(err)
	}
}

// Get retrieves a document by collection and id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, data, created_at, updated_at
        FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// Set writes a document at a known id, shallow-merging when requested.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return s.ApplyBatch(ctx, []Write{{Collection: collection, ID: id, Data: data, Merge: merge}})
}

// Update shallow-merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	payload, err := encodeData(fields)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE documents
        SET data = data || $3::jsonb, updated_at = now()
        WHERE collection = $1 AND id = $2
    `, collection, id, payload)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.notifyCollection(ctx, conn, collection)
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM documents
        WHERE collection = $1 AND id = $2
    `, collection, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.notifyCollection(ctx, conn, collection)
	return nil
}

// Add creates a document with a generated id.
func (s *PostgresStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	if err := s.ApplyBatch(ctx, []Write{{Collection: collection, ID: id, Data: data}}); err != nil {
		return "", err
	}
	return id, nil
}

// ApplyBatch applies all writes in one retryable transaction so concurrent
// writers to the same documents serialize cleanly.
func (s *PostgresStore) ApplyBatch(ctx context.Context, writes []Write) error {
	now := time.Now().UTC()
	touched := make(map[string]struct{})

	err := crdbpgx.ExecuteTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, w := range writes {
			id := w.ID
			if id == "" {
				id = uuid.NewString()
			}
			payload, err := encodeData(resolveServerTimestamps(w.Data, now))
			if err != nil {
				return err
			}

			var sql string
			if w.Merge {
				sql = `
                    INSERT INTO documents (collection, id, data, created_at, updated_at)
                    VALUES ($1, $2, $3::jsonb, now(), now())
                    ON CONFLICT (collection, id)
                    DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()
                `
			} else {
				sql = `
                    INSERT INTO documents (collection, id, data, created_at, updated_at)
                    VALUES ($1, $2, $3::jsonb, now(), now())
                    ON CONFLICT (collection, id)
                    DO UPDATE SET data = EXCLUDED.data, updated_at = now()
                `
			}
			if _, err := tx.Exec(ctx, sql, w.Collection, id, payload); err != nil {
				return fmt.Errorf("write document %s/%s: %w", w.Collection, id, err)
			}
			touched[w.Collection] = struct{}{}
		}

		for collection := range touched {
			if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
				return fmt.Errorf("notify %s: %w", collection, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	return nil
}

// Query returns all documents of a collection matching the filters.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]Document, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return s.queryConn(ctx, conn, collection, filters, order)
}

func (s *PostgresStore) queryConn(ctx context.Context, conn *pgxpool.Conn, collection string, filters []Filter, order *Order) ([]Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range filters {
		containment, err := filterContainment(f)
		if err != nil {
			return nil, err
		}
		args = append(args, containment)
		fmt.Fprintf(&sb, " AND data @> $%d::jsonb", len(args))
	}

	if order != nil {
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		// Timestamps are stored as fixed-width RFC 3339 strings, so text
		// ordering is chronological.
		fmt.Fprintf(&sb, " ORDER BY data->>%s %s", quoteLiteral(order.Field), direction)
	} else {
		sb.WriteString(" ORDER BY id")
	}

	rows, err := conn.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// LiveQuery registers a subscription driven by the notification listener.
func (s *PostgresStore) LiveQuery(ctx context.Context, collection string, filters []Filter, order *Order) (Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextSubID++
	sub := &pgSubscription{
		store:      s,
		id:         s.nextSubID,
		collection: collection,
		filters:    filters,
		order:      order,
		snapshots:  make(chan Snapshot, 1),
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// Close stops the listener and terminates all subscriptions. The pool itself
// is owned by the caller.
func (s *PostgresStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*pgSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	s.listenCancel()
	<-s.listenDone
}

func (s *PostgresStore) removeSub(id int) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// notifyCollection wakes listeners after a non-batch write. Failures are
// logged rather than propagated: the write itself already succeeded.
func (s *PostgresStore) notifyCollection(ctx context.Context, conn *pgxpool.Conn, collection string) {
	if _, err := conn.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		s.logger.Warn("notify collection", "collection", collection, "error", err)
	}
}

type pgSubscription struct {
	store      *PostgresStore
	id         int
	collection string
	filters    []Filter
	order      *Order

	snapshots chan Snapshot
	dirty     chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	done      chan struct{}
}

func (p *pgSubscription) run(ctx context.Context) {
	defer close(p.snapshots)
	defer p.store.removeSub(p.id)

	for {
		docs, err := p.store.Query(ctx, p.collection, p.filters, p.order)
		if err != nil {
			p.setErr(err)
			return
		}

		select {
		case p.snapshots <- Snapshot{Docs: docs}:
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}

		select {
		case <-p.dirty:
		case <-p.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *pgSubscription) Snapshots() <-chan Snapshot { return p.snapshots }

func (p *pgSubscription) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *pgSubscription) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *pgSubscription) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *pgSubscription) fail(err error) {
	p.setErr(err)
	p.Close()
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc Document
		raw []byte
	)
	if err := row.Scan(&doc.ID, &raw, &doc.CreateTime, &doc.UpdateTime); err != nil {
		return Document{}, err
	}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode document data: %w", err)
	}
	return doc, nil
}

func encodeData(data map[string]any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}
	return payload, nil
}

func filterContainment(f Filter) ([]byte, error) {
	switch f.Op {
	case OpEqual:
		return json.Marshal(map[string]any{f.Field: f.Value})
	case OpArrayContains:
		return json.Marshal(map[string]any{f.Field: []any{f.Value}})
	default:
		return nil, fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

// quoteLiteral renders a trusted field name as a SQL string literal. Field
// names come from code, never from user input.
func quoteLiteral(field string) string {
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}
