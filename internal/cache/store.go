// Package cache implements the durable offline-first local store.
//
// Every user has a partition of JSON documents, one storage row per
// (userId, kind) pair, kind being "notes", "tags", "pending_changes" or
// "last_sync". Temporal values are normalized to a portable string form on
// write and restored to time.Time on read, recursively through nested
// structures. Reads never fail: missing or corrupted rows degrade to empty
// collections so the application keeps working on whatever survives.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	doc        TEXT NOT NULL DEFAULT '{}',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, kind)
);
`

// Internal collection kinds alongside models.KindNotes / models.KindTags.
const (
	kindPending  = "pending_changes"
	kindLastSync = "last_sync"
)

// Pending change operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Change is one queued remote operation awaiting replay. The queue is only
// consulted by manual synchronization; mutations never block on it.
type Change struct {
	ID        string         `json:"id"`
	Op        string         `json:"op"`
	Kind      string         `json:"kind"`
	EntityID  string         `json:"entityId"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the SQLite-backed local cache.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the cache database and applies the schema.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// GetAll returns the id-keyed documents of one collection. Missing rows and
// rows that no longer parse both yield an empty map.
func (s *Store) GetAll(userID, kind string) map[string]map[string]any {
	raw, ok := s.loadRaw(userID, kind)
	if !ok {
		return map[string]map[string]any{}
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		s.logger.Warn("cache: corrupted collection, degrading to empty",
			slog.String("user_id", userID), slog.String("kind", kind),
			slog.String("error", err.Error()))
		return map[string]map[string]any{}
	}
	out := make(map[string]map[string]any, len(decoded))
	for id, msg := range decoded {
		var doc map[string]any
		if err := json.Unmarshal(msg, &doc); err != nil {
			s.logger.Warn("cache: skipping corrupted record",
				slog.String("user_id", userID), slog.String("kind", kind), slog.String("id", id))
			continue
		}
		out[id] = Restore(doc).(map[string]any)
	}
	return out
}

// Put writes one document under its id, preserving the rest of the
// collection. The read-modify-write is a single atomic step from the
// caller's perspective; the orchestrator serializes callers per user.
func (s *Store) Put(userID, kind, id string, doc map[string]any) error {
	all := s.GetAll(userID, kind)
	all[id] = doc
	return s.PutAll(userID, kind, all)
}

// PutAll replaces a whole collection.
func (s *Store) PutAll(userID, kind string, docs map[string]map[string]any) error {
	normalized := make(map[string]any, len(docs))
	for id, doc := range docs {
		normalized[id] = Normalize(doc)
	}
	return s.saveRaw(userID, kind, normalized)
}

// Delete removes one document. Deleting an absent id is a no-op.
func (s *Store) Delete(userID, kind, id string) error {
	all := s.GetAll(userID, kind)
	if _, ok := all[id]; !ok {
		return nil
	}
	delete(all, id)
	return s.PutAll(userID, kind, all)
}

// Promote rewrites a local-temporary id to the server-assigned one: the
// document moves to the new key with its id field updated and its isLocal
// flag cleared. Calling it again after the local entry is gone is a no-op.
func (s *Store) Promote(userID, kind, localID, remoteID string) error {
	all := s.GetAll(userID, kind)
	doc, ok := all[localID]
	if !ok {
		return nil
	}
	doc["id"] = remoteID
	doc["isLocal"] = false
	all[remoteID] = doc
	delete(all, localID)
	return s.PutAll(userID, kind, all)
}

// Clear removes every row of a user's partition in one statement.
func (s *Store) Clear(userID string) error {
	if _, err := s.conn.Exec(`DELETE FROM cache_entries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("cache: clear partition: %w", err)
	}
	return nil
}

// PendingChanges returns the queued remote operations, oldest first.
// Corrupted queues degrade to empty.
func (s *Store) PendingChanges(userID string) []Change {
	raw, ok := s.loadRaw(userID, kindPending)
	if !ok {
		return nil
	}
	var changes []Change
	if err := json.Unmarshal(raw, &changes); err != nil {
		s.logger.Warn("cache: corrupted pending queue, degrading to empty",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	for i := range changes {
		if changes[i].Data != nil {
			changes[i].Data = Restore(changes[i].Data).(map[string]any)
		}
	}
	return changes
}

// AppendPending adds one change to the end of the queue.
func (s *Store) AppendPending(userID string, change Change) error {
	changes := s.PendingChanges(userID)
	if change.Data != nil {
		change.Data = Normalize(change.Data).(map[string]any)
	}
	changes = append(changes, change)
	return s.saveRaw(userID, kindPending, changes)
}

// SetPending replaces the queue, typically with the changes that survived a
// replay attempt.
func (s *Store) SetPending(userID string, changes []Change) error {
	for i := range changes {
		if changes[i].Data != nil {
			changes[i].Data = Normalize(changes[i].Data).(map[string]any)
		}
	}
	if changes == nil {
		changes = []Change{}
	}
	return s.saveRaw(userID, kindPending, changes)
}

// SetLastSync stamps the time of the last successful full pull.
func (s *Store) SetLastSync(userID string, t time.Time) error {
	return s.saveRaw(userID, kindLastSync, t.Format(TimeLayout))
}

// LastSync returns the last full-pull time, or false when none is recorded.
func (s *Store) LastSync(userID string) (time.Time, bool) {
	raw, ok := s.loadRaw(userID, kindLastSync)
	if !ok {
		return time.Time{}, false
	}
	var stamp string
	if err := json.Unmarshal(raw, &stamp); err != nil {
		return time.Time{}, false
	}
	t, ok := parseTimestamp(stamp)
	return t, ok
}

func (s *Store) loadRaw(userID, kind string) (json.RawMessage, bool) {
	var doc string
	err := s.conn.QueryRow(
		`SELECT doc FROM cache_entries WHERE user_id = ? AND kind = ?`, userID, kind,
	).Scan(&doc)
	if err != nil {
		if err != sql.ErrNoRows {
			s.logger.Warn("cache: read failed, degrading to empty",
				slog.String("user_id", userID), slog.String("kind", kind),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	return json.RawMessage(doc), true
}

func (s *Store) saveRaw(userID, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", kind, err)
	}
	_, err = s.conn.Exec(`
		INSERT INTO cache_entries (user_id, kind, doc, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET
			doc        = excluded.doc,
			updated_at = excluded.updated_at
	`, userID, kind, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", kind, err)
	}
	return nil
}
