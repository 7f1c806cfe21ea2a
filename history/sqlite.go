package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dtessler/coxswain/llm"
	"github.com/dtessler/coxswain/session"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultQueueSize     = 64
)

// snapshot is one queued save: the full message history of a session at
// the moment Save was called.
type snapshot struct {
	sessionID string
	userID    string
	messages  []session.Message
}

// SQLiteStore persists session histories to a SQLite database. Saves are
// queued and flushed by a background writer; the newest snapshot per
// session wins.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	queue   []snapshot
	maxSize int

	flushInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithFlushInterval overrides how often queued snapshots are written.
func WithFlushInterval(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithQueueSize overrides the pending-snapshot limit. When the queue is
// full the oldest snapshot is dropped to make room.
func WithQueueSize(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithLogger sets the logger for the background writer.
func WithLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// starts the background writer.
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:            db,
		logger:        slog.Default(),
		maxSize:       defaultQueueSize,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		tool_call_id TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the persisted memory for a session in append order, or an
// empty memory when nothing has been saved for it.
func (s *SQLiteStore) Load(ctx context.Context, sessionID, userID string) (*session.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp, tool_call_id
		FROM messages WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []session.Message
	for rows.Next() {
		var msg session.Message
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp, &msg.ToolCallID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = llm.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return session.NewMemoryFromMessages(messages), nil
}

// Save queues a snapshot of the session's current messages. When the queue
// is full the oldest pending snapshot is dropped.
func (s *SQLiteStore) Save(sessionID string, mem *session.Memory, userID string) {
	snap := snapshot{sessionID: sessionID, userID: userID, messages: mem.Messages()}

	s.mu.Lock()
	if len(s.queue) >= s.maxSize {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		s.logger.Warn("history queue full, dropping oldest snapshot",
			"session_id", dropped.sessionID, "queue_size", s.maxSize)
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()
}

// ListSessions returns summaries of persisted sessions, most recently
// updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.updated_at, COUNT(m.seq)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id ORDER BY s.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.UserID, &info.UpdatedAt, &info.Messages); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close stops the background writer, flushes anything still queued, and
// closes the database.
func (s *SQLiteStore) Close() error {
	close(s.done)
	s.wg.Wait()
	s.flush()
	return s.db.Close()
}

func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			return
		}
	}
}

// flush writes all queued snapshots. Each snapshot replaces the session's
// stored messages wholesale, so the newest snapshot for a session wins.
func (s *SQLiteStore) flush() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, snap := range pending {
		if err := s.writeSnapshot(snap); err != nil {
			s.logger.Error("history write failed",
				"session_id", snap.sessionID, "error", err)
		}
	}
}

func (s *SQLiteStore) writeSnapshot(snap snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.Exec(`
		INSERT INTO sessions (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at
	`, snap.sessionID, snap.userID, now, now); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, snap.sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, msg := range snap.messages {
		if _, err := tx.Exec(`
			INSERT INTO messages (session_id, seq, role, content, timestamp, tool_call_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, snap.sessionID, i, string(msg.Role), msg.Content, msg.Timestamp, msg.ToolCallID); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}
