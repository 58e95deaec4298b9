package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

var openDB = sql.Open

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
	defaultEventLimit  = 5
)

type Config struct {
	Path             string `envconfig:"PATH" split_words:"true" default:"data/memory.db"`
	MaxSearchResults int    `envconfig:"MAX_SEARCH_RESULTS" split_words:"true" default:"20"`
}

// Store is the long-term memory: namespaced records searchable with FTS5, plus a
// per-session event log of conversational turns.
type Store struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

var _ contractx.MemoryStore = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("memory: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("memory: create data dir: %w", err)
		}
	}
	if cfg.MaxSearchResults <= 0 || cfg.MaxSearchResults > maxSearchLimit {
		cfg.MaxSearchResults = maxSearchLimit
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (namespace, key)
		);

		CREATE INDEX IF NOT EXISTS idx_memories_ns_created ON memories(namespace, created_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			value,
			content='memories',
			content_rowid='id'
		);

		CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, value) VALUES (new.id, new.value);
		END;

		CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, value) VALUES ('delete', old.id, old.value);
		END;

		CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, value) VALUES ('delete', old.id, old.value);
			INSERT INTO memories_fts(rowid, value) VALUES (new.id, new.value);
		END;

		CREATE TABLE IF NOT EXISTS events (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			memory_id  TEXT NOT NULL,
			actor_id   TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_session ON events(memory_id, actor_id, session_id, seq DESC);
	`)
	return err
}

/* -------------------------------- records --------------------------------- */

// Put upserts value under (namespace, key); writing the same pair twice is a no-op apart from updated_at.
func (s *Store) Put(ctx context.Context, ns contractx.Namespace, key, value string) error {
	if strings.TrimSpace(ns.ActorID) == "" {
		return fmt.Errorf("%w: namespace actor is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: memory key is required", contractx.ErrValidation)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (namespace, key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
		WHERE memories.value <> excluded.value`,
		ns.String(), key, value, now, now,
	)
	if err != nil {
		return fmt.Errorf("memory: put: %w", err)
	}
	return nil
}

// Search ranks records in ns by FTS5 relevance. A namespace without a session spans
// every session of the actor. An empty query returns the most recent records.
func (s *Store) Search(ctx context.Context, ns contractx.Namespace, query string, limit int) ([]contractx.MemoryHit, error) {
	if strings.TrimSpace(ns.ActorID) == "" {
		return nil, fmt.Errorf("%w: namespace actor is required", contractx.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	nsClause, nsArgs := namespaceFilter(ns, "m.namespace")

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		args := append(nsArgs, limit)
		return s.queryHits(ctx, `
			SELECT m.namespace, m.key, m.value, 0 AS rank, m.created_at
			FROM memories m
			WHERE `+nsClause+`
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?`, args...)
	}

	args := append([]any{ftsQuery}, nsArgs...)
	args = append(args, limit)
	return s.queryHits(ctx, `
		SELECT m.namespace, m.key, m.value, fts.rank, m.created_at
		FROM memories_fts fts
		JOIN memories m ON m.id = fts.rowid
		WHERE memories_fts MATCH ? AND `+nsClause+`
		ORDER BY fts.rank
		LIMIT ?`, args...)
}

func (s *Store) queryHits(ctx context.Context, query string, args ...any) ([]contractx.MemoryHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []contractx.MemoryHit
	for rows.Next() {
		var (
			h       contractx.MemoryHit
			created string
		)
		if err := rows.Scan(&h.Namespace, &h.Key, &h.Value, &h.Rank, &created); err != nil {
			return nil, err
		}
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func namespaceFilter(ns contractx.Namespace, column string) (string, []any) {
	if strings.TrimSpace(ns.SessionID) != "" {
		return column + " = ?", []any{ns.String()}
	}
	actor := ns.String()
	return "(" + column + " = ? OR " + column + " LIKE ? ESCAPE '\\')", []any{actor, escapeLike(actor) + "/%"}
}

/* --------------------------------- events --------------------------------- */

func (s *Store) CreateEvent(ctx context.Context, memoryID, actorID, sessionID string, turns []contractx.Turn) error {
	if strings.TrimSpace(actorID) == "" || strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: actor and session are required", contractx.ErrValidation)
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (id, memory_id, actor_id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), memoryID, actorID, sessionID, t.Role, t.Content,
			created.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("memory: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit events: %w", err)
	}
	return nil
}

// ListEvents returns the newest maxResults turns of the session, oldest first.
func (s *Store) ListEvents(ctx context.Context, memoryID, actorID, sessionID string, maxResults int) ([]contractx.Turn, error) {
	if maxResults <= 0 {
		maxResults = defaultEventLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM (
			SELECT seq, role, content, created_at
			FROM events
			WHERE memory_id = ? AND actor_id = ? AND session_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`,
		memoryID, actorID, sessionID, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []contractx.Turn
	for rows.Next() {
		var (
			t       contractx.Turn
			created string
		)
		if err := rows.Scan(&t.Role, &t.Content, &created); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// sanitizeFTS quotes each word and ORs them, so any shared term is a hit.
func sanitizeFTS(query string) string {
	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
