// Package memory implements Compass's conversational memory: a bounded
// per-session ring and a process-wide long-term store, both backed by an
// in-process SQLite database. Storage is deliberately non-durable — the
// database is always opened against an in-memory DSN — but using real
// SQL gives FIFO ordering and eviction without hand-rolled ring buffers.
// Similar-query scoring runs in Go over the stored questions.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MaxSessionQueries bounds how many entries a single session retains.
const MaxSessionQueries = 10

// LongTermCapacity bounds the process-wide long-term store.
const LongTermCapacity = 1000

// AdmissionScoreThreshold is the minimum agreement score for long-term
// admission.
const AdmissionScoreThreshold = 0.80

// Entry is a single recorded question/answer, immutable once written.
type Entry struct {
	ID        string
	Question  string
	Answer    string
	Verdict   string
	Score     float64
	Timestamp time.Time
}

// Store owns the session ring and long-term store. All exported methods
// are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates a Store backed by an in-process, in-memory SQLite
// database. The DSN names the process's shared-cache memory database, so
// Stores that are open at the same time in one process share its tables;
// the data is dropped once the last connection to it closes.
func Open(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			last_accessed_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			verdict TEXT NOT NULL,
			score REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_entries_session ON session_entries(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS long_term_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			question TEXT NOT NULL,
			question_folded TEXT NOT NULL UNIQUE,
			answer TEXT NOT NULL,
			verdict TEXT NOT NULL,
			score REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("memory: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionContext returns the conversational-context string built from the
// session's last 3 entries, oldest first, or ok=false if the session has
// no entries. Accessing a session's context touches last_accessed_at.
func (s *Store) SessionContext(ctx context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.touchSession(ctx, sessionID); err != nil {
		return "", false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT question, answer FROM session_entries WHERE session_id = ? ORDER BY seq DESC LIMIT 3`,
		sessionID)
	if err != nil {
		return "", false, fmt.Errorf("memory: query session context: %w", err)
	}
	defer rows.Close()

	type qa struct{ question, answer string }
	var recent []qa
	for rows.Next() {
		var r qa
		if err := rows.Scan(&r.question, &r.answer); err != nil {
			return "", false, fmt.Errorf("memory: scan session context: %w", err)
		}
		recent = append(recent, r)
	}
	if len(recent) == 0 {
		return "", false, nil
	}

	var sb strings.Builder
	sb.WriteString("Previous conversation context:")
	for i := len(recent) - 1; i >= 0; i-- {
		sb.WriteString(fmt.Sprintf("\nQ: %s\nA: %s", recent[i].question, recent[i].answer))
		if i > 0 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), true, nil
}

func (s *Store) touchSession(ctx context.Context, sessionID string) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at, last_accessed_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_accessed_at = excluded.last_accessed_at`,
		sessionID, now, now)
	if err != nil {
		return fmt.Errorf("memory: touch session: %w", err)
	}
	return nil
}

// RecordOutcome appends a new entry to the session ring (evicting the
// oldest entry on overflow) and, if the entry meets the admission rule,
// inserts it into the long-term store.
func (s *Store) RecordOutcome(ctx context.Context, sessionID string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := s.touchSession(ctx, sessionID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_entries (id, session_id, question, answer, verdict, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, sessionID, entry.Question, entry.Answer, entry.Verdict, entry.Score, entry.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("memory: insert session entry: %w", err)
	}

	if err := s.evictOverflow(ctx, sessionID); err != nil {
		return err
	}

	return s.admitLongTerm(ctx, entry)
}

func (s *Store) evictOverflow(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_entries WHERE session_id = ? AND seq NOT IN (
			SELECT seq FROM session_entries WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		)`,
		sessionID, sessionID, MaxSessionQueries)
	if err != nil {
		return fmt.Errorf("memory: evict session overflow: %w", err)
	}
	return nil
}

func (s *Store) admitLongTerm(ctx context.Context, entry Entry) error {
	if entry.Score < AdmissionScoreThreshold || entry.Verdict == "no_consensus" {
		return nil
	}
	folded := strings.ToLower(strings.TrimSpace(entry.Question))

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term_entries WHERE question_folded = ?`, folded).Scan(&exists)
	if err != nil {
		return fmt.Errorf("memory: check long-term dedup: %w", err)
	}
	if exists > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO long_term_entries (id, question, question_folded, answer, verdict, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), entry.Question, folded, entry.Answer, entry.Verdict, entry.Score, entry.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("memory: insert long-term entry: %w", err)
	}

	return s.evictLongTermOverflow(ctx)
}

func (s *Store) evictLongTermOverflow(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM long_term_entries WHERE seq NOT IN (
			SELECT seq FROM long_term_entries ORDER BY seq DESC LIMIT ?
		)`,
		LongTermCapacity)
	if err != nil {
		return fmt.Errorf("memory: evict long-term overflow: %w", err)
	}
	return nil
}

// History returns a session's entries in insertion order.
func (s *Store) History(ctx context.Context, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, verdict, score, created_at FROM session_entries WHERE session_id = ? ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("memory: query history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Verdict, &e.Score, &createdAt); err != nil {
			return nil, fmt.Errorf("memory: scan entry: %w", err)
		}
		e.Timestamp = time.Unix(createdAt, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scored pairs a long-term entry with its keyword-match fraction.
type scored struct {
	entry Entry
	score float64
}

// SimilarQueries scores every long-term entry by the fraction of q's
// keywords (case-folded tokens longer than 3 characters) that appear as
// substrings of the entry's case-folded question, drops zero-score
// entries, and returns the top k by descending score.
func (s *Store) SimilarQueries(ctx context.Context, q string, k int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keywords := extractKeywords(q)
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, verdict, score, created_at FROM long_term_entries`)
	if err != nil {
		return nil, fmt.Errorf("memory: query long-term entries: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	var candidates []scored
	for _, e := range entries {
		folded := strings.ToLower(e.Question)
		var matches int
		for _, kw := range keywords {
			if strings.Contains(folded, kw) {
				matches++
			}
		}
		frac := float64(matches) / float64(len(keywords))
		if frac > 0 {
			candidates = append(candidates, scored{entry: e, score: frac})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out, nil
}

func extractKeywords(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 3 {
			keywords = append(keywords, f)
		}
	}
	return keywords
}

// Stats reports the figures exposed by GET /api/memory/stats.
type Stats struct {
	ActiveSessions      int
	TotalSessionQueries int
	LongTermMemorySize  int
}

// Stats returns the current size of every memory structure.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.ActiveSessions); err != nil {
		return Stats{}, fmt.Errorf("memory: count sessions: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_entries`).Scan(&stats.TotalSessionQueries); err != nil {
		return Stats{}, fmt.Errorf("memory: count session entries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM long_term_entries`).Scan(&stats.LongTermMemorySize); err != nil {
		return Stats{}, fmt.Errorf("memory: count long-term entries: %w", err)
	}
	return stats, nil
}

// ReapExpired removes sessions (and their entries) whose last access is
// older than ttl, returning the number of sessions removed.
func (s *Store) ReapExpired(ctx context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()

	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions WHERE last_accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("memory: query expired sessions: %w", err)
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("memory: scan expired session: %w", err)
		}
		expired = append(expired, id)
	}
	rows.Close()

	for _, id := range expired {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM session_entries WHERE session_id = ?`, id); err != nil {
			return 0, fmt.Errorf("memory: delete expired session entries: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
			return 0, fmt.Errorf("memory: delete expired session: %w", err)
		}
	}
	return len(expired), nil
}

// StartReaper runs ReapExpired on interval until ctx is cancelled. It
// mirrors the rate limiter's background-ticker eviction shape.
func (s *Store) StartReaper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.ReapExpired(ctx, ttl)
			}
		}
	}()
}
