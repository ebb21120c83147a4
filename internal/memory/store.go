// Package memory persists long-term memories in SQLite and serves the
// baseline memory retrieval.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kirabridge/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.MemoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.MemoryStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, mem domain.MemoryEntry) error {
	if strings.TrimSpace(mem.Content) == "" {
		return fmt.Errorf("save memory: empty content")
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now()
	}
	if mem.Category == "" {
		mem.Category = "fact"
	}
	if mem.Importance == 0 {
		mem.Importance = 5
	}
	if mem.ID > 0 {
		_, err := s.db.ExecContext(ctx,
			`UPDATE memories SET category=?, content=?, source=?, importance=?, expires_at=? WHERE id=?`,
			mem.Category, mem.Content, mem.Source, mem.Importance, mem.ExpiresAt, mem.ID,
		)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (category, content, source, importance, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		mem.Category, mem.Content, mem.Source, mem.Importance, mem.CreatedAt, mem.ExpiresAt,
	)
	return err
}

// SearchMemories matches memories containing any significant term of query,
// ranked by the number of matching terms, then importance, then recency.
func (s *SQLiteStore) SearchMemories(ctx context.Context, query string, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	likes := make([]string, len(terms))
	patterns := make([]any, len(terms))
	for i, t := range terms {
		likes[i] = "(content LIKE ? ESCAPE '\\')"
		patterns[i] = likePattern(t)
	}
	q := fmt.Sprintf(`SELECT id, category, content, source, importance, created_at, expires_at
		FROM memories
		WHERE (%s) AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY (%s) DESC, importance DESC, created_at DESC
		LIMIT ?`, strings.Join(likes, " OR "), strings.Join(likes, " + "))

	args := make([]any, 0, len(terms)*2+2)
	args = append(args, patterns...)
	args = append(args, time.Now())
	args = append(args, patterns...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *SQLiteStore) GetRecentMemories(ctx context.Context, limit int) ([]domain.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, content, source, importance, created_at, expires_at
		 FROM memories
		 WHERE expires_at IS NULL OR expires_at > ?
		 ORDER BY created_at DESC LIMIT ?`,
		time.Now(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

// RecordPersonaUse appends one persona usage row.
func (s *SQLiteStore) RecordPersonaUse(ctx context.Context, persona, sourceTag, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persona_usage (persona, source_tag, channel_id) VALUES (?, ?, ?)`,
		persona, sourceTag, channelID,
	)
	return err
}

// PersonaUsage returns usage counts per persona.
func (s *SQLiteStore) PersonaUsage(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT persona, COUNT(*) FROM persona_usage GROUP BY persona`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

func scanMemories(rows *sql.Rows) ([]domain.MemoryEntry, error) {
	var mems []domain.MemoryEntry
	for rows.Next() {
		var m domain.MemoryEntry
		var source sql.NullString
		var expiresAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Category, &m.Content, &source,
			&m.Importance, &m.CreatedAt, &expiresAt); err != nil {
			return nil, err
		}
		m.Source = source.String
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Time
		}
		mems = append(mems, m)
	}
	return mems, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "you": true,
	"what": true, "how": true, "why": true, "who": true, "can": true, "this": true,
	"that": true, "with": true, "from": true, "have": true, "about": true, "my": true,
	"is": true, "of": true, "to": true, "in": true, "on": true, "me": true, "it": true,
}

// searchTerms lowercases query and keeps distinct words of two or more characters
// that are not stop words.
func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r == '_' || r == '-' || r == '\'' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r > 127)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
