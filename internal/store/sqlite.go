package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/bbp-discovery/internal/domain"
	"github.com/ashureev/bbp-discovery/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to keep SQLITE_BUSY rare
}

var _ Repository = (*SQLiteStore)(nil)

// isMemoryDSN reports whether path names an in-memory database.
func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func buildDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if isMemoryDSN(path) {
		return path + sep + "_pragma=busy_timeout(5000)"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
}

// NewSQLite creates a new SQLite-backed repository. dbPath may be a file
// path or an in-memory DSN such as "file:discovery?mode=memory&cache=shared".
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	memory := isMemoryDSN(dbPath)
	if !memory && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if memory {
		// An in-memory database lives only while a connection holds it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS discovery_sessions (
		session_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		session_json TEXT NOT NULL,
		rag_context TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_discovery_sessions_updated ON discovery_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetDiscoverySession retrieves a session by ID.
func (s *SQLiteStore) GetDiscoverySession(ctx context.Context, id string) (*domain.DiscoverySession, error) {
	query := `SELECT session_json, rag_context FROM discovery_sessions WHERE session_id = ?`

	var sessionJSON, ragContext string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&sessionJSON, &ragContext)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan discovery session: %w", err)
	}

	var session domain.DiscoverySession
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("decode discovery session %s: %w", id, err)
	}
	session.RAGContext = ragContext
	if session.Choices == nil {
		session.Choices = domain.UserChoices{}
	}
	return &session, nil
}

// UpsertDiscoverySession creates or replaces a session.
func (s *SQLiteStore) UpsertDiscoverySession(ctx context.Context, session *domain.DiscoverySession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode discovery session: %w", err)
	}

	query := `
		INSERT INTO discovery_sessions (session_id, state, session_json, rag_context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			session_json = excluded.session_json,
			rag_context = excluded.rag_context,
			updated_at = excluded.updated_at`

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return s.write(ctx, "upsert discovery session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, string(session.State), string(data), session.RAGContext,
			session.CreatedAt.Unix(), updatedAt.Unix(),
		)
		return err
	})
}

// DeleteDiscoverySession removes a session.
func (s *SQLiteStore) DeleteDiscoverySession(ctx context.Context, id string) error {
	return s.write(ctx, "delete discovery session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM discovery_sessions WHERE session_id = ?`, id)
		return err
	})
}

// CleanupExpiredSessions removes sessions not updated within ttl.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var ids []string
	err := s.write(ctx, "cleanup expired sessions", func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx,
			`DELETE FROM discovery_sessions WHERE updated_at < ? RETURNING session_id`, threshold)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := rows.Close(); closeErr != nil {
				slog.Warn("failed to close expired sessions rows", "error", closeErr)
			}
		}()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PurgeSessions removes every session.
func (s *SQLiteStore) PurgeSessions(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.write(ctx, "purge sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM discovery_sessions`)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// write runs fn under the writer lock, retrying SQLite conflicts with backoff.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := shared.RetryOnConflict(ctx, op, shared.DefaultRetryAttempts, shared.DefaultRetryDelay, fn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
