package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db   *sql.DB
	salt string
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithAnalyticsSalt sets the salt mixed into client address hashes.
func WithAnalyticsSalt(salt string) Option {
	return func(s *SQLiteStore) {
		s.salt = salt
	}
}

func NewSQLiteStore(dataSourceName string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(store)
	}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        session_id TEXT PRIMARY KEY, -- UUID
        visitor_id TEXT,
        ip_hash TEXT,
        user_agent TEXT,
        locale TEXT,
        timezone TEXT,
        referrer TEXT,
        page_url TEXT,
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        model_name TEXT,
        server_duration_ms INTEGER,
        missing_info BOOLEAN DEFAULT FALSE,
        retrieved_sources TEXT, -- JSON array of labels
        context_chars INTEGER,
        FOREIGN KEY (session_id) REFERENCES sessions (session_id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_session_time ON messages (session_id, timestamp);

    CREATE TABLE IF NOT EXISTS index_meta (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        model TEXT NOT NULL,
        built_at DATETIME NOT NULL,
        files_json TEXT
    );

    CREATE TABLE IF NOT EXISTS index_chunks (
        position INTEGER PRIMARY KEY,
        text TEXT NOT NULL,
        label TEXT NOT NULL,
        kind TEXT NOT NULL,
        embedding_json TEXT NOT NULL -- Storing as JSON string of []float32
    );
    `
	_, err := s.db.Exec(schema)
	return err
}
