package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/italolelis/media_analyzer/internal/logctx"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at dbPath and creates the media_records
// table if it doesn't exist. The returned handle is the single long-lived
// connection for the process; callers own its Close.
func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS media_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_key TEXT NOT NULL,
		filename TEXT,
		mime_type TEXT,
		data BLOB,
		size INTEGER,
		stored_at DATETIME,
		prompt TEXT,
		result_text TEXT,
		model TEXT,
		analyzed_at DATETIME
	)`); err != nil {
		return nil, fmt.Errorf("failed to create media_records table: %w", err)
	}

	ensureIndexes(ctx, db)

	return db, nil
}

// ensureIndexes builds the lookup indexes best-effort. A failed index only
// degrades query performance, so errors are logged and swallowed.
func ensureIndexes(ctx context.Context, db *sql.DB) {
	logger := logctx.LoggerFromContext(ctx)

	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_media_source_key ON media_records (source_key)`,
		`CREATE INDEX IF NOT EXISTS idx_media_stored_at ON media_records (stored_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_media_result_text ON media_records (result_text)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Warn("failed to create index", "stmt", stmt, "err", err)
		}
	}
}
