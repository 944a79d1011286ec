package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"stockscan/internal/logger"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Database connection pool configuration
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

const TimeFormat = time.RFC3339

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// History is the SQLite store of confirmed scans. The inventory itself is
// never written here.
type History struct {
	db *sql.DB
}

// Open connects to the database with retries and creates the schema.
func Open(dataSourceName string) (*History, error) {
	db, err := openWithRetry(dataSourceName, 3)
	if err != nil {
		return nil, err
	}

	h := &History{db: db}
	if err := h.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return h, nil
}

func openWithRetry(dataSourceName string, maxRetries int) (*sql.DB, error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err := sql.Open("sqlite", dataSourceName)
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return nil, fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
		db.SetConnMaxIdleTime(connMaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = db.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			db.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Pragma failures only cost performance
		if err := enablePragmas(db); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
		}

		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return db, nil
	}

	return nil, fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// Ping reports whether the database answers.
func (h *History) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*2)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection unhealthy: %w", err)
	}
	return nil
}

// Close closes the database connection gracefully
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const scanEventsTableSchema = `
    CREATE TABLE IF NOT EXISTS scan_events (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        item_name TEXT NOT NULL,
        quantity INTEGER NOT NULL DEFAULT 0,
        confidence REAL NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_scan_events_created_at ON scan_events(created_at);
    CREATE INDEX IF NOT EXISTS idx_scan_events_item_name ON scan_events(item_name);`

func (h *History) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err := h.db.ExecContext(ctx, scanEventsTableSchema)
	return err
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

func (h *History) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: query=%s, error=%v", query, err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}
	return result, nil
}
