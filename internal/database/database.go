package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// dsnOptions enables WAL so status reads don't block the crawl writers, and
// gives writers a 5s budget to wait out a busy database instead of failing
// with SQLITE_BUSY.
const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// Open opens the catalog database at dbPath, creating the parent directory
// on first run.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection serializes the catalog write pool at the pool level
	// instead of inside the driver.
	db.SetMaxOpenConns(1)

	return db, nil
}
