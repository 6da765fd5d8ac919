package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite journal and creates the fetches table if it
// doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY,
		batch_id TEXT,
		asset_id TEXT UNIQUE,
		file_path TEXT,
		status TEXT,
		error TEXT,
		fetched_at DATETIME
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
