package sqlite

import (
	"database/sql"
	_ "embed"

	// Import the pure-Go SQLite driver.
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/lexipoint/lexipoint/internal/profile"
	"github.com/lexipoint/lexipoint/store"
)

//go:embed schema.sql
var schema string

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at the profile DSN and applies the schema.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// WAL keeps readers unblocked while a writer commits; busy_timeout lets
	// concurrent writers queue instead of failing immediately.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// SQLite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY churn under concurrent mutations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
