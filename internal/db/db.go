package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// connPragmas are applied to every pooled connection via the DSN; setting
// them with Exec would only configure whichever connection happened to run
// the statement.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// Open opens a SQLite database connection pool. Transactions begin as BEGIN
// IMMEDIATE so that read-check-write sequences (settlement, negotiation
// appends) serialize on the write lock up front instead of failing on a
// later lock upgrade.
func Open(path string) (*sql.DB, error) {
	params := make([]string, 0, len(connPragmas)+1)
	params = append(params, "_txlock=immediate")
	for _, p := range connPragmas {
		params = append(params, "_pragma="+url.QueryEscape(p))
	}

	dsn := fmt.Sprintf("file:%s?%s", url.PathEscape(path), strings.Join(params, "&"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
