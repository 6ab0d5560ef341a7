// Package ledger implements component J: a durable record of past
// packaging runs, queryable per map name, for driver front-ends that work
// against a pool of maps rather than a single invocation.
package ledger

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Aciz/Pack3r/internal/diagnostics"
)

// BuildRecord is one row of the ledger: a single packaging run.
type BuildRecord struct {
	MapName        string
	ArchivePath    string
	Digest         string
	FileCount      int
	DuplicateCount int
	BuiltAt        time.Time
	Outcome        string // "ok", "missing-assets", "error"
}

// BuildLedger records and recalls past build runs.
type BuildLedger interface {
	RecordBuild(ctx context.Context, rec BuildRecord) error
	Recent(ctx context.Context, mapName string, n int) ([]BuildRecord, error)
	Close() error
}

// NoopLedger discards every record. Used when a driver runs without
// persistence configured.
type NoopLedger struct{}

func (NoopLedger) RecordBuild(context.Context, BuildRecord) error            { return nil }
func (NoopLedger) Recent(context.Context, string, int) ([]BuildRecord, error) { return nil, nil }
func (NoopLedger) Close() error                                              { return nil }

// SQLiteLedger persists build records to a local SQLite database via
// modernc.org/sqlite (pure Go, no cgo).
type SQLiteLedger struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists.
func Open(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.IO, err, "open build ledger %s", path)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	map_name        TEXT NOT NULL,
	archive_path    TEXT NOT NULL,
	digest          TEXT NOT NULL,
	file_count      INTEGER NOT NULL,
	duplicate_count INTEGER NOT NULL,
	built_at        INTEGER NOT NULL,
	outcome         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS builds_map_name_idx ON builds(map_name, built_at DESC);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, diagnostics.Wrap(diagnostics.IO, err, "create build ledger schema")
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) RecordBuild(ctx context.Context, rec BuildRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO builds (map_name, archive_path, digest, file_count, duplicate_count, built_at, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.MapName, rec.ArchivePath, rec.Digest, rec.FileCount, rec.DuplicateCount, rec.BuiltAt.Unix(), rec.Outcome)
	if err != nil {
		return diagnostics.Wrap(diagnostics.IO, err, "record build for %s", rec.MapName)
	}
	return nil
}

func (l *SQLiteLedger) Recent(ctx context.Context, mapName string, n int) ([]BuildRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT map_name, archive_path, digest, file_count, duplicate_count, built_at, outcome
		 FROM builds WHERE map_name = ? ORDER BY built_at DESC LIMIT ?`,
		mapName, n)
	if err != nil {
		return nil, diagnostics.Wrap(diagnostics.IO, err, "query recent builds for %s", mapName)
	}
	defer rows.Close()

	var out []BuildRecord
	for rows.Next() {
		var rec BuildRecord
		var builtAt int64
		if err := rows.Scan(&rec.MapName, &rec.ArchivePath, &rec.Digest, &rec.FileCount, &rec.DuplicateCount, &builtAt, &rec.Outcome); err != nil {
			return nil, diagnostics.Wrap(diagnostics.IO, err, "scan build record")
		}
		rec.BuiltAt = time.Unix(builtAt, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
