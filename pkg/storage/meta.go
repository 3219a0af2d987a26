package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var (
	// ErrNoStream is returned when a stream has no stored registration.
	ErrNoStream = errors.New("stream not registered")
	// ErrBadInput is returned for a scan request that is rejected before any
	// SQL runs.
	ErrBadInput = errors.New("bad scan input")
)

// Open opens the sqlite database at path and makes sure the metadata tables
// exist. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite db %s", path)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else {
		// Pragmas for better performance
		_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")
		_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")
	}
	if err := EnsureMetaTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func EnsureMetaTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sketch_streams (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			observed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "ensure meta tables")
		}
	}
	return nil
}

// StreamRecord is the stored registration of a stream. Sketch state is never
// stored; Params holds the JSON encoded construction parameters.
type StreamRecord struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Params    string    `json:"params"`
	Observed  int64     `json:"observed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertStream stores or replaces a stream registration. The observed count
// restarts at rec.Observed.
func UpsertStream(ctx context.Context, db *sql.DB, rec StreamRecord) error {
	now := time.Now().Unix()
	created := now
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Unix()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sketch_streams(name, kind, params, observed, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(name)
		DO UPDATE SET kind=excluded.kind, params=excluded.params, observed=excluded.observed, updated_at=excluded.updated_at`,
		rec.Name, rec.Kind, rec.Params, rec.Observed, created, now)
	return errors.Wrapf(err, "upsert stream %s", rec.Name)
}

// GetStream retrieves a stream registration
func GetStream(ctx context.Context, db *sql.DB, name string) (StreamRecord, error) {
	var rec StreamRecord
	var created, updated int64
	err := db.QueryRowContext(ctx, `
		SELECT name, kind, params, observed, created_at, updated_at
		FROM sketch_streams WHERE name = ?`, name).
		Scan(&rec.Name, &rec.Kind, &rec.Params, &rec.Observed, &created, &updated)
	if err == sql.ErrNoRows {
		return rec, errors.Wrap(ErrNoStream, name)
	}
	if err != nil {
		return rec, errors.Wrapf(err, "get stream %s", name)
	}
	rec.CreatedAt = time.Unix(created, 0)
	rec.UpdatedAt = time.Unix(updated, 0)
	return rec, nil
}

// ListStreams returns every stream registration ordered by name
func ListStreams(ctx context.Context, db *sql.DB) ([]StreamRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, kind, params, observed, created_at, updated_at
		FROM sketch_streams
		ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list streams")
	}
	defer rows.Close()

	var records []StreamRecord
	for rows.Next() {
		var rec StreamRecord
		var created, updated int64
		if err := rows.Scan(&rec.Name, &rec.Kind, &rec.Params, &rec.Observed, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan stream")
		}
		rec.CreatedAt = time.Unix(created, 0)
		rec.UpdatedAt = time.Unix(updated, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteStream removes a stream registration. Deleting an unknown stream
// returns ErrNoStream.
func DeleteStream(ctx context.Context, db *sql.DB, name string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sketch_streams WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "delete stream %s", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(ErrNoStream, name)
	}
	return nil
}

// IncrementObserved adds n to the observed count of a stream.
func IncrementObserved(ctx context.Context, db *sql.DB, name string, n int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE sketch_streams SET observed = observed + ?, updated_at = ?
		WHERE name = ?`, n, time.Now().Unix(), name)
	if err != nil {
		return errors.Wrapf(err, "increment observed of %s", name)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Wrap(ErrNoStream, name)
	}
	return nil
}

// ResetObserved zeroes the observed counts. The daemon calls it on startup
// since the sketches it rebuilds start empty.
func ResetObserved(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `UPDATE sketch_streams SET observed = 0, updated_at = ?`, time.Now().Unix())
	return errors.Wrap(err, "reset observed")
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// scanPage is the number of rows ScanColumn reads per query.
const scanPage = 1000

// ScanColumn calls fn with every non-NULL value of table.column in rowid
// order. A fraction in (0, 1) scans a uniform random sample of the rows
// instead. Rows are read a page at a time and the page's connection is
// released before fn runs, so fn may use db. It returns the number of values
// passed to fn.
func ScanColumn(ctx context.Context, db *sql.DB, table, column string, fraction float64, fn func(v any) error) (int64, error) {
	if !identifier.MatchString(table) || !identifier.MatchString(column) {
		return 0, errors.Wrapf(ErrBadInput, "invalid identifier %q.%q", table, column)
	}
	if fraction < 0 || fraction > 1 {
		return 0, errors.Wrapf(ErrBadInput, "invalid fraction %v", fraction)
	}

	q := fmt.Sprintf("SELECT rowid, %s FROM %s WHERE rowid > ? AND %s IS NOT NULL", column, table, column)
	if fraction > 0 && fraction < 1 {
		q += fmt.Sprintf(" AND (abs(random())/9223372036854775807.0) < %f", fraction)
	}
	q += fmt.Sprintf(" ORDER BY rowid LIMIT %d", scanPage)

	var (
		n     int64
		after int64 = -1 << 63
	)
	for {
		page, last, err := scanPageOf(ctx, db, q, after)
		if err != nil {
			return n, errors.Wrapf(err, "scan %s.%s", table, column)
		}
		for _, v := range page {
			if err := fn(v); err != nil {
				return n, err
			}
			n++
		}
		if len(page) < scanPage {
			return n, nil
		}
		after = last
	}
}

func scanPageOf(ctx context.Context, db *sql.DB, q string, after int64) ([]any, int64, error) {
	rows, err := db.QueryContext(ctx, q, after)
	if err != nil {
		return nil, after, err
	}
	defer rows.Close()

	page := make([]any, 0, scanPage)
	for rows.Next() {
		var v any
		if err := rows.Scan(&after, &v); err != nil {
			return nil, after, err
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		page = append(page, v)
	}
	return page, after, rows.Err()
}

// Meta adapts the package functions to a database handle.
type Meta struct {
	DB *sql.DB
}

func (m Meta) UpsertStream(ctx context.Context, rec StreamRecord) error {
	return UpsertStream(ctx, m.DB, rec)
}

func (m Meta) DeleteStream(ctx context.Context, name string) error {
	return DeleteStream(ctx, m.DB, name)
}

func (m Meta) ListStreams(ctx context.Context) ([]StreamRecord, error) {
	return ListStreams(ctx, m.DB)
}

func (m Meta) IncrementObserved(ctx context.Context, name string, n int64) error {
	return IncrementObserved(ctx, m.DB, name, n)
}
