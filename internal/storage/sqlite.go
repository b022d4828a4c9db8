package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aleksaelezovic/quadkv/pkg/store"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB
) WITHOUT ROWID`

// sqlitePageSize is the number of rows an iterator fetches per query. Pages
// are read fully before the next statement runs, so an open iterator never
// pins the single connection.
const sqlitePageSize = 256

// SQLiteStorage implements store.Backend on a single SQLite table whose
// BLOB primary key gives the byte-wise ordering quads rely on.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the database file at path. An empty path
// or ":memory:" opens a private in-memory database.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps an in-memory database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, path == ":memory:"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func applyPragmas(db *sql.DB, inMemory bool) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if !inMemory {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Get retrieves a value by key
func (s *SQLiteStorage) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Put stores a key-value pair
func (s *SQLiteStorage) Put(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO kv (k, v) VALUES (?, ?)`, key, value)
	return err
}

// Delete removes a key
func (s *SQLiteStorage) Delete(ctx context.Context, key []byte) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, key)
	return err
}

// Batch applies every operation inside one SQL transaction
func (s *SQLiteStorage) Batch(ctx context.Context, ops []store.BatchOp) (err error) {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // #nosec G104 - rollback error less important than original error
		}
	}()

	put, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO kv (k, v) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer put.Close()
	del, err := tx.PrepareContext(ctx, `DELETE FROM kv WHERE k = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	for _, op := range ops {
		switch op.Type {
		case store.BatchPut:
			_, err = put.ExecContext(ctx, op.Key, op.Value)
		case store.BatchDelete:
			_, err = del.ExecContext(ctx, op.Key)
		default:
			err = fmt.Errorf("unknown batch operation %d", op.Type)
		}
		if err != nil {
			return fmt.Errorf("batch %s: %w", op.Type, err)
		}
	}
	return tx.Commit()
}

// Iterate returns a paged iterator; see sqlitePageSize
func (s *SQLiteStorage) Iterate(ctx context.Context, opts store.IterateOptions) (store.Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &SQLiteIterator{ctx: ctx, db: s.db, opts: opts}, nil
}

// ApproximateSize counts the keys in [lower, upper)
func (s *SQLiteStorage) ApproximateSize(ctx context.Context, lower, upper []byte) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv WHERE k >= ? AND k < ?`, lower, upper).Scan(&n)
	return n, err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type kvRow struct {
	key, value []byte
}

// SQLiteIterator implements store.Iterator with keyset pagination
type SQLiteIterator struct {
	ctx  context.Context
	db   *sql.DB
	opts store.IterateOptions

	page    []kvRow
	pos     int
	last    []byte
	count   int
	drained bool
	closed  bool
	err     error
}

func (i *SQLiteIterator) query() (string, []any) {
	var where []string
	var args []any

	lower, lowerExcl := i.opts.Lower()
	upper, upperExcl := i.opts.Upper()
	if i.last != nil {
		// Resume strictly after the last row in the direction of travel
		if i.opts.Reverse {
			upper, upperExcl = i.last, true
		} else {
			lower, lowerExcl = i.last, true
		}
	}
	if lower != nil {
		op := ">="
		if lowerExcl {
			op = ">"
		}
		where = append(where, "k "+op+" ?")
		args = append(args, lower)
	}
	if upper != nil {
		op := "<="
		if upperExcl {
			op = "<"
		}
		where = append(where, "k "+op+" ?")
		args = append(args, upper)
	}

	var q strings.Builder
	if i.opts.KeysOnly {
		q.WriteString("SELECT k, NULL FROM kv")
	} else {
		q.WriteString("SELECT k, v FROM kv")
	}
	if len(where) > 0 {
		q.WriteString(" WHERE ")
		q.WriteString(strings.Join(where, " AND "))
	}
	if i.opts.Reverse {
		q.WriteString(" ORDER BY k DESC")
	} else {
		q.WriteString(" ORDER BY k ASC")
	}

	size := sqlitePageSize
	if i.opts.Limit > 0 && i.opts.Limit-i.count < size {
		size = i.opts.Limit - i.count
	}
	fmt.Fprintf(&q, " LIMIT %d", size)
	return q.String(), args
}

func (i *SQLiteIterator) fetch() error {
	q, args := i.query()
	rows, err := i.db.QueryContext(i.ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	i.page = i.page[:0]
	i.pos = 0
	for rows.Next() {
		var r kvRow
		if err := rows.Scan(&r.key, &r.value); err != nil {
			return err
		}
		i.page = append(i.page, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(i.page) < sqlitePageSize {
		i.drained = true
	}
	return nil
}

// Next advances to the next row, fetching a new page when needed
func (i *SQLiteIterator) Next() bool {
	if i.closed || i.err != nil {
		return false
	}
	if err := i.ctx.Err(); err != nil {
		i.err = err
		return false
	}
	if i.opts.Limit > 0 && i.count >= i.opts.Limit {
		return false
	}
	if i.pos+1 < len(i.page) {
		i.pos++
	} else {
		if i.drained {
			i.pos = len(i.page)
			return false
		}
		if len(i.page) > 0 {
			i.last = i.page[len(i.page)-1].key
		}
		if err := i.fetch(); err != nil {
			i.err = err
			return false
		}
		if len(i.page) == 0 {
			return false
		}
	}
	i.count++
	return true
}

func (i *SQLiteIterator) current() *kvRow {
	if i.closed || i.pos >= len(i.page) {
		return nil
	}
	return &i.page[i.pos]
}

// Key returns the current key
func (i *SQLiteIterator) Key() []byte {
	if r := i.current(); r != nil {
		return r.key
	}
	return nil
}

// Value returns the current value
func (i *SQLiteIterator) Value() []byte {
	if r := i.current(); r != nil {
		return r.value
	}
	return nil
}

func (i *SQLiteIterator) Err() error {
	return i.err
}

// Close drops the buffered page
func (i *SQLiteIterator) Close() error {
	i.closed = true
	i.page = nil
	return nil
}

var (
	_ store.Backend          = (*SQLiteStorage)(nil)
	_ store.ApproximateSizer = (*SQLiteStorage)(nil)
)
