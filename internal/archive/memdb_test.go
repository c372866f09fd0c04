package archive

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowKey is the (code, date) primary key within one table.
type rowKey struct {
	table string
	code  string
	date  time.Time
}

// memDB is an in-memory archive honouring ON CONFLICT (code, date) DO NOTHING
// and transaction commit/rollback. Only the statements the archive issues are
// understood.
type memDB struct {
	DB

	rows      map[rowKey][]any
	failExec  int // Fail the n-th batched insert (1-based), 0 = never
	execs     int
	deleted   []rowKey
	commits   int
	rollbacks int
}

func newMemDB() *memDB {
	return &memDB{rows: make(map[rowKey][]any)}
}

func (m *memDB) put(table string, args ...any) {
	m.rows[rowKey{table, args[0].(string), args[1].(time.Time)}] = args
}

func (m *memDB) count(table string) int {
	n := 0
	for k := range m.rows {
		if k.table == table {
			n++
		}
	}
	return n
}

func (m *memDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{db: m, rows: maps.Clone(m.rows)}, nil
}

func (m *memDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	// SELECT code, MAX(date) FROM <table> GROUP BY code
	f := strings.Fields(sql)
	if len(f) < 5 || f[2] != "MAX(date)" {
		return nil, fmt.Errorf("memDB: unsupported query %q", sql)
	}
	latest := make(map[string]time.Time)
	for k := range m.rows {
		if k.table == f[4] && k.date.After(latest[k.code]) {
			latest[k.code] = k.date
		}
	}
	r := &memRows{}
	for _, code := range slices.Sorted(maps.Keys(latest)) {
		r.data = append(r.data, []any{code, latest[code]})
	}
	return r, nil
}

type memTx struct {
	pgx.Tx

	db   *memDB
	rows map[rowKey][]any
	done bool
}

func (t *memTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	// DELETE FROM <table> WHERE code = $1 AND date = $2
	f := strings.Fields(sql)
	if len(f) < 3 || f[0] != "DELETE" {
		return pgconn.CommandTag{}, fmt.Errorf("memTx: unsupported exec %q", sql)
	}
	k := rowKey{f[2], args[0].(string), args[1].(time.Time)}
	t.db.deleted = append(t.db.deleted, k)
	if _, ok := t.rows[k]; !ok {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	delete(t.rows, k)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return &memBatchResults{tx: t, queries: b.QueuedQueries}
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.rows = t.rows
	t.db.commits++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.rollbacks++
	return nil
}

type memBatchResults struct {
	pgx.BatchResults

	tx      *memTx
	queries []*pgx.QueuedQuery
	next    int
}

func (r *memBatchResults) Exec() (pgconn.CommandTag, error) {
	q := r.queries[r.next]
	r.next++

	db := r.tx.db
	db.execs++
	if db.execs == db.failExec {
		return pgconn.CommandTag{}, errors.New("conn closed")
	}

	// INSERT INTO <table> (...) VALUES (...) ON CONFLICT (code, date) DO NOTHING
	f := strings.Fields(q.SQL)
	k := rowKey{f[2], q.Arguments[0].(string), q.Arguments[1].(time.Time)}
	if _, ok := r.tx.rows[k]; ok {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	r.tx.rows[k] = q.Arguments
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *memBatchResults) Close() error { return nil }

type memRows struct {
	pgx.Rows

	data [][]any
	cur  int
}

func (r *memRows) Next() bool {
	r.cur++
	return r.cur <= len(r.data)
}

func (r *memRows) Scan(dest ...any) error {
	row := r.data[r.cur-1]
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*time.Time) = row[1].(time.Time)
	return nil
}

func (r *memRows) Close()                        {}
func (r *memRows) Err() error                    { return nil }
func (r *memRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
