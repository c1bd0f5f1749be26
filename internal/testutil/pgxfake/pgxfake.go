// Package pgxfake provides an in-memory stand-in for a pgx pool, so code that
// only needs Query can be tested without a database.
package pgxfake

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call records one Query invocation.
type Call struct {
	SQL  string
	Args []any
}

// NamedArgs returns the first argument when it is a pgx.NamedArgs.
func (c Call) NamedArgs() pgx.NamedArgs {
	if len(c.Args) == 0 {
		return nil
	}
	args, _ := c.Args[0].(pgx.NamedArgs)
	return args
}

// HandlerFunc answers a Query call.
type HandlerFunc func(ctx context.Context, sql string, args []any) (pgx.Rows, error)

// Querier records every call and delegates to Handler. It is safe for
// concurrent use.
type Querier struct {
	Handler HandlerFunc
	calls   []Call
	mu      sync.Mutex
}

func New(h HandlerFunc) *Querier {
	return &Querier{Handler: h}
}

func (q *Querier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	q.calls = append(q.calls, Call{SQL: sql, Args: args})
	q.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Handler == nil {
		return NewRows(nil), nil
	}
	return q.Handler(ctx, sql, args)
}

// Calls returns a copy of the recorded calls.
func (q *Querier) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Rows is a pgx.Rows over fixed values.
type Rows struct {
	err     error
	columns []string
	values  [][]any
	pos     int
	closed  bool
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows returns rows with the given column names. Every value slice must
// have one element per column.
func NewRows(columns []string, values ...[]any) *Rows {
	return &Rows{columns: columns, values: values, pos: -1}
}

// WithErr makes Err report err once iteration ends.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close() { r.closed = true }

// Closed reports whether Close was called.
func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Err() error {
	if r.closed {
		return r.err
	}
	return nil
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.values)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.values) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) current() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.values) {
		return nil, fmt.Errorf("pgxfake: no current row")
	}
	return r.values[r.pos], nil
}

// Scan assigns the current row to dest by position. A pointer destination
// receives nil for a nil value. A single pgx.RowScanner scans the row itself.
func (r *Rows) Scan(dest ...any) error {
	if len(dest) == 1 {
		if rs, ok := dest[0].(pgx.RowScanner); ok {
			return rs.ScanRow(r)
		}
	}

	row, err := r.current()
	if err != nil {
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("pgxfake: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("pgxfake: column %q: %w", r.columns[i], err)
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	row, err := r.current()
	if err != nil {
		return nil, err
	}
	return append([]any(nil), row...), nil
}

func (r *Rows) RawValues() [][]byte {
	row, err := r.current()
	if err != nil {
		return nil
	}
	raw := make([][]byte, len(row))
	for i, v := range row {
		if v != nil {
			raw[i] = fmt.Append(nil, v)
		}
	}
	return raw
}

func (r *Rows) Conn() *pgx.Conn { return nil }

func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", dest)
	}
	dv = dv.Elem()

	if src == nil {
		dv.Set(reflect.Zero(dv.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	target := dv
	indirect := dv.Kind() == reflect.Pointer && sv.Kind() != reflect.Pointer
	if indirect {
		target = reflect.New(dv.Type().Elem()).Elem()
	}

	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", src, target.Type())
	}

	if indirect {
		dv.Set(target.Addr())
	}
	return nil
}
