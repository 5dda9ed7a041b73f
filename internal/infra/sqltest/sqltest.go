// Package sqltest provides an in-memory infra.TxExecutor for repository and
// handler tests. Responses are keyed by the exact inline query constant.
package sqltest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yueliao11/Donate-On-Flow/internal/infra"
)

// Call records one statement issued against the executor.
type Call struct {
	Query string
	Args  []any
	InTx  bool
}

// Result is the canned response for a query. Rows feed Query and QueryRow
// (QueryRow uses the first row; no rows yields pgx.ErrNoRows). Affected is
// the RowsAffected reported by Exec.
type Result struct {
	Rows     [][]any
	Err      error
	Affected int64
}

// Executor answers queries from a response table and records every call.
// A query can be given several results; they are consumed in order and the
// last one repeats.
type Executor struct {
	mu        sync.Mutex
	responses map[string][]Result
	calls     []Call
	inTx      bool

	// TxErr, when set, is returned by InTx without running fn.
	TxErr error
	// Commits and Rollbacks count finished InTx calls.
	Commits   int
	Rollbacks int
}

func New() *Executor {
	return &Executor{responses: map[string][]Result{}}
}

// On registers the next result for query.
func (e *Executor) On(query string, res Result) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses[query] = append(e.responses[query], res)
	return e
}

// Calls returns a copy of the recorded statements.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsTo returns the recorded statements for one query.
func (e *Executor) CallsTo(query string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Query == query {
			out = append(out, c)
		}
	}
	return out
}

func (e *Executor) next(query string, args []any) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Query: query, Args: args, InTx: e.inTx})
	queue, ok := e.responses[query]
	if !ok || len(queue) == 0 {
		return Result{}, false
	}
	res := queue[0]
	if len(queue) > 1 {
		e.responses[query] = queue[1:]
	}
	return res, true
}

func (e *Executor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	res, ok := e.next(query, args)
	if !ok {
		return pgconn.CommandTag{}, fmt.Errorf("sqltest: unexpected exec: %.60q", query)
	}
	if res.Err != nil {
		return pgconn.CommandTag{}, res.Err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", res.Affected)), nil
}

func (e *Executor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	res, ok := e.next(query, args)
	if !ok {
		return NewSimpleRow(func(...any) error {
			return fmt.Errorf("sqltest: unexpected query row: %.60q", query)
		})
	}
	if res.Err != nil {
		err := res.Err
		return NewSimpleRow(func(...any) error { return err })
	}
	if len(res.Rows) == 0 {
		return SimpleRow{}
	}
	values := res.Rows[0]
	return NewSimpleRow(func(dest ...any) error { return Assign(dest, values) })
}

func (e *Executor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	res, ok := e.next(query, args)
	if !ok {
		return nil, fmt.Errorf("sqltest: unexpected query: %.60q", query)
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return &Rows{data: res.Rows}, nil
}

// InTx runs fn against the same executor and tracks commit or rollback.
func (e *Executor) InTx(ctx context.Context, fn func(tx infra.SQLExecutor) error) error {
	if e.TxErr != nil {
		return e.TxErr
	}
	e.mu.Lock()
	e.inTx = true
	e.mu.Unlock()

	err := fn(e)

	e.mu.Lock()
	e.inTx = false
	if err != nil {
		e.Rollbacks++
	} else {
		e.Commits++
	}
	e.mu.Unlock()
	return err
}

// SimpleRow adapts a scan function to pgx.Row. A nil function reports
// pgx.ErrNoRows.
type SimpleRow struct {
	scan func(dest ...any) error
}

func NewSimpleRow(scanner func(dest ...any) error) SimpleRow {
	return SimpleRow{scan: scanner}
}

func (r SimpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// RowsBase fills in the pgx.Rows methods tests never exercise.
type RowsBase struct{}

func (RowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (RowsBase) Conn() *pgx.Conn { return nil }

func (RowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (RowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (RowsBase) RawValues() [][]byte { return nil }

// Rows iterates canned values.
type Rows struct {
	RowsBase
	data   [][]any
	idx    int
	closed bool
}

// NewRows builds a pgx.Rows over data.
func NewRows(data ...[]any) *Rows { return &Rows{data: data} }

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return pgx.ErrNoRows
	}
	return Assign(dest, r.data[r.idx-1])
}

func (r *Rows) Err() error { return nil }

func (r *Rows) Close() { r.closed = true }

// Assign copies values into scan destinations, converting where the Go types
// allow it. A nil value zeroes the destination.
func Assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("sqltest: scan %d destinations from %d values", len(dest), len(values))
	}
	for i := range dest {
		if err := assignOne(dest[i], values[i]); err != nil {
			return fmt.Errorf("sqltest: column %d: %w", i, err)
		}
	}
	return nil
}

func assignOne(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(target.Type()):
		target.Set(vv)
	case target.Kind() == reflect.Pointer && vv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(vv)
		target.Set(p)
	case vv.Type().ConvertibleTo(target.Type()) && (vv.Kind() == reflect.String) == (target.Kind() == reflect.String):
		target.Set(vv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, target.Type())
	}
	return nil
}

var _ infra.TxExecutor = (*Executor)(nil)
