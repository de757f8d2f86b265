package testutils

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spf13/cast"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/session"
)

func NewSessionPoolStub(rows ...*RowsStub) *SessionPoolStub {
	return &SessionPoolStub{Stub: NewDbSessionStub(rows...)}
}

type SessionPoolStub struct {
	Stub *DbSessionStub
}

func (p *SessionPoolStub) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Stub.ctx = ctx
	return callback(p.Stub)
}

// NewDbSessionStub answers successive queries with the given results in
// order. Once they are used up, queries return empty results.
func NewDbSessionStub(rows ...*RowsStub) *DbSessionStub {
	stub := &DbSessionStub{
		results: rows,
		ctx:     context.Background(),
	}
	stub.conn = &connectionStub{session: stub}
	return stub
}

type ExecutedQuery struct {
	Query  string
	Params []any
}

type DbSessionStub struct {
	ActualQuery  string
	ActualParams []any
	Executed     []ExecutedQuery
	Atomics      int
	results      []*RowsStub
	ctx          context.Context
	conn         *connectionStub
}

func (s *DbSessionStub) Context() context.Context {
	return s.ctx
}

func (s *DbSessionStub) Atomic(callback session.SessionCallback) error {
	s.Atomics++
	return callback(s)
}

func (s *DbSessionStub) Connection() session.DbConnection {
	return s.conn
}

func (s *DbSessionStub) next(query string, args []any) *RowsStub {
	s.ActualQuery = query
	s.ActualParams = args
	s.Executed = append(s.Executed, ExecutedQuery{Query: query, Params: args})
	if len(s.results) == 0 {
		return NewRowsStub()
	}
	rows := s.results[0]
	s.results = s.results[1:]
	return rows
}

type connectionStub struct {
	session *DbSessionStub
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	return c.session.next(query, args), nil
}

func (c *connectionStub) QueryRow(query string, args ...any) session.Row {
	rows := c.session.next(query, args)
	rows.Next()
	return &RowStub{rows: rows}
}

func NewRowsStub(rows ...[]any) *RowsStub {
	return &RowsStub{
		rows:   rows,
		idx:    -1,
		Closed: false,
	}
}

type RowsStub struct {
	rows   [][]any
	idx    int
	Closed bool
}

func (r *RowsStub) Close() error {
	r.Closed = true
	return nil
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.idx]
	for i, val := range row {
		if i >= len(dest) {
			break
		}

		var err error
		switch d := dest[i].(type) {
		case *any:
			*d = val
		case *int:
			*d, err = cast.ToIntE(val)
		case *int64:
			*d, err = cast.ToInt64E(val)
		case *string:
			*d, err = cast.ToStringE(val)
		case *bool:
			*d, err = cast.ToBoolE(val)
		case *float64:
			*d, err = cast.ToFloat64E(val)
		case *time.Time:
			*d, err = cast.ToTimeE(val)
		case *[]byte:
			b, ok := val.([]byte)
			if !ok {
				err = errors.New("cannot scan into []byte")
			}
			*d = b
		case sql.Scanner:
			err = d.Scan(val)
		default:
			err = errors.New("unsupported scan type")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

type RowStub struct {
	rows *RowsStub
}

func (r *RowStub) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}
