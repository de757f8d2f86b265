package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	s "github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/session"
)

// Executor runs plans as SQL through a session pool.
type Executor struct {
	pool     session.SessionPool
	renderer *Renderer
}

func NewExecutor(pool session.SessionPool, registry *SchemaRegistry) *Executor {
	return &Executor{
		pool:     pool,
		renderer: NewRenderer(registry),
	}
}

func (e *Executor) Capabilities() operators.Capabilities {
	return Capabilities()
}

func (e *Executor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	q, err := e.renderer.Render(p)
	if err != nil {
		return nil, err
	}
	var result []plan.Row
	err = e.pool.Session(ctx, func(sess session.Session) error {
		rows, err := connection(sess).Query(q.SQL, q.Params...)
		if err != nil {
			return errors.Wrap(err, "query failed")
		}
		result, err = scan(rows, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	if !p.CountOnly {
		rows, err := e.Find(ctx, p)
		return int64(len(rows)), err
	}
	q, err := e.renderer.Render(p)
	if err != nil {
		return 0, err
	}
	var count int64
	err = e.pool.Session(ctx, func(sess session.Session) error {
		return errors.Wrap(connection(sess).QueryRow(q.SQL, q.Params...).Scan(&count), "count failed")
	})
	return count, err
}

func connection(sess session.Session) session.DbConnection {
	return sess.(session.DbSession).Connection()
}

func scan(rows session.Rows, q Query) (result []plan.Row, err error) {
	defer func() {
		if closeErr := rows.Close(); err == nil && closeErr != nil {
			err = errors.Wrap(closeErr, "reading rows failed")
		}
	}()
	result = []plan.Row{}
	for rows.Next() {
		values := make([]any, len(q.Columns))
		dest := make([]any, len(q.Columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan failed")
		}
		row := plan.Row{}
		for i, column := range q.Columns {
			value := normalize(values[i])
			if !q.Nested {
				row[column] = value
				continue
			}
			if value == nil && !parentPresent(row, column) {
				continue
			}
			plan.Set(row, column, value)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// parentPresent reports whether the record that would hold path exists.
func parentPresent(row plan.Row, path string) bool {
	i := strings.LastIndex(path, s.PathSeparator)
	if i < 0 {
		return true
	}
	v, ok := plan.Get(row, path[:i])
	return ok && v != nil
}

func normalize(value any) any {
	switch v := value.(type) {
	case [16]byte:
		return uuid.UUID(v)
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case float32:
		return cast.ToFloat64(v)
	}
	return value
}
