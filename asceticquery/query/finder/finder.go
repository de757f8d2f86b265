package finder

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	query "github.com/krew-solutions/ascetic-query-go/asceticquery/query/domain"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/projection"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/schema"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Executor runs compiled plans against one backing store.
type Executor interface {
	Capabilities() operators.Capabilities
	Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error)
	Count(ctx context.Context, p *plan.Plan) (int64, error)
}

type Option func(*Finder)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Finder) {
		f.logger = logger
	}
}

// WithDefaultPageSize is the page size ConsumeInPages uses when the query spec
// carries none.
func WithDefaultPageSize(size int) Option {
	return func(f *Finder) {
		f.defaultPageSize = size
	}
}

// Finder compiles query specs for the executor's backend and runs them.
type Finder struct {
	compiler        *plan.Compiler
	executor        Executor
	mapper          *projection.Mapper
	logger          *zap.Logger
	defaultPageSize int
}

func NewFinder(catalog *schema.Catalog, executor Executor, opts ...Option) *Finder {
	f := &Finder{
		compiler:        plan.NewCompiler(catalog, plan.WithCapabilities(executor.Capabilities())),
		executor:        executor,
		mapper:          projection.NewMapper(),
		logger:          zap.NewNop(),
		defaultPageSize: 100,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Finder) Compiler() *plan.Compiler {
	return f.compiler
}

func (f *Finder) FindAll(ctx context.Context, root string, spec query.QuerySpec) ([]plan.Row, error) {
	p, err := f.compiler.Compile(root, spec)
	if err != nil {
		f.logger.Debug("compile failed", zap.String("root", root), zap.Error(err))
		return nil, err
	}
	f.logger.Debug("plan compiled",
		zap.String("plan_id", p.ID.String()),
		zap.String("root", root),
		zap.Any("stages", p.Kinds()),
	)
	rows, err := f.executor.Find(ctx, p)
	if err != nil {
		f.logger.Error("find failed", zap.String("plan_id", p.ID.String()), zap.Error(err))
		return nil, errors.Wrapf(err, "find %s", root)
	}
	return rows, nil
}

func (f *Finder) Count(ctx context.Context, root string, spec query.QuerySpec) (int64, error) {
	p, err := f.compiler.CompileCount(root, spec)
	if err != nil {
		return 0, err
	}
	f.logger.Debug("count plan compiled",
		zap.String("plan_id", p.ID.String()),
		zap.String("root", root),
		zap.Any("stages", p.Kinds()),
	)
	n, err := f.executor.Count(ctx, p)
	if err != nil {
		f.logger.Error("count failed", zap.String("plan_id", p.ID.String()), zap.Error(err))
		return 0, errors.Wrapf(err, "count %s", root)
	}
	return n, nil
}

// FindPage returns one page of spec together with the total it was cut
// from. The query spec must carry a page size.
func (f *Finder) FindPage(ctx context.Context, root string, spec query.QuerySpec) (query.Page[plan.Row], error) {
	if spec.Page.Size == nil {
		return query.Page[plan.Row]{}, errors.New("find page: spec has no page size")
	}
	total, err := f.Count(ctx, root, spec)
	if err != nil {
		return query.Page[plan.Row]{}, err
	}
	rows, err := f.FindAll(ctx, root, spec)
	if err != nil {
		return query.Page[plan.Row]{}, err
	}
	return query.Page[plan.Row]{
		Content:       rows,
		TotalElements: total,
		PageIndex:     spec.Page.IndexOr(0),
		PageSize:      *spec.Page.Size,
	}, nil
}

// FindProjected materializes every row into shape.
func (f *Finder) FindProjected(ctx context.Context, root string, spec query.QuerySpec, shape *projection.Shape) ([]any, error) {
	rows, err := f.FindAll(ctx, root, spec)
	if err != nil {
		return nil, err
	}
	return f.mapper.MapAll(rows, shape)
}

// FindAs is FindProjected for shapes producing T.
func FindAs[T any](ctx context.Context, f *Finder, root string, spec query.QuerySpec, shape *projection.Shape) ([]T, error) {
	rows, err := f.FindAll(ctx, root, spec)
	if err != nil {
		return nil, err
	}
	return projection.MapAs[T](f.mapper, rows, shape)
}

// ConsumeInPages counts once, then fetches ceil(count/size) pages in order
// and hands each to fn before requesting the next. The first error stops
// the loop; pages already handed over stay consumed. A size that is not
// positive is malformed.
func (f *Finder) ConsumeInPages(ctx context.Context, root string, spec query.QuerySpec, fn func(page query.Page[plan.Row]) error) error {
	if err := spec.Page.Validate(); err != nil {
		return err
	}
	size := spec.Page.SizeOr(f.defaultPageSize)
	if err := (query.Pagination{Size: &size}).Validate(); err != nil {
		return err
	}
	unpaged := spec.WithoutPage()
	total, err := f.Count(ctx, root, unpaged)
	if err != nil {
		return err
	}
	pages := query.PageCount(total, size)
	f.logger.Debug("consuming in pages",
		zap.String("root", root),
		zap.Int64("total", total),
		zap.Int("pages", pages),
		zap.Int("page_size", size),
	)
	for index := 0; index < pages; index++ {
		rows, err := f.FindAll(ctx, root, unpaged.WithPage(index, size))
		if err != nil {
			return err
		}
		page := query.Page[plan.Row]{
			Content:       rows,
			TotalElements: total,
			PageIndex:     index,
			PageSize:      size,
		}
		if err := fn(page); err != nil {
			return errors.Wrapf(err, "consume page %d of %s", index, root)
		}
	}
	return nil
}
