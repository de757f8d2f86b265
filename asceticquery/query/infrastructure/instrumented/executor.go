package instrumented

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/finder"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
	"github.com/krew-solutions/ascetic-query-go/asceticquery/specification/domain/operators"
)

// Metrics are shared by every executor of a process.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "asceticquery_execution_duration_seconds",
				Help:    "Duration of plan executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asceticquery_execution_errors_total",
				Help: "Total number of failed plan executions",
			},
			[]string{"backend", "operation"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asceticquery_rows_total",
				Help: "Total number of rows returned by finds",
			},
			[]string{"backend"},
		),
	}
}

// Executor decorates another executor with metrics and logs.
type Executor struct {
	next    finder.Executor
	metrics *Metrics
	logger  *zap.Logger
}

func NewExecutor(next finder.Executor, metrics *Metrics, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		next:    next,
		metrics: metrics,
		logger:  logger,
	}
}

func (e *Executor) Capabilities() operators.Capabilities {
	return e.next.Capabilities()
}

func (e *Executor) Find(ctx context.Context, p *plan.Plan) ([]plan.Row, error) {
	done := e.observe("find", p)
	rows, err := e.next.Find(ctx, p)
	done(err, zap.Int("rows", len(rows)))
	if err == nil {
		e.metrics.rows.WithLabelValues(e.backend()).Add(float64(len(rows)))
	}
	return rows, err
}

func (e *Executor) Count(ctx context.Context, p *plan.Plan) (int64, error) {
	done := e.observe("count", p)
	n, err := e.next.Count(ctx, p)
	done(err, zap.Int64("count", n))
	return n, err
}

func (e *Executor) backend() string {
	return string(e.next.Capabilities().Backend())
}

func (e *Executor) observe(operation string, p *plan.Plan) func(err error, fields ...zap.Field) {
	start := time.Now()
	backend := e.backend()
	return func(err error, fields ...zap.Field) {
		elapsed := time.Since(start)
		e.metrics.duration.WithLabelValues(backend, operation).Observe(elapsed.Seconds())
		fields = append(fields,
			zap.String("plan_id", p.ID.String()),
			zap.String("backend", backend),
			zap.Duration("elapsed", elapsed),
		)
		if err != nil {
			e.metrics.errors.WithLabelValues(backend, operation).Inc()
			e.logger.Error(operation+" failed", append(fields, zap.Error(err))...)
			return
		}
		e.logger.Debug(operation+" executed", fields...)
	}
}
