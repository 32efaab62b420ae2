package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultSlowQueryThreshold marks a viewer store query as slow
	DefaultSlowQueryThreshold = 200 * time.Millisecond
	// DefaultPoolStatsInterval is how often connection pool stats are sampled
	DefaultPoolStatsInterval = 15 * time.Second
)

// StoreMetrics records viewer store query latency and connection pool usage.
// It is installed on a *gorm.DB as a plugin.
type StoreMetrics struct {
	queries       *Counter
	queryDuration *Histogram
	slowQueries   *Counter
	poolConns     *Gauge

	slowThreshold time.Duration
	poolInterval  time.Duration
	logger        *zap.Logger

	sqlDB    *sql.DB
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// StoreMetricsOption configures StoreMetrics
type StoreMetricsOption func(*StoreMetrics)

// WithSlowQueryThreshold overrides DefaultSlowQueryThreshold
func WithSlowQueryThreshold(d time.Duration) StoreMetricsOption {
	return func(m *StoreMetrics) {
		if d > 0 {
			m.slowThreshold = d
		}
	}
}

// WithPoolStatsInterval overrides DefaultPoolStatsInterval
func WithPoolStatsInterval(d time.Duration) StoreMetricsOption {
	return func(m *StoreMetrics) {
		if d > 0 {
			m.poolInterval = d
		}
	}
}

// WithStoreLogger sets the logger used for slow query warnings
func WithStoreLogger(l *zap.Logger) StoreMetricsOption {
	return func(m *StoreMetrics) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewStoreMetrics registers the viewer store instruments on meter
func NewStoreMetrics(meter metric.Meter, opts ...StoreMetricsOption) (*StoreMetrics, error) {
	queries, err := NewCounter(meter, "db_query_total", "Viewer store queries by operation", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, "db_query_duration_seconds", "Viewer store query latency", "s", DBDurationBuckets...)
	if err != nil {
		return nil, err
	}
	slowQueries, err := NewCounter(meter, "db_slow_query_total", "Viewer store queries over the slow threshold", "{query}")
	if err != nil {
		return nil, err
	}
	poolConns, err := NewGauge(meter, "db_pool_connections", "Viewer store connections by state", "{connection}")
	if err != nil {
		return nil, err
	}

	m := &StoreMetrics{
		queries:       queries,
		queryDuration: queryDuration,
		slowQueries:   slowQueries,
		poolConns:     poolConns,
		slowThreshold: DefaultSlowQueryThreshold,
		poolInterval:  DefaultPoolStatsInterval,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name implements gorm.Plugin
func (m *StoreMetrics) Name() string {
	return "store_metrics"
}

// Initialize implements gorm.Plugin by registering timing callbacks around
// every statement kind
func (m *StoreMetrics) Initialize(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	m.sqlDB = sqlDB

	cb := db.Callback()
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) { m.observe(tx, operation) }
	}
	registrations := []func() error{
		func() error {
			return cb.Create().Before("gorm:create").Register("store_metrics:before_create", markStart)
		},
		func() error { return cb.Query().Before("gorm:query").Register("store_metrics:before_query", markStart) },
		func() error {
			return cb.Update().Before("gorm:update").Register("store_metrics:before_update", markStart)
		},
		func() error {
			return cb.Delete().Before("gorm:delete").Register("store_metrics:before_delete", markStart)
		},
		func() error { return cb.Row().Before("gorm:row").Register("store_metrics:before_row", markStart) },
		func() error { return cb.Raw().Before("gorm:raw").Register("store_metrics:before_raw", markStart) },
		func() error {
			return cb.Create().After("gorm:create").Register("store_metrics:after_create", after("INSERT"))
		},
		func() error {
			return cb.Query().After("gorm:query").Register("store_metrics:after_query", after("SELECT"))
		},
		func() error {
			return cb.Update().After("gorm:update").Register("store_metrics:after_update", after("UPDATE"))
		},
		func() error {
			return cb.Delete().After("gorm:delete").Register("store_metrics:after_delete", after("DELETE"))
		},
		func() error { return cb.Row().After("gorm:row").Register("store_metrics:after_row", after("")) },
		func() error { return cb.Raw().After("gorm:raw").Register("store_metrics:after_raw", after("")) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

type storeMetricsKey struct{}

func markStart(tx *gorm.DB) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tx.Statement.Context = context.WithValue(ctx, storeMetricsKey{}, time.Now())
}

func (m *StoreMetrics) observe(tx *gorm.DB, operation string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if operation == "" {
		operation = detectOperation(tx.Statement.SQL.String())
	}
	var elapsed time.Duration
	if start, ok := ctx.Value(storeMetricsKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	m.RecordQuery(ctx, operation, tx.Statement.Table, elapsed)
}

// RecordQuery records one finished statement
func (m *StoreMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration) {
	m.queries.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(operation))
	if elapsed <= m.slowThreshold {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.slowQueries.Inc(ctx, AttrDBTable.String(table))
	m.logger.Warn("Slow viewer store query",
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Duration("elapsed", elapsed),
	)
}

// StartPoolStats samples connection pool usage until ctx is done or Stop
// is called. It is a no-op before the plugin is installed.
func (m *StoreMetrics) StartPoolStats(ctx context.Context) {
	if m.sqlDB == nil {
		m.logger.Warn("Pool stats disabled: store metrics plugin not installed")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.poolInterval)
		defer ticker.Stop()

		m.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				m.collectPoolStats(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *StoreMetrics) collectPoolStats(ctx context.Context) {
	stats := m.sqlDB.Stats()
	m.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	m.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	m.poolConns.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool sampling. Safe to call more than once.
func (m *StoreMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

func detectOperation(query string) string {
	query = strings.ToUpper(strings.TrimSpace(query))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(query, op) {
			return op
		}
	}
	return "OTHER"
}
