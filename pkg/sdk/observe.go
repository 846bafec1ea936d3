package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	answers       *prometheus.CounterVec
	indexedChunks prometheus.Gauge
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Subsystem: "sdk",
			Name:      "operations_total",
			Help:      "Total SDK operations by type and outcome (ok, partial, rejected, aborted, error).",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "copilot",
			Subsystem: "sdk",
			Name:      "operation_duration_seconds",
			Help:      "SDK operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Subsystem: "sdk",
			Name:      "answers_total",
			Help:      "Completed answers by whether document context grounded them.",
		}, []string{"grounded"}),
		indexedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot",
			Subsystem: "sdk",
			Name:      "indexed_chunks",
			Help:      "Chunks in the index after the last successful Index call.",
		}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.answers); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.indexedChunks); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("copilot: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("copilot: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK operations.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

// Operation outcomes, recorded in the status label.
const (
	outcomeOK       = "ok"
	outcomePartial  = "partial"
	outcomeRejected = "rejected"
	outcomeAborted  = "aborted"
	outcomeError    = "error"
)

// outcomeOf classifies err. Rejected calls were refused before any provider
// was contacted; partial builds indexed some documents and skipped others.
func outcomeOf(err error) string {
	var buildErr *BuildError
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &buildErr) && len(buildErr.Succeeded) > 0:
		return outcomePartial
	case errors.Is(err, ErrEmptyQuestion),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrNoDocuments),
		errors.Is(err, ErrDuplicateReference),
		errors.Is(err, ErrReferenceNotFound):
		return outcomeRejected
	case errors.Is(err, ErrStreamAborted), errors.Is(err, context.Canceled):
		return outcomeAborted
	default:
		return outcomeError
	}
}

func (o *observer) observe(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	outcome := outcomeOf(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, outcome).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}
	if o.logger == nil {
		return
	}

	attrs = append([]slog.Attr{slog.String("op", op), slog.Duration("duration", dur)}, attrs...)
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	switch outcome {
	case outcomeRejected:
		o.logger.LogAttrs(ctx, slog.LevelDebug, "operation rejected", attrs...)
	case outcomeAborted:
		o.logger.LogAttrs(ctx, slog.LevelInfo, "operation aborted", attrs...)
	case outcomePartial:
		o.logger.LogAttrs(ctx, slog.LevelWarn, "operation partially failed", attrs...)
	case outcomeError:
		o.logger.LogAttrs(ctx, slog.LevelWarn, "operation failed", attrs...)
	default:
		o.logger.LogAttrs(ctx, slog.LevelDebug, "operation completed", attrs...)
	}
}

// observeIndex records an Index call with its build report.
func (o *observer) observeIndex(ctx context.Context, start time.Time, report BuildReport, err error) {
	if o == nil {
		return
	}
	if o.metrics != nil && report.Documents > 0 && len(report.Succeeded) > 0 {
		o.metrics.indexedChunks.Set(float64(report.Chunks))
	}
	o.observe(ctx, "index", start, err,
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Any("failed", report.Failed),
	)
}

// observeAsk records an Ask call with how the answer was grounded.
func (o *observer) observeAsk(ctx context.Context, start time.Time, ans Answer, err error) {
	if o == nil {
		return
	}
	if o.metrics != nil && err == nil {
		o.metrics.answers.WithLabelValues(strconv.FormatBool(ans.Grounded)).Inc()
	}
	o.observe(ctx, "ask", start, err,
		slog.Bool("grounded", ans.Grounded),
		slog.Int("sources", len(ans.Sources)),
		slog.Bool("has_reasoning", ans.Response.HasReasoning),
	)
}
