package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Renders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkpost",
		Name:      "renders_total",
		Help:      "Markdown documents rendered.",
	})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inkpost",
		Name:      "render_duration_seconds",
		Help:      "Time spent rendering one markdown document.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
	})

	// MathSpans is labeled by span kind (inline, block) and result (ok, fallback).
	MathSpans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkpost",
		Name:      "math_spans_total",
		Help:      "Math spans typeset, by kind and result.",
	}, []string{"kind", "result"})

	PlaceholderViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkpost",
		Name:      "placeholder_violations_total",
		Help:      "Renders where a math placeholder was not restored exactly once.",
	})

	// BackfillRows is labeled by table and result (updated, skipped, failed).
	BackfillRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkpost",
		Name:      "backfill_rows_total",
		Help:      "Stored rows processed by the backfill, by table and result.",
	}, []string{"table", "result"})
)

// InitMetrics serves the default registry on addr in the background.
func InitMetrics(enabled bool, addr string) {
	if !enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	go func() {
		slog.Info("Serving metrics", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("Error with Prometheus metrics", slog.Any("err", err))
		}
	}()
}
