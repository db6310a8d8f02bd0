// Package telemetry provides OpenTelemetry instrumentation for the
// content scheduler. It exports Prometheus metrics and provides tracing
// capabilities.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "content-scheduler"

// Metrics holds all scheduler Prometheus metrics
type Metrics struct {
	// Program run metrics
	RunsStarted   *prometheus.CounterVec
	RunsFinalized *prometheus.CounterVec
	RunsRecovered prometheus.Counter
	RunDuration   prometheus.Histogram
	ProgramsReady prometheus.Gauge

	// Item metrics
	ItemsExpanded  prometheus.Counter
	ItemsGenerated *prometheus.CounterVec
	ItemsFailed    *prometheus.CounterVec
	GenerationCost prometheus.Counter

	// Publication metrics
	Published        *prometheus.CounterVec
	PublishFailed    *prometheus.CounterVec
	PublishDeferred  *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	PublishLag       prometheus.Histogram
	SchedulePaused   *prometheus.CounterVec
	QueueRecovered   prometheus.Counter
	QueueCleanedUp   prometheus.Counter
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	m := &Metrics{}
	initRunMetrics(m)
	initItemMetrics(m)
	initPublicationMetrics(m)
	return m
}

func initRunMetrics(m *Metrics) {
	m.RunsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_started_total",
		Help: "Total program runs started, by recurrence type",
	}, []string{"recurrence_type"})

	m.RunsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_finalized_total",
		Help: "Total program runs finalized, by terminal status",
	}, []string{"status"})

	m.RunsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_runs_recovered_total",
		Help: "Total stale runs failed and rescheduled by recovery",
	})

	m.RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_run_duration_seconds",
		Help:    "Time from run start to finalization",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
	})

	m.ProgramsReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_programs_ready",
		Help: "Programs due to run at the last tick",
	})
}

func initItemMetrics(m *Metrics) {
	m.ItemsExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_items_expanded_total",
		Help: "Total pending items created by run expansion",
	})

	m.ItemsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_items_generated_total",
		Help: "Total items that completed generation, by generation type",
	}, []string{"generation_type"})

	m.ItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_items_failed_total",
		Help: "Total items that failed generation, by generation type",
	}, []string{"generation_type"})

	m.GenerationCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_generation_cost_total",
		Help: "Accumulated generation cost across completed items",
	})
}

func initPublicationMetrics(m *Metrics) {
	m.Published = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_published_total",
		Help: "Total queue entries published, by destination",
	}, []string{"destination"})

	m.PublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_publish_failed_total",
		Help: "Total failed publish attempts, by destination",
	}, []string{"destination"})

	m.PublishDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_publish_deferred_total",
		Help: "Entries deferred by throttle capacity, by destination",
	}, []string{"destination"})

	m.QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_queue_depth",
		Help: "Current pending plus scheduled publication queue entries",
	})

	m.PublishLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_publish_lag_seconds",
		Help:    "Time between the assigned slot and the actual publish",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	})

	m.SchedulePaused = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_schedule_paused_total",
		Help: "Times a destination schedule auto-paused on errors",
	}, []string{"destination"})

	m.QueueRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_queue_recovered_total",
		Help: "Stale publishing entries reset back to pending",
	})

	m.QueueCleanedUp = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_queue_cleaned_up_total",
		Help: "Old published entries removed by cleanup",
	})
}

// RecordRunStarted records a started run
func (p *Provider) RecordRunStarted(recurrenceType string, itemsExpanded int) {
	p.Metrics.RunsStarted.WithLabelValues(recurrenceType).Inc()
	p.Metrics.ItemsExpanded.Add(float64(itemsExpanded))
}

// RecordRunFinalized records a finalized run with its duration
func (p *Provider) RecordRunFinalized(status string, duration time.Duration) {
	p.Metrics.RunsFinalized.WithLabelValues(status).Inc()
	p.Metrics.RunDuration.Observe(duration.Seconds())
}

// RecordItemGenerated records a completed item and its cost
func (p *Provider) RecordItemGenerated(generationType string, cost float64) {
	p.Metrics.ItemsGenerated.WithLabelValues(generationType).Inc()
	p.Metrics.GenerationCost.Add(cost)
}

// RecordItemFailed records a failed item
func (p *Provider) RecordItemFailed(generationType string) {
	p.Metrics.ItemsFailed.WithLabelValues(generationType).Inc()
}

// RecordPublish records a publish attempt outcome, with the lag between
// the assigned slot and the actual publish on success.
func (p *Provider) RecordPublish(destination string, scheduledAt time.Time, success bool) {
	if success {
		p.Metrics.Published.WithLabelValues(destination).Inc()
		if !scheduledAt.IsZero() {
			p.Metrics.PublishLag.Observe(time.Since(scheduledAt).Seconds())
		}
		return
	}
	p.Metrics.PublishFailed.WithLabelValues(destination).Inc()
}

// RecordPublishDeferred records an entry held back by throttle capacity
func (p *Provider) RecordPublishDeferred(destination string) {
	p.Metrics.PublishDeferred.WithLabelValues(destination).Inc()
}

// RecordSchedulePaused records a destination auto-pausing on errors
func (p *Provider) RecordSchedulePaused(destination string) {
	p.Metrics.SchedulePaused.WithLabelValues(destination).Inc()
}

// SetProgramsReady sets the ready-program gauge for the current tick
func (p *Provider) SetProgramsReady(count int) {
	p.Metrics.ProgramsReady.Set(float64(count))
}

// SetQueueDepth sets the current publication queue depth
func (p *Provider) SetQueueDepth(depth int64) {
	p.Metrics.QueueDepth.Set(float64(depth))
}

// AddRunsRecovered adds recovered stale runs
func (p *Provider) AddRunsRecovered(count int) {
	p.Metrics.RunsRecovered.Add(float64(count))
}

// AddQueueRecovered adds reset stale publishing entries
func (p *Provider) AddQueueRecovered(count int64) {
	p.Metrics.QueueRecovered.Add(float64(count))
}

// AddQueueCleanedUp adds removed published entries
func (p *Provider) AddQueueCleanedUp(count int64) {
	p.Metrics.QueueCleanedUp.Add(float64(count))
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
