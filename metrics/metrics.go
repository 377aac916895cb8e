// Package metrics exports Prometheus instrumentation for the processing engine.
//
// Every series carries a single "feature" label holding the algorithm name, so
// cardinality is bounded by the number of registered features.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_frames_processed_total",
		Help: "Frames enhanced by the algorithm",
	}, []string{"feature"})

	framesBypassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_frames_bypassed_total",
		Help: "Frames passed through while processing was disabled",
	}, []string{"feature"})

	processFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_process_failures_total",
		Help: "Frames dropped because the algorithm failed",
	}, []string{"feature"})

	eosDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_eos_delivered_total",
		Help: "End-of-stream markers delivered to the caller",
	}, []string{"feature"})

	buffersRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_buffers_rendered_total",
		Help: "Output buffers flushed to the output surface",
	}, []string{"feature"})

	buffersRecycled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_buffers_recycled_total",
		Help: "Output buffers released without rendering",
	}, []string{"feature"})

	surfaceSwaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpe_output_surface_swaps_total",
		Help: "Output surface replacements",
	}, []string{"feature"})

	renderPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vpe_render_pending_buffers",
		Help: "Output buffers handed to the caller and not yet released",
	}, []string{"feature"})

	processDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vpe_process_duration_seconds",
		Help:    "Time spent in the algorithm per frame",
		Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.016, 0.033, 0.05, 0.1},
	}, []string{"feature"})
)

// RecordProcessed records one successfully enhanced frame and its duration.
func RecordProcessed(feature string, duration time.Duration) {
	framesProcessed.WithLabelValues(feature).Inc()
	processDuration.WithLabelValues(feature).Observe(duration.Seconds())
}

// RecordBypassed records one frame passed through unprocessed.
func RecordBypassed(feature string) {
	framesBypassed.WithLabelValues(feature).Inc()
}

// RecordProcessFailure records one frame dropped by an algorithm failure.
func RecordProcessFailure(feature string) {
	processFailures.WithLabelValues(feature).Inc()
}

// RecordEOS records one delivered end-of-stream marker.
func RecordEOS(feature string) {
	eosDelivered.WithLabelValues(feature).Inc()
}

// RecordRelease records the caller's answer to an available output buffer.
func RecordRelease(feature string, render bool) {
	if render {
		buffersRendered.WithLabelValues(feature).Inc()
		return
	}
	buffersRecycled.WithLabelValues(feature).Inc()
}

// RecordSurfaceSwap records an output surface replacement.
func RecordSurfaceSwap(feature string) {
	surfaceSwaps.WithLabelValues(feature).Inc()
}

// SetRenderPending updates the render-pending gauge.
func SetRenderPending(feature string, count int) {
	renderPending.WithLabelValues(feature).Set(float64(count))
}
