package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PrefillTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generation_prefill_tokens_total",
		Help: "Total number of prompt tokens processed during prefill",
	})

	DecodeTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generation_decode_tokens_total",
		Help: "Total number of tokens produced by the decode loop",
	})

	PrefillDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "generation_prefill_duration_seconds",
		Help: "Duration of the prefill forward pass per turn",
	})

	DecodeDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "generation_decode_duration_seconds",
		Help: "Duration of the serial decode phase per turn",
	})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generation_turns_total",
		Help: "Completed generation turns by conversation mode",
	}, []string{"mode"})

	EOSTerminationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "generation_eos_terminations_total",
		Help: "Turns ended early by the end-of-sequence token",
	})

	ContextTruncationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "context_truncations_total",
		Help: "Turns whose prompt window had to be front-truncated",
	})

	TruncatedTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "context_truncated_tokens_total",
		Help: "Tokens dropped from the front of the context window",
	})

	ContextLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "context_length_tokens",
		Help:    "Distribution of accepted prompt window lengths",
		Buckets: []float64{16, 64, 128, 256, 512, 1024, 2048, 4096},
	})

	EmitterDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emitter_dropped_tokens_total",
		Help: "Byte-fallback tokens dropped because they were not plain ASCII",
	})

	ModelLoadSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "model_load_seconds",
		Help: "Wall time spent parsing the weight container",
	})

	ModelFootprintBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "model_footprint_bytes",
		Help: "Aggregate quantized tensor footprint of the loaded container",
	})
)

// ObservePrefill records one completed prefill phase.
func ObservePrefill(tokens int, d time.Duration) {
	PrefillTokensTotal.Add(float64(tokens))
	PrefillDuration.Observe(d.Seconds())
}

// ObserveDecode records one completed decode phase.
func ObserveDecode(tokens int, d time.Duration) {
	DecodeTokensTotal.Add(float64(tokens))
	DecodeDuration.Observe(d.Seconds())
}
