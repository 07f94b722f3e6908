package engine

import "github.com/23skdu/longbow-volley/internal/metrics"

// WindowMargin reserves room between the accepted prompt window and the
// model's maximum sequence length.
const WindowMargin = 10

// FitWindow concatenates carry-over history with the new prompt tokens and
// enforces the context bound: when the concatenation plus the planned
// generation would overflow maxSeq - margin, tokens are dropped from the
// front only. The most recent tokens always survive, and the result always
// fits, even if the entire carry-over is discarded.
func FitWindow(carryOver, prompt []int, plannedNew, maxSeq int) []int {
	merged := make([]int, 0, len(carryOver)+len(prompt))
	merged = append(merged, carryOver...)
	merged = append(merged, prompt...)

	over := len(merged) + plannedNew - (maxSeq - WindowMargin)
	if over <= 0 {
		return merged
	}
	if over > len(merged) {
		over = len(merged)
	}

	metrics.ContextTruncationsTotal.Inc()
	metrics.TruncatedTokensTotal.Add(float64(over))
	return merged[over:]
}
