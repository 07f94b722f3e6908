package engine

import (
	"math"
	"testing"
)

func TestSampleGreedy(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 1.0, Seed: 1})

	tests := []struct {
		name     string
		logits   []float32
		expected int
	}{
		{"clear winner", []float32{0.1, 3.5, 0.2, 1.0}, 1},
		{"first wins ties", []float32{2.0, 2.0, 2.0}, 0},
		{"all negative", []float32{-3, -1, -2}, 1},
		{"single candidate", []float32{0.5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sample(tt.logits, nil); got != tt.expected {
				t.Errorf("Sample() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestSampleSeedReproducible(t *testing.T) {
	logits := []float32{0.5, 1.0, 0.8, 0.2, 1.2, 0.1}
	cfg := SamplerConfig{Temperature: 0.8, Seed: 299792458, RepeatPenalty: 1.1, RepeatLastN: 64}

	a := NewSampler(cfg)
	b := NewSampler(cfg)

	var history []int
	for i := 0; i < 50; i++ {
		l1 := append([]float32(nil), logits...)
		l2 := append([]float32(nil), logits...)
		got1 := a.Sample(l1, history)
		got2 := b.Sample(l2, history)
		if got1 != got2 {
			t.Fatalf("step %d: samplers diverged: %d vs %d", i, got1, got2)
		}
		history = append(history, got1)
	}
}

func TestSampleTemperatureSharpening(t *testing.T) {
	// At a very low temperature the distribution collapses onto the
	// argmax, so sampling must agree with greedy.
	logits := []float32{1.0, 4.0, 2.0}
	s := NewSampler(SamplerConfig{Temperature: 0.01, Seed: 7, RepeatPenalty: 1.0})

	for i := 0; i < 20; i++ {
		if got := s.Sample(append([]float32(nil), logits...), nil); got != 1 {
			t.Fatalf("draw %d: Sample() = %d, want 1", i, got)
		}
	}
}

func TestApplyRepeatPenalty(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 2.0, RepeatLastN: 64, Seed: 1})

	logits := []float32{2.0, -2.0, 0.5, 1.0}
	s.applyRepeatPenalty(logits, []int{0, 1, 1, 0})

	if logits[0] != 1.0 {
		t.Errorf("positive logit = %v, want halved to 1.0", logits[0])
	}
	if logits[1] != -4.0 {
		t.Errorf("negative logit = %v, want scaled to -4.0", logits[1])
	}
	if logits[2] != 0.5 || logits[3] != 1.0 {
		t.Errorf("unpenalized logits changed: %v", logits)
	}
}

func TestApplyRepeatPenaltyIdempotentPerID(t *testing.T) {
	// A token repeated many times in the window is penalized once.
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 2.0, RepeatLastN: 64, Seed: 1})
	logits := []float32{8.0}
	s.applyRepeatPenalty(logits, []int{0, 0, 0, 0, 0})
	if logits[0] != 4.0 {
		t.Errorf("logit = %v, want 4.0 after a single division", logits[0])
	}
}

func TestApplyRepeatPenaltyLookbackWindow(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 2.0, RepeatLastN: 2, Seed: 1})

	logits := []float32{2.0, 2.0, 2.0}
	// Only the last two entries fall inside the window.
	s.applyRepeatPenalty(logits, []int{0, 1, 2})

	if logits[0] != 2.0 {
		t.Errorf("logit outside lookback penalized: %v", logits[0])
	}
	if logits[1] != 1.0 || logits[2] != 1.0 {
		t.Errorf("logits inside lookback = %v, %v, want both 1.0", logits[1], logits[2])
	}
}

func TestApplyRepeatPenaltyIgnoresOutOfRange(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 2.0, RepeatLastN: 64, Seed: 1})
	logits := []float32{1.0}
	// Must not panic on history ids outside the vocab.
	s.applyRepeatPenalty(logits, []int{-1, 5})
	if logits[0] != 1.0 {
		t.Errorf("logit = %v, want untouched", logits[0])
	}
}

func TestSampleAppliesPenaltyToHistory(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 10.0, RepeatLastN: 64, Seed: 1})

	// Token 0 leads, but a heavy penalty for having just been generated
	// hands the argmax to token 1.
	logits := []float32{3.0, 2.5}
	if got := s.Sample(logits, []int{0}); got != 1 {
		t.Errorf("Sample() = %d, want penalized runner-up 1", got)
	}
}

func TestSoftmaxWithTemperature(t *testing.T) {
	probs := softmaxWithTemperature([]float32{1.0, 2.0, 3.0}, 1.0)

	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("probabilities sum to %v, want 1.0", sum)
	}
	if !(probs[2] > probs[1] && probs[1] > probs[0]) {
		t.Errorf("ordering not preserved: %v", probs)
	}
}

func TestApplyTopP(t *testing.T) {
	candidates := []tokenProb{
		{id: 3, prob: 0.5},
		{id: 1, prob: 0.3},
		{id: 0, prob: 0.15},
		{id: 2, prob: 0.05},
	}

	kept := applyTopP(candidates, 0.7)
	if len(kept) != 2 {
		t.Fatalf("kept %d candidates, want 2", len(kept))
	}
	if kept[0].id != 3 || kept[1].id != 1 {
		t.Errorf("kept ids = %d, %d", kept[0].id, kept[1].id)
	}

	total := kept[0].prob + kept[1].prob
	if math.Abs(total-1.0) > 1e-9 {
		t.Errorf("renormalized mass = %v, want 1.0", total)
	}
}

func TestApplyTopPDisabled(t *testing.T) {
	candidates := []tokenProb{{id: 0, prob: 0.6}, {id: 1, prob: 0.4}}
	for _, p := range []float64{0.0, 1.0, -0.5, 1.5} {
		if got := applyTopP(candidates, p); len(got) != 2 {
			t.Errorf("p=%v: kept %d candidates, want all", p, len(got))
		}
	}
}

func TestNewSamplerZeroSeed(t *testing.T) {
	s := NewSampler(SamplerConfig{Temperature: 0.8})
	if s.Config.Seed == 0 {
		t.Error("zero seed not replaced with a clock-derived one")
	}
}
