package engine

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// SamplerConfig is fixed for the process lifetime.
type SamplerConfig struct {
	Temperature   float64 // 0 = greedy argmax
	TopP          float64 // nucleus cutoff; <=0 or >=1 disables
	Seed          int64
	RepeatPenalty float64 // 1.0 = disabled
	RepeatLastN   int     // lookback window over generated tokens
}

// Sampler converts a logits vector plus running repetition history into a
// chosen token id. Its pseudo-random stream is seeded once and advances
// across the whole session, so runs with the same seed and logits sequence
// reproduce the same output.
type Sampler struct {
	Config SamplerConfig
	rng    *rand.Rand
}

func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Sampler{
		Config: cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Sample picks the next token id. history holds the tokens generated so far
// this turn; the prompt is never penalized.
func (s *Sampler) Sample(logits []float32, history []int) int {
	if s.Config.RepeatPenalty != 1.0 && len(history) > 0 {
		s.applyRepeatPenalty(logits, history)
	}

	if s.Config.Temperature == 0 {
		return argMax(logits)
	}

	probs := softmaxWithTemperature(logits, s.Config.Temperature)

	candidates := make([]tokenProb, 0, len(probs))
	for i, p := range probs {
		candidates = append(candidates, tokenProb{id: i, prob: p})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].prob > candidates[j].prob
	})

	candidates = applyTopP(candidates, s.Config.TopP)

	return s.drawFrom(candidates)
}

// applyRepeatPenalty rescales the logits of every id seen in the last
// RepeatLastN history entries: divide when positive, multiply when
// negative, lowering the odds of a repeat either way.
func (s *Sampler) applyRepeatPenalty(logits []float32, history []int) {
	start := 0
	if s.Config.RepeatLastN > 0 && len(history) > s.Config.RepeatLastN {
		start = len(history) - s.Config.RepeatLastN
	}

	seen := make(map[int]struct{})
	for _, id := range history[start:] {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if id >= 0 && id < len(logits) {
			if logits[id] > 0 {
				logits[id] /= float32(s.Config.RepeatPenalty)
			} else {
				logits[id] *= float32(s.Config.RepeatPenalty)
			}
		}
	}
}

func (s *Sampler) drawFrom(candidates []tokenProb) int {
	sum := 0.0
	for _, c := range candidates {
		sum += c.prob
	}

	r := s.rng.Float64() * sum
	acc := 0.0
	for _, c := range candidates {
		acc += c.prob
		if r < acc {
			return c.id
		}
	}
	return candidates[len(candidates)-1].id
}

type tokenProb struct {
	id   int
	prob float64
}

func argMax(logits []float32) int {
	maxIdx := 0
	maxVal := logits[0]
	for i, v := range logits {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx
}

// softmaxWithTemperature scales logits by 1/temperature and converts to a
// probability distribution, max-subtracted for stability.
func softmaxWithTemperature(logits []float32, temperature float64) []float64 {
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = float64(v) / temperature
	}

	maxVal := probs[0]
	for _, v := range probs {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for i := range probs {
		probs[i] = math.Exp(probs[i] - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// applyTopP keeps the smallest descending-probability prefix whose
// cumulative mass reaches p, renormalized. Expects candidates sorted by
// descending probability.
func applyTopP(candidates []tokenProb, p float64) []tokenProb {
	if p <= 0.0 || p >= 1.0 {
		return candidates
	}

	sum := 0.0
	for i, c := range candidates {
		sum += c.prob
		if sum >= p {
			selected := candidates[:i+1]

			total := 0.0
			for _, c := range selected {
				total += c.prob
			}
			for i := range selected {
				selected[i].prob /= total
			}
			return selected
		}
	}
	return candidates
}
