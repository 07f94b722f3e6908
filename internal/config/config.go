package config

import "fmt"

// DefaultPrompt is used when no prompt is supplied.
const DefaultPrompt = "My favorite theorem is "

// Config is the full recognized configuration surface, supplied once at
// startup and immutable afterwards.
type Config struct {
	ModelPath     string
	TokenizerPath string
	Prompt        string // literal text, "interactive", or "chat"
	SampleLen     int
	Temperature   float64 // 0 = greedy
	TopP          float64 // 0 disables nucleus sampling
	Seed          int64
	RepeatPenalty float64 // 1.0 disables
	RepeatLastN   int
	Which         string // model family identifier
	GQA           int    // legacy-format grouping override, 0 = family default
	VerbosePrompt bool

	Backend      string
	FamiliesPath string // optional replacement family table
	MetricsAddr  string
	LogLevel     string
	LogFormat    string
}

func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.SampleLen <= 0 {
		return fmt.Errorf("invalid sample length: %d (must be positive)", c.SampleLen)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("invalid temperature: %f (must be non-negative)", c.Temperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("invalid top-p: %f (must be in [0, 1])", c.TopP)
	}
	if c.RepeatPenalty <= 0 {
		return fmt.Errorf("invalid repeat penalty: %f (must be positive)", c.RepeatPenalty)
	}
	if c.RepeatLastN < 0 {
		return fmt.Errorf("invalid repeat lookback: %d (must be non-negative)", c.RepeatLastN)
	}
	if c.GQA < 0 {
		return fmt.Errorf("invalid gqa override: %d (must be non-negative)", c.GQA)
	}
	if c.Which == "" {
		return fmt.Errorf("model family is required")
	}
	return nil
}

func Default() Config {
	return Config{
		Prompt:        DefaultPrompt,
		SampleLen:     100,
		Temperature:   0.8,
		Seed:          299792458,
		RepeatPenalty: 1.1,
		RepeatLastN:   64,
		Which:         "7b",
		Backend:       "native",
		MetricsAddr:   ":9090",
		LogLevel:      "info",
		LogFormat:     "console",
	}
}
