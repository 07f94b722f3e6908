package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/23skdu/longbow-volley/internal/emitter"
	"github.com/23skdu/longbow-volley/internal/logger"
	"github.com/23skdu/longbow-volley/internal/metrics"
	"github.com/23skdu/longbow-volley/internal/model"
	"github.com/23skdu/longbow-volley/internal/tokenizer"
)

// Tokenizer is the text<->id capability the session consumes.
type Tokenizer interface {
	Encode(text string) ([]tokenizer.Token, error)
	IDToText(id int) string
	EOS() (int, bool)
}

// EvalError reports a forward-pass failure. There is no safe partial-turn
// recovery, so it is fatal for the invocation.
type EvalError struct {
	Phase string // "prefill" or "decode"
	Err   error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("model evaluation failed during %s: %v", e.Phase, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// SessionConfig fixes the per-process generation behavior.
type SessionConfig struct {
	Mode          Mode
	SampleLen     int // tokens per turn, including the prefill token
	MaxSeqLen     int
	Instruct      bool // wrap re-prompted turns in the instruction template
	VerbosePrompt bool
}

// Session owns all mutable decoding state: the carry-over history for chat
// mode, the active turn's tokens, and the sampler's random stream. One
// session per process; everything runs on the caller's goroutine.
type Session struct {
	model   model.Model
	tok     Tokenizer
	sampler *Sampler
	emit    *emitter.Emitter
	cfg     SessionConfig

	in  *bufio.Reader
	out io.Writer
	log *logger.Logger

	carryOver []int
}

func NewSession(m model.Model, tok Tokenizer, sampler *Sampler, cfg SessionConfig, in io.Reader, out io.Writer) *Session {
	return &Session{
		model:   m,
		tok:     tok,
		sampler: sampler,
		emit:    emitter.New(tok, out),
		cfg:     cfg,
		in:      bufio.NewReader(in),
		out:     out,
		log:     logger.Log.With("session"),
	}
}

// CarryOver exposes the cross-turn history. Empty unless mode is Chat.
func (s *Session) CarryOver() []int {
	return s.carryOver
}

// Run drives turns until the mode halts the session or input is exhausted.
func (s *Session) Run() error {
	for {
		halt, err := s.runTurn()
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
	}
}

func (s *Session) runTurn() (halt bool, err error) {
	promptText, err := s.readPrompt()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	fmt.Fprint(s.out, promptText)

	encoded, err := s.tok.Encode(promptText)
	if err != nil {
		return false, fmt.Errorf("tokenizer: %w", err)
	}
	if s.cfg.VerbosePrompt {
		emitter.EchoPrompt(s.out, encoded)
	}

	ids := make([]int, len(encoded))
	for i, t := range encoded {
		ids[i] = t.ID
	}

	toSample := s.cfg.SampleLen - 1
	if toSample < 0 {
		toSample = 0
	}
	promptTokens := FitWindow(s.carryOver, ids, toSample, s.cfg.MaxSeqLen)
	metrics.ContextLength.Observe(float64(len(promptTokens)))

	// Prefill: one pass over the whole accepted prompt at offset 0.
	prefillStart := time.Now()
	logits, err := s.model.Forward(promptTokens, 0)
	if err != nil {
		return false, &EvalError{Phase: "prefill", Err: err}
	}
	next := s.sampler.Sample(logits, nil)
	prefillDur := time.Since(prefillStart)

	generated := []int{next}
	if err := s.emit.Emit(next); err != nil {
		return false, err
	}
	metrics.ObservePrefill(len(promptTokens), prefillDur)

	eosID, hasEOS := s.tok.EOS()

	// Decode: one token per step at its absolute position.
	decodeStart := time.Now()
	for i := 0; i < toSample; i++ {
		logits, err := s.model.Forward([]int{next}, len(promptTokens)+i)
		if err != nil {
			return false, &EvalError{Phase: "decode", Err: err}
		}
		next = s.sampler.Sample(logits, generated)
		// The terminator stays in the history: it was sampled, so it
		// participates in the repeat-penalty lookback.
		generated = append(generated, next)
		if err := s.emit.Emit(next); err != nil {
			return false, err
		}
		if hasEOS && next == eosID {
			metrics.EOSTerminationsTotal.Inc()
			break
		}
	}
	decodeDur := time.Since(decodeStart)
	metrics.ObserveDecode(len(generated)-1, decodeDur)

	fmt.Fprintf(s.out, "\n\n%4d prompt tokens processed: %.2f token/s\n",
		len(promptTokens), float64(len(promptTokens))/prefillDur.Seconds())
	fmt.Fprintf(s.out, "%4d tokens generated: %.2f token/s\n",
		toSample, float64(toSample)/decodeDur.Seconds())

	metrics.TurnsTotal.WithLabelValues(s.cfg.Mode.String()).Inc()
	s.log.Debug("turn complete",
		"mode", s.cfg.Mode.String(),
		"prompt_tokens", len(promptTokens),
		"generated", len(generated),
	)

	switch s.cfg.Mode.(type) {
	case SingleShot:
		return true, nil
	case Interactive:
		// History is discarded between turns.
	case Chat:
		carry := make([]int, 0, len(promptTokens)+len(generated))
		carry = append(carry, promptTokens...)
		carry = append(carry, generated...)
		s.carryOver = carry
	}
	return false, nil
}

var promptMarker = color.New(color.FgCyan, color.Bold)

func (s *Session) readPrompt() (string, error) {
	switch m := s.cfg.Mode.(type) {
	case SingleShot:
		return m.Prompt, nil
	default:
		promptMarker.Fprint(s.out, "> ")
		line, err := s.in.ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if s.cfg.Instruct {
			line = fmt.Sprintf("[INST] %s [/INST]", line)
		}
		return line, nil
	}
}
