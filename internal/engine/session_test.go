package engine

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/23skdu/longbow-volley/internal/tokenizer"
)

type forwardCall struct {
	tokens []int
	pos    int
}

// scriptedModel replays a fixed sequence of logits vectors, recording every
// forward call. The last vector repeats once the script runs out.
type scriptedModel struct {
	logits [][]float32
	calls  []forwardCall
	err    error
}

func (m *scriptedModel) Forward(tokens []int, pos int) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, forwardCall{append([]int(nil), tokens...), pos})
	idx := len(m.calls) - 1
	if idx >= len(m.logits) {
		idx = len(m.logits) - 1
	}
	return append([]float32(nil), m.logits[idx]...), nil
}

// peak builds a logits vector of the given size with a single spike.
func peak(size, id int) []float32 {
	out := make([]float32, size)
	out[id] = 10
	return out
}

// fakeTok maps whitespace-separated words through a fixed vocab, skipping
// anything unknown, and records every text it was asked to encode.
type fakeTok struct {
	vocab   []string
	eos     int
	encoded []string
}

func (f *fakeTok) Encode(text string) ([]tokenizer.Token, error) {
	f.encoded = append(f.encoded, text)
	var out []tokenizer.Token
	for _, w := range strings.Fields(text) {
		for id, v := range f.vocab {
			if v == w {
				out = append(out, tokenizer.Token{Text: w, ID: id})
				break
			}
		}
	}
	return out, nil
}

func (f *fakeTok) IDToText(id int) string { return f.vocab[id] }

func (f *fakeTok) EOS() (int, bool) { return f.eos, true }

func newTestTok() *fakeTok {
	return &fakeTok{vocab: []string{"hello", "world", "foo", "bar", "</s>"}, eos: 4}
}

func greedySampler() *Sampler {
	return NewSampler(SamplerConfig{Temperature: 0, RepeatPenalty: 1.0, Seed: 1})
}

func TestSessionSingleShotOneToken(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      SingleShot{Prompt: "hello world"},
		SampleLen: 1,
		MaxSeqLen: 64,
	}, strings.NewReader(""), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// With one token to sample there is a prefill pass and no decode loop.
	if len(m.calls) != 1 {
		t.Fatalf("forward calls = %d, want 1", len(m.calls))
	}
	if !reflect.DeepEqual(m.calls[0].tokens, []int{0, 1}) || m.calls[0].pos != 0 {
		t.Errorf("prefill call = %+v", m.calls[0])
	}
	if !strings.Contains(out.String(), "foo") {
		t.Errorf("output missing generated token: %q", out.String())
	}
}

func TestSessionDecodePositions(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2), peak(5, 3), peak(5, 2)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      SingleShot{Prompt: "hello world"},
		SampleLen: 3,
		MaxSeqLen: 64,
	}, strings.NewReader(""), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(m.calls) != 3 {
		t.Fatalf("forward calls = %d, want 3", len(m.calls))
	}

	// Decode steps feed one token each at its absolute offset.
	if !reflect.DeepEqual(m.calls[1].tokens, []int{2}) || m.calls[1].pos != 2 {
		t.Errorf("decode call 1 = %+v", m.calls[1])
	}
	if !reflect.DeepEqual(m.calls[2].tokens, []int{3}) || m.calls[2].pos != 3 {
		t.Errorf("decode call 2 = %+v", m.calls[2])
	}
}

func TestSessionStopsAtEOS(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2), peak(5, 4)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      SingleShot{Prompt: "hello"},
		SampleLen: 50,
		MaxSeqLen: 4096,
	}, strings.NewReader(""), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	// Prefill plus a single decode step that produced the terminator.
	if len(m.calls) != 2 {
		t.Errorf("forward calls = %d, want 2", len(m.calls))
	}
}

func TestSessionChatCarryOver(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2), peak(5, 3)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      Chat{},
		SampleLen: 2,
		MaxSeqLen: 64,
	}, strings.NewReader("hello\n"), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// One turn: prompt [hello] generated [foo bar]; the carry-over is the
	// accepted prompt followed by everything generated.
	if got := sess.CarryOver(); !reflect.DeepEqual(got, []int{0, 2, 3}) {
		t.Errorf("CarryOver() = %v, want [0 2 3]", got)
	}
}

func TestSessionChatSecondTurnSeesHistory(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{
		peak(5, 2), peak(5, 3), // turn 1: foo, bar
		peak(5, 2), peak(5, 4), // turn 2: foo, </s>
	}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      Chat{},
		SampleLen: 2,
		MaxSeqLen: 64,
	}, strings.NewReader("hello\nworld\n"), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Turn 2's prefill is carry-over [0 2 3] plus the new prompt [1].
	if len(m.calls) != 4 {
		t.Fatalf("forward calls = %d, want 4", len(m.calls))
	}
	if !reflect.DeepEqual(m.calls[2].tokens, []int{0, 2, 3, 1}) || m.calls[2].pos != 0 {
		t.Errorf("turn 2 prefill = %+v", m.calls[2])
	}
}

func TestSessionInteractiveDiscardsHistory(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      Interactive{},
		SampleLen: 1,
		MaxSeqLen: 64,
	}, strings.NewReader("hello\nworld\n"), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if got := sess.CarryOver(); len(got) != 0 {
		t.Errorf("CarryOver() = %v, want empty", got)
	}
	// Turn 2's prefill sees only its own prompt.
	if len(m.calls) != 2 {
		t.Fatalf("forward calls = %d, want 2", len(m.calls))
	}
	if !reflect.DeepEqual(m.calls[1].tokens, []int{1}) {
		t.Errorf("turn 2 prefill tokens = %v, want [1]", m.calls[1].tokens)
	}
}

func TestSessionInstructWrapsPrompt(t *testing.T) {
	m := &scriptedModel{logits: [][]float32{peak(5, 2)}}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      Interactive{},
		SampleLen: 1,
		MaxSeqLen: 64,
		Instruct:  true,
	}, strings.NewReader("hello\n"), &out)

	if err := sess.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(tok.encoded) != 1 || tok.encoded[0] != "[INST] hello [/INST]" {
		t.Errorf("encoded prompts = %q", tok.encoded)
	}
}

func TestSessionForwardErrorIsFatal(t *testing.T) {
	cause := errors.New("compute backend gone")
	m := &scriptedModel{err: cause}
	tok := newTestTok()
	var out bytes.Buffer

	sess := NewSession(m, tok, greedySampler(), SessionConfig{
		Mode:      SingleShot{Prompt: "hello"},
		SampleLen: 5,
		MaxSeqLen: 64,
	}, strings.NewReader(""), &out)

	err := sess.Run()
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("Run() error = %v, want *EvalError", err)
	}
	if evalErr.Phase != "prefill" {
		t.Errorf("Phase = %q, want prefill", evalErr.Phase)
	}
	if !errors.Is(err, cause) {
		t.Error("EvalError does not unwrap to the forward error")
	}
}

func TestSessionSeedReproducible(t *testing.T) {
	run := func() string {
		m := &scriptedModel{logits: [][]float32{{1.0, 0.9, 1.1, 0.8, 0.2}}}
		tok := newTestTok()
		var out bytes.Buffer
		sess := NewSession(m, tok, NewSampler(SamplerConfig{
			Temperature: 0.8, Seed: 299792458, RepeatPenalty: 1.1, RepeatLastN: 64,
		}), SessionConfig{
			Mode:      SingleShot{Prompt: "hello world"},
			SampleLen: 8,
			MaxSeqLen: 4096,
		}, strings.NewReader(""), &out)
		if err := sess.Run(); err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		// Compare only the generated text; the throughput lines after the
		// blank separator are timing-dependent.
		text := out.String()
		if i := strings.Index(text, "\n\n"); i >= 0 {
			text = text[:i]
		}
		return text
	}

	first := run()
	for i := 0; i < 3; i++ {
		if got := run(); got != first {
			t.Fatalf("run %d produced different output:\n%q\nvs\n%q", i, got, first)
		}
	}
}
