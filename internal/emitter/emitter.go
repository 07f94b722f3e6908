package emitter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/23skdu/longbow-volley/internal/metrics"
	"github.com/23skdu/longbow-volley/internal/tokenizer"
)

const spaceMarker = "▁" // ▁

// Vocab is the lookup the emitter needs from the tokenizer.
type Vocab interface {
	IDToText(id int) string
}

type flusher interface {
	Flush() error
}

// Emitter converts generated token ids to displayable text incrementally.
// Word-boundary markers become spaces; hex byte-fallback tokens are decoded
// and emitted only when they are plain ASCII, otherwise dropped. Output is
// flushed after every token so the caller sees text as it is produced.
type Emitter struct {
	vocab Vocab
	out   io.Writer
}

func New(vocab Vocab, out io.Writer) *Emitter {
	return &Emitter{vocab: vocab, out: out}
}

// Emit writes the textual form of one token id.
func (e *Emitter) Emit(id int) error {
	text := e.vocab.IDToText(id)
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, spaceMarker, " ")

	if b, ok := parseByteToken(text); ok {
		// Partial multi-byte sequences are dropped rather than buffered.
		if b > 0x7F {
			metrics.EmitterDroppedTotal.Inc()
			return nil
		}
		text = string(rune(b))
	}

	if _, err := io.WriteString(e.out, text); err != nil {
		return err
	}
	if f, ok := e.out.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// EmitAll is Emit over a token sequence, stopping on the first write error.
func (e *Emitter) EmitAll(ids []int) error {
	for _, id := range ids {
		if err := e.Emit(id); err != nil {
			return err
		}
	}
	return nil
}

// parseByteToken recognizes the tokenizer's raw-byte escape form <0xNN>.
func parseByteToken(text string) (byte, bool) {
	inner, ok := strings.CutPrefix(text, "<0x")
	if !ok {
		return 0, false
	}
	inner, ok = strings.CutSuffix(inner, ">")
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(inner, 16, 8)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}

// EchoPrompt prints one "id -> piece" line per prompt token, for the
// verbose-prompt flag. Boundary markers render as spaces and the newline
// byte token renders as a real newline.
func EchoPrompt(w io.Writer, tokens []tokenizer.Token) {
	for _, tok := range tokens {
		text := strings.ReplaceAll(tok.Text, spaceMarker, " ")
		text = strings.ReplaceAll(text, "<0x0A>", "\n")
		fmt.Fprintf(w, "%7d -> '%s'\n", tok.ID, text)
	}
}
