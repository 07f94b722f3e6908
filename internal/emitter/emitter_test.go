package emitter

import (
	"bytes"
	"testing"

	"github.com/23skdu/longbow-volley/internal/tokenizer"
)

type mapVocab map[int]string

func (m mapVocab) IDToText(id int) string { return m[id] }

func TestEmit(t *testing.T) {
	vocab := mapVocab{
		0: "▁hello",
		1: "world",
		2: "<0x41>",
		3: "<0xC3>",
		4: "▁a▁b",
		5: "",
	}

	tests := []struct {
		name     string
		ids      []int
		expected string
	}{
		{"boundary marker becomes space", []int{0, 1}, " helloworld"},
		{"ascii byte token decodes", []int{2}, "A"},
		{"non-ascii byte token dropped", []int{3}, ""},
		{"every marker replaced", []int{4}, " a b"},
		{"unknown id emits nothing", []int{5, 99}, ""},
		{"mixed stream", []int{0, 2, 3, 1}, " helloAworld"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			e := New(vocab, &out)
			if err := e.EmitAll(tt.ids); err != nil {
				t.Fatalf("EmitAll() error: %v", err)
			}
			if got := out.String(); got != tt.expected {
				t.Errorf("output = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseByteToken(t *testing.T) {
	tests := []struct {
		text string
		b    byte
		ok   bool
	}{
		{"<0x41>", 0x41, true},
		{"<0x0A>", 0x0A, true},
		{"<0xFF>", 0xFF, true},
		{"<0x4>", 0x4, true},
		{"plain", 0, false},
		{"<0x41", 0, false},
		{"0x41>", 0, false},
		{"<0xZZ>", 0, false},
		{"<0x123>", 0, false}, // out of byte range
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b, ok := parseByteToken(tt.text)
			if ok != tt.ok || b != tt.b {
				t.Errorf("parseByteToken(%q) = %#x, %v, want %#x, %v", tt.text, b, ok, tt.b, tt.ok)
			}
		})
	}
}

func TestEchoPrompt(t *testing.T) {
	var out bytes.Buffer
	EchoPrompt(&out, []tokenizer.Token{
		{Text: "▁hello", ID: 12},
		{Text: "<0x0A>", ID: 13},
	})

	expected := "     12 -> ' hello'\n     13 -> '\n'\n"
	if got := out.String(); got != expected {
		t.Errorf("EchoPrompt output = %q, want %q", got, expected)
	}
}
