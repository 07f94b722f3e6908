package tokenizer

import (
	"fmt"
	"strings"
)

const (
	bosToken = "<s>"
	eosToken = "</s>"

	// spaceMarker is the sentencepiece word-boundary character.
	spaceMarker = "▁" // ▁
)

// Token pairs one encoded piece's textual form with its vocabulary id.
type Token struct {
	Text string
	ID   int
}

// Tokenizer maps text to vocabulary ids and back. The vocab comes either
// from the container's embedded metadata or from a tokenizer.json file;
// encoding is score-greedy sentencepiece merging with byte fallback.
type Tokenizer struct {
	tokens []string
	scores []float32
	vocab  map[string]int
}

// FromKV builds a tokenizer from GGUF metadata pairs.
func FromKV(kv map[string]interface{}) (*Tokenizer, error) {
	val, ok := kv["tokenizer.ggml.tokens"]
	if !ok {
		return nil, fmt.Errorf("tokenizer.ggml.tokens not found in container metadata")
	}
	arr, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid type for tokenizer.ggml.tokens")
	}

	tokens := make([]string, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("token %d is not a string", i)
		}
		tokens[i] = s
	}

	var scores []float32
	if val, ok := kv["tokenizer.ggml.scores"].([]interface{}); ok && len(val) == len(tokens) {
		scores = make([]float32, len(val))
		for i, v := range val {
			if f, ok := v.(float32); ok {
				scores[i] = f
			}
		}
	}

	return FromVocab(tokens, scores), nil
}

// FromVocab builds a tokenizer from an explicit token table. scores may be
// nil, in which case merge order falls back to longest-piece-first behavior
// implied by zero scores.
func FromVocab(tokens []string, scores []float32) *Tokenizer {
	if scores == nil {
		scores = make([]float32, len(tokens))
	}
	vocab := make(map[string]int, len(tokens))
	for i, s := range tokens {
		if _, seen := vocab[s]; !seen {
			vocab[s] = i
		}
	}
	return &Tokenizer{tokens: tokens, scores: scores, vocab: vocab}
}

func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

// IDToText returns the raw textual form of a token id, or "" when the id is
// outside the vocabulary.
func (t *Tokenizer) IDToText(id int) string {
	if id < 0 || id >= len(t.tokens) {
		return ""
	}
	return t.tokens[id]
}

// EOS returns the end-of-sequence token id.
func (t *Tokenizer) EOS() (int, bool) {
	id, ok := t.vocab[eosToken]
	return id, ok
}

// Encode converts text to (piece, id) pairs. A beginning-of-sequence token
// is prepended when the vocab has one, matching how the checkpoints were
// trained. Characters with no vocab entry fall back to per-byte <0xNN>
// tokens; text that cannot be represented at all is an error.
func (t *Tokenizer) Encode(text string) ([]Token, error) {
	var out []Token
	if id, ok := t.vocab[bosToken]; ok {
		out = append(out, Token{Text: bosToken, ID: id})
	}
	if text == "" {
		return out, nil
	}

	// Sentencepiece pretokenization: leading word boundary, spaces become
	// the boundary marker.
	normalized := spaceMarker + strings.ReplaceAll(text, " ", spaceMarker)

	var ids []int
	for _, r := range normalized {
		piece := string(r)
		if id, ok := t.vocab[piece]; ok {
			ids = append(ids, id)
			continue
		}
		for _, b := range []byte(piece) {
			id, ok := t.vocab[fmt.Sprintf("<0x%02X>", b)]
			if !ok {
				return nil, fmt.Errorf("no vocab entry or byte fallback for %q", piece)
			}
			ids = append(ids, id)
		}
	}

	// Greedily merge the adjacent pair whose merged piece scores highest
	// until no merge is possible.
	for {
		bestScore := float32(-1e10)
		bestID := -1
		bestIdx := -1
		for i := 0; i+1 < len(ids); i++ {
			merged := t.tokens[ids[i]] + t.tokens[ids[i+1]]
			id, ok := t.vocab[merged]
			if ok && t.scores[id] > bestScore {
				bestScore = t.scores[id]
				bestID = id
				bestIdx = i
			}
		}
		if bestID < 0 {
			break
		}
		ids[bestIdx] = bestID
		ids = append(ids[:bestIdx+1], ids[bestIdx+2:]...)
	}

	for _, id := range ids {
		out = append(out, Token{Text: t.tokens[id], ID: id})
	}
	return out, nil
}
