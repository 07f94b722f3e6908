package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
)

// hfFile mirrors the parts of a Hugging Face tokenizer.json we consume:
// the vocab map and any added special tokens.
type hfFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
	Model struct {
		Vocab map[string]json.Number `json:"vocab"`
	} `json:"model"`
}

// LoadJSON builds a tokenizer from a tokenizer.json vocabulary. Merge
// scores are not stored in that format, so pieces are ranked by id order
// (lower id = earlier merge), which matches sentencepiece exports.
func LoadJSON(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer config: %w", err)
	}

	var f hfFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("tokenizer config %s: %w", path, err)
	}
	if len(f.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer config %s: empty vocab", path)
	}

	maxID := -1
	for _, raw := range f.Model.Vocab {
		id, err := raw.Int64()
		if err != nil {
			return nil, fmt.Errorf("tokenizer config %s: non-integer token id: %w", path, err)
		}
		if int(id) > maxID {
			maxID = int(id)
		}
	}
	for _, at := range f.AddedTokens {
		if at.ID > maxID {
			maxID = at.ID
		}
	}

	tokens := make([]string, maxID+1)
	scores := make([]float32, maxID+1)
	for text, raw := range f.Model.Vocab {
		id, _ := raw.Int64()
		if id < 0 {
			return nil, fmt.Errorf("tokenizer config %s: negative token id %d", path, id)
		}
		tokens[id] = text
		scores[id] = -float32(id)
	}
	for _, at := range f.AddedTokens {
		if at.ID < 0 {
			return nil, fmt.Errorf("tokenizer config %s: negative token id %d", path, at.ID)
		}
		tokens[at.ID] = at.Content
	}

	return FromVocab(tokens, scores), nil
}
