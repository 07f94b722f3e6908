package model

import (
	"errors"
	"fmt"

	"github.com/23skdu/longbow-volley/internal/weights"
)

// MaxSeqLen is the maximum sequence length supported by the llama-2 era
// checkpoints this driver targets.
const MaxSeqLen = 4096

// Model is the opaque forward-pass capability. One call maps a batch of
// token ids plus an absolute position offset to the next-token logits
// (vocabulary-sized).
type Model interface {
	Forward(tokens []int, pos int) ([]float32, error)
}

// ErrBackendUnavailable is returned by Open when the requested compute
// backend is not compiled into this build.
var ErrBackendUnavailable = errors.New("model backend unavailable in this build")

// Open constructs the named forward backend for a parsed container.
//
// "uniform" is a debug backend producing a flat distribution over the
// vocabulary; it exercises the full session pipeline without any numeric
// kernels. "native" is the real compute backend, which lives out of tree.
func Open(backend string, desc *weights.Descriptor) (Model, error) {
	switch backend {
	case "uniform":
		if desc.Params.VocabSize <= 0 {
			return nil, fmt.Errorf("uniform backend: container reports no vocabulary size")
		}
		return NewUniform(desc.Params.VocabSize), nil
	case "native":
		return openNative(desc)
	default:
		return nil, fmt.Errorf("unknown model backend %q", backend)
	}
}
