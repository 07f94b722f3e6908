package weights

import (
	"fmt"
	"math"
)

// Format identifies which on-disk container a descriptor was parsed from.
type Format int

const (
	// FormatGGUF is the self-describing container: explicit KV metadata and
	// a tensor index with a quantization dtype per tensor.
	FormatGGUF Format = iota
	// FormatGGML is the legacy flat container: fixed hyperparameter header,
	// vocab table and back-to-back tensor records.
	FormatGGML
)

func (f Format) String() string {
	switch f {
	case FormatGGUF:
		return "gguf"
	case FormatGGML:
		return "ggml"
	default:
		return fmt.Sprintf("UNKNOWN_FORMAT_%d", int(f))
	}
}

const (
	GGUFMagic = 0x46554747 // "GGUF"

	// Legacy container magics, oldest first.
	GGMLMagic = 0x67676d6c // "ggml", unversioned
	GGMFMagic = 0x67676d66 // "ggmf", versioned
	GGJTMagic = 0x67676a74 // "ggjt", versioned, 32-byte aligned tensor data
)

type GGMLType uint32

const (
	GGMLTypeF32  GGMLType = 0
	GGMLTypeF16  GGMLType = 1
	GGMLTypeQ4_0 GGMLType = 2
	GGMLTypeQ4_1 GGMLType = 3
	GGMLTypeQ5_0 GGMLType = 6
	GGMLTypeQ5_1 GGMLType = 7
	GGMLTypeQ8_0 GGMLType = 8
	GGMLTypeQ8_1 GGMLType = 9
	GGMLTypeQ2_K GGMLType = 10
	GGMLTypeQ3_K GGMLType = 11
	GGMLTypeQ4_K GGMLType = 12
	GGMLTypeQ5_K GGMLType = 13
	GGMLTypeQ6_K GGMLType = 14
	GGMLTypeQ8_K GGMLType = 15
)

// TypeSize returns the byte size of one stored unit of this dtype.
// Quantized types pack a whole block of elements into one stored unit.
func (t GGMLType) TypeSize() uint64 {
	switch t {
	case GGMLTypeF32:
		return 4
	case GGMLTypeF16:
		return 2
	case GGMLTypeQ4_0:
		return 18
	case GGMLTypeQ4_1:
		return 20
	case GGMLTypeQ5_0:
		return 22
	case GGMLTypeQ5_1:
		return 24
	case GGMLTypeQ8_0:
		return 34
	case GGMLTypeQ8_1:
		return 36
	case GGMLTypeQ2_K:
		return 84
	case GGMLTypeQ3_K:
		return 110
	case GGMLTypeQ4_K:
		return 144
	case GGMLTypeQ5_K:
		return 176
	case GGMLTypeQ6_K:
		return 210
	case GGMLTypeQ8_K:
		return 292
	default:
		return 0
	}
}

// BlockSize returns how many elements share one stored unit.
func (t GGMLType) BlockSize() uint64 {
	switch t {
	case GGMLTypeF32, GGMLTypeF16:
		return 1
	case GGMLTypeQ4_0, GGMLTypeQ4_1, GGMLTypeQ5_0, GGMLTypeQ5_1, GGMLTypeQ8_0, GGMLTypeQ8_1:
		return 32
	case GGMLTypeQ2_K, GGMLTypeQ3_K, GGMLTypeQ4_K, GGMLTypeQ5_K, GGMLTypeQ6_K, GGMLTypeQ8_K:
		return 256
	default:
		return 1
	}
}

func (t GGMLType) String() string {
	switch t {
	case GGMLTypeF32:
		return "F32"
	case GGMLTypeF16:
		return "F16"
	case GGMLTypeQ4_0:
		return "Q4_0"
	case GGMLTypeQ4_1:
		return "Q4_1"
	case GGMLTypeQ5_0:
		return "Q5_0"
	case GGMLTypeQ5_1:
		return "Q5_1"
	case GGMLTypeQ8_0:
		return "Q8_0"
	case GGMLTypeQ8_1:
		return "Q8_1"
	case GGMLTypeQ2_K:
		return "Q2_K"
	case GGMLTypeQ3_K:
		return "Q3_K"
	case GGMLTypeQ4_K:
		return "Q4_K"
	case GGMLTypeQ5_K:
		return "Q5_K"
	case GGMLTypeQ6_K:
		return "Q6_K"
	case GGMLTypeQ8_K:
		return "Q8_K"
	default:
		return fmt.Sprintf("UNKNOWN_TYPE_%d", uint32(t))
	}
}

// TensorInfo describes one entry of the container's tensor index.
type TensorInfo struct {
	Name       string
	Dimensions []uint64
	Type       GGMLType
	Offset     uint64 // relative to the data section start
}

func (t *TensorInfo) ElemCount() uint64 {
	n := uint64(1)
	for _, d := range t.Dimensions {
		n *= d
	}
	return n
}

// SizeBytes is the on-disk footprint of the tensor:
// elem_count * type_size / block_size, in integer arithmetic.
func (t *TensorInfo) SizeBytes() uint64 {
	return t.ElemCount() * t.Type.TypeSize() / t.Type.BlockSize()
}

// validShape rejects dimension sets whose element count, or its product
// with the dtype's unit size, overflows uint64. An overflowed product
// wraps to a small footprint and would defeat the data-size checks.
func validShape(dims []uint64, typ GGMLType) error {
	n := uint64(1)
	for _, d := range dims {
		if d != 0 && n > math.MaxUint64/d {
			return fmt.Errorf("implausible tensor shape %v", dims)
		}
		n *= d
	}
	if ts := typ.TypeSize(); ts != 0 && n > math.MaxUint64/ts {
		return fmt.Errorf("implausible tensor shape %v for %s", dims, typ)
	}
	return nil
}

// Params are the model-construction hyperparameters extracted from the
// container. GQA is filled from metadata for GGUF and from the family
// default table (or explicit override) for the legacy format.
type Params struct {
	VocabSize     int
	ContextLength int
	Embedding     int
	Layers        int
	Heads         int
	KVHeads       int
	GQA           int
	RotDims       int
	FileType      int
}

// Descriptor is the size-annotated model-construction descriptor both
// parsing strategies converge on. Immutable after Load returns.
type Descriptor struct {
	Format     Format
	Version    uint32
	Tensors    []*TensorInfo
	TotalBytes uint64
	Params     Params

	// KV holds the raw metadata pairs (GGUF only). The tokenizer reads
	// its embedded vocab out of this map.
	KV map[string]interface{}

	// Vocab holds the legacy container's inline vocab table (GGML only).
	Vocab       []string
	VocabScores []float32
}

// Footprint recomputes the aggregate byte footprint over the tensor index.
func (d *Descriptor) Footprint() uint64 {
	var total uint64
	for _, t := range d.Tensors {
		total += t.SizeBytes()
	}
	return total
}

// FormatError reports an unparseable or truncated weight container.
// No partial descriptor is constructed when it is returned.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("weight container %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("weight container %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

type ErrInvalidMagic struct{ Magic uint32 }

func (e ErrInvalidMagic) Error() string {
	return fmt.Sprintf("invalid container magic: %x", e.Magic)
}

type ErrUnsupportedVersion struct{ Version uint32 }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported container version: %d", e.Version)
}
