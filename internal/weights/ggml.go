package weights

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// parseGGML parses a legacy flat container from an in-memory image.
// The layout is positional: magic (+version for ggmf/ggjt), a fixed
// hyperparameter block, an inline vocab table, then back-to-back tensor
// records until end of file.
//
// The legacy header carries no key/value attention metadata, so the
// attention grouping factor cannot be read out of the file. It is filled
// in by the caller from the family default table or an explicit override.
func parseGGML(data []byte) (*Descriptor, error) {
	if len(data) < 4 {
		return nil, io.ErrUnexpectedEOF
	}

	magic := binary.LittleEndian.Uint32(data[0:])
	offset := uint64(4)

	var version uint32
	hasScores := true
	aligned := false
	switch magic {
	case GGMLMagic:
		hasScores = false
	case GGMFMagic, GGJTMagic:
		if len(data) < 8 {
			return nil, io.ErrUnexpectedEOF
		}
		version = binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if version < 1 || version > 3 {
			return nil, ErrUnsupportedVersion{Version: version}
		}
		aligned = magic == GGJTMagic
	default:
		return nil, ErrInvalidMagic{Magic: magic}
	}

	// hparams: n_vocab, n_embd, n_mult, n_head, n_layer, n_rot, ftype
	if offset+28 > uint64(len(data)) {
		return nil, io.ErrUnexpectedEOF
	}
	readI32 := func() int32 {
		v := int32(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		return v
	}
	nVocab := readI32()
	nEmbd := readI32()
	_ = readI32() // n_mult, feed-forward sizing only
	nHead := readI32()
	nLayer := readI32()
	nRot := readI32()
	fileType := readI32()

	if nVocab <= 0 || nHead <= 0 || nLayer <= 0 {
		return nil, fmt.Errorf("implausible hyperparameters: vocab=%d heads=%d layers=%d", nVocab, nHead, nLayer)
	}

	desc := &Descriptor{
		Format:  FormatGGML,
		Version: version,
		Params: Params{
			VocabSize: int(nVocab),
			Embedding: int(nEmbd),
			Heads:     int(nHead),
			KVHeads:   int(nHead),
			Layers:    int(nLayer),
			RotDims:   int(nRot),
			FileType:  int(fileType),
		},
		Vocab:       make([]string, 0, nVocab),
		VocabScores: make([]float32, 0, nVocab),
	}

	for i := int32(0); i < nVocab; i++ {
		if offset+4 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		strLen := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if offset+uint64(strLen) > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		desc.Vocab = append(desc.Vocab, string(data[offset:offset+uint64(strLen)]))
		offset += uint64(strLen)

		if hasScores {
			if offset+4 > uint64(len(data)) {
				return nil, io.ErrUnexpectedEOF
			}
			score := math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
			desc.VocabScores = append(desc.VocabScores, score)
		} else {
			desc.VocabScores = append(desc.VocabScores, 0)
		}
	}

	for offset < uint64(len(data)) {
		if offset+12 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		nDims := binary.LittleEndian.Uint32(data[offset:])
		nameLen := binary.LittleEndian.Uint32(data[offset+4:])
		typ := GGMLType(binary.LittleEndian.Uint32(data[offset+8:]))
		offset += 12

		if nDims == 0 || nDims > 4 {
			return nil, fmt.Errorf("tensor has %d dimensions", nDims)
		}
		if typ.TypeSize() == 0 {
			return nil, fmt.Errorf("unknown quantization type %d", uint32(typ))
		}

		if offset+uint64(nDims)*4 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		dims := make([]uint64, nDims)
		for j := uint32(0); j < nDims; j++ {
			dims[j] = uint64(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
		}
		if err := validShape(dims, typ); err != nil {
			return nil, err
		}

		if offset+uint64(nameLen) > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		name := string(data[offset : offset+uint64(nameLen)])
		offset += uint64(nameLen)

		// ggjt pads each tensor's data to a 32-byte file boundary.
		if aligned {
			if pad := offset % 32; pad != 0 {
				offset += 32 - pad
			}
		}

		info := &TensorInfo{
			Name:       name,
			Dimensions: dims,
			Type:       typ,
			Offset:     offset,
		}
		size := info.SizeBytes()
		if offset+size > uint64(len(data)) {
			return nil, fmt.Errorf("tensor %s: data truncated", name)
		}
		offset += size

		desc.Tensors = append(desc.Tensors, info)
	}

	desc.TotalBytes = desc.Footprint()
	return desc, nil
}
