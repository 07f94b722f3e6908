package weights

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

type ggufValueType uint32

const (
	ggufTypeUint8   ggufValueType = 0
	ggufTypeInt8    ggufValueType = 1
	ggufTypeUint16  ggufValueType = 2
	ggufTypeInt16   ggufValueType = 3
	ggufTypeUint32  ggufValueType = 4
	ggufTypeInt32   ggufValueType = 5
	ggufTypeFloat32 ggufValueType = 6
	ggufTypeBool    ggufValueType = 7
	ggufTypeString  ggufValueType = 8
	ggufTypeArray   ggufValueType = 9
	ggufTypeUint64  ggufValueType = 10
	ggufTypeInt64   ggufValueType = 11
	ggufTypeFloat64 ggufValueType = 12
)

// parseGGUF parses a structured container from an in-memory image.
// Supports container versions 2 and 3.
func parseGGUF(data []byte) (*Descriptor, error) {
	if len(data) < 24 {
		return nil, io.ErrUnexpectedEOF
	}

	magic := binary.LittleEndian.Uint32(data[0:])
	if magic != GGUFMagic {
		return nil, ErrInvalidMagic{Magic: magic}
	}
	version := binary.LittleEndian.Uint32(data[4:])
	if version < 2 || version > 3 {
		return nil, ErrUnsupportedVersion{Version: version}
	}

	tensorCount := binary.LittleEndian.Uint64(data[8:])
	kvCount := binary.LittleEndian.Uint64(data[16:])
	offset := uint64(24)

	desc := &Descriptor{
		Format:  FormatGGUF,
		Version: version,
		KV:      make(map[string]interface{}, kvCount),
	}

	for i := uint64(0); i < kvCount; i++ {
		key, n, err := ggufReadString(data, offset)
		if err != nil {
			return nil, err
		}
		offset += n

		if offset+4 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		valType := ggufValueType(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4

		val, n, err := ggufReadValue(data, offset, valType)
		if err != nil {
			return nil, err
		}
		offset += n
		desc.KV[key] = val
	}

	for i := uint64(0); i < tensorCount; i++ {
		name, n, err := ggufReadString(data, offset)
		if err != nil {
			return nil, err
		}
		offset += n

		if offset+4 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		dims := binary.LittleEndian.Uint32(data[offset:])
		offset += 4

		if offset+uint64(dims)*8+12 > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		dimArr := make([]uint64, dims)
		for j := uint32(0); j < dims; j++ {
			dimArr[j] = binary.LittleEndian.Uint64(data[offset:])
			offset += 8
		}

		typ := GGMLType(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if typ.TypeSize() == 0 {
			return nil, fmt.Errorf("tensor %s: unknown quantization type %d", name, uint32(typ))
		}
		if err := validShape(dimArr, typ); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}

		tensorOffset := binary.LittleEndian.Uint64(data[offset:])
		offset += 8

		desc.Tensors = append(desc.Tensors, &TensorInfo{
			Name:       name,
			Dimensions: dimArr,
			Type:       typ,
			Offset:     tensorOffset,
		})
	}

	desc.Params = ggufParams(desc.KV)
	desc.TotalBytes = desc.Footprint()
	return desc, nil
}

// ggufParams extracts the model-construction hyperparameters from metadata.
// Key names are architecture-prefixed, llama.* for the checkpoints we target.
func ggufParams(kv map[string]interface{}) Params {
	arch, _ := kv["general.architecture"].(string)
	if arch == "" {
		arch = "llama"
	}

	p := Params{
		ContextLength: int(kvInt(kv, arch+".context_length", "general.context_length")),
		Embedding:     int(kvInt(kv, arch+".embedding_length", arch+".hidden_size")),
		Layers:        int(kvInt(kv, arch+".block_count", "")),
		Heads:         int(kvInt(kv, arch+".attention.head_count", "")),
		RotDims:       int(kvInt(kv, arch+".rope.dimension_count", "")),
		FileType:      int(kvInt(kv, "general.file_type", "")),
	}

	kvHeads := int(kvInt(kv, arch+".attention.head_count_kv", ""))
	if kvHeads == 0 {
		kvHeads = p.Heads
	}
	p.KVHeads = kvHeads
	if kvHeads > 0 {
		p.GQA = p.Heads / kvHeads
	}

	if v := kvInt(kv, arch+".vocab_size", ""); v > 0 {
		p.VocabSize = int(v)
	} else if tokens, ok := kv["tokenizer.ggml.tokens"].([]interface{}); ok {
		p.VocabSize = len(tokens)
	}

	return p
}

// kvInt reads an integer-valued metadata entry under any of the given keys.
// GGUF writers are inconsistent about integer widths.
func kvInt(kv map[string]interface{}, keys ...string) uint64 {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val, ok := kv[key]; ok {
			switch v := val.(type) {
			case uint64:
				return v
			case int64:
				return uint64(v)
			case uint32:
				return uint64(v)
			case int32:
				return uint64(v)
			case uint16:
				return uint64(v)
			case int16:
				return uint64(v)
			case uint8:
				return uint64(v)
			case int8:
				return uint64(v)
			case int:
				return uint64(v)
			}
		}
	}
	return 0
}

func ggufReadString(data []byte, offset uint64) (string, uint64, error) {
	if offset+8 > uint64(len(data)) {
		return "", 0, io.ErrUnexpectedEOF
	}
	length := binary.LittleEndian.Uint64(data[offset:])
	// Compare against the remaining bytes; adding the file-supplied length
	// to the offset could wrap around.
	if length > uint64(len(data))-offset-8 {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(data[offset+8 : offset+8+length]), 8 + length, nil
}

func ggufReadValue(data []byte, offset uint64, typ ggufValueType) (interface{}, uint64, error) {
	need := func(n uint64) error {
		if offset+n > uint64(len(data)) {
			return io.ErrUnexpectedEOF
		}
		return nil
	}

	switch typ {
	case ggufTypeUint8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[offset], 1, nil
	case ggufTypeInt8:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int8(data[offset]), 1, nil
	case ggufTypeUint16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint16(data[offset:]), 2, nil
	case ggufTypeInt16:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int16(binary.LittleEndian.Uint16(data[offset:])), 2, nil
	case ggufTypeUint32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint32(data[offset:]), 4, nil
	case ggufTypeInt32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int32(binary.LittleEndian.Uint32(data[offset:])), 4, nil
	case ggufTypeFloat32:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:])), 4, nil
	case ggufTypeBool:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[offset] != 0, 1, nil
	case ggufTypeString:
		return ggufReadString(data, offset)
	case ggufTypeArray:
		if err := need(12); err != nil {
			return nil, 0, err
		}
		arrType := ggufValueType(binary.LittleEndian.Uint32(data[offset:]))
		arrLen := binary.LittleEndian.Uint64(data[offset+4:])
		bytesRead := uint64(12)
		cur := offset + 12

		// The declared length is untrusted; every element occupies at
		// least one byte, so the remaining bytes cap the allocation and
		// the per-element reads report truncation.
		capHint := arrLen
		if remaining := uint64(len(data)) - cur; capHint > remaining {
			capHint = remaining
		}
		arr := make([]interface{}, 0, capHint)
		for i := uint64(0); i < arrLen; i++ {
			val, n, err := ggufReadValue(data, cur, arrType)
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, val)
			cur += n
			bytesRead += n
		}
		return arr, bytesRead, nil
	case ggufTypeUint64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return binary.LittleEndian.Uint64(data[offset:]), 8, nil
	case ggufTypeInt64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint64(data[offset:])), 8, nil
	case ggufTypeFloat64:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data[offset:])), 8, nil
	default:
		return nil, 0, fmt.Errorf("unsupported metadata type: %d", typ)
	}
}
