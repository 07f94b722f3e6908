package weights

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/23skdu/longbow-volley/internal/logger"
	"github.com/23skdu/longbow-volley/internal/metrics"
)

// Options carry the knobs the container itself cannot answer.
type Options struct {
	// LegacyGQA is the attention grouping factor applied to legacy flat
	// containers, which have no metadata field for it. Callers resolve it
	// from the family default table or an explicit user override.
	// Zero means 1 (no grouping).
	LegacyGQA int
}

// Load detects the container format from the file extension, parses the
// header and tensor index, and returns the size-annotated descriptor.
// A malformed or truncated file yields a *FormatError; no partial
// descriptor escapes.
func Load(path string, opts Options) (*Descriptor, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "open failed", Err: err}
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "stat failed", Err: err}
	}
	size := info.Size()
	if size == 0 {
		return nil, &FormatError{Path: path, Reason: "empty file"}
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "mmap failed", Err: err}
	}
	defer func() {
		_ = syscall.Munmap(data)
	}()

	var desc *Descriptor
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gguf":
		desc, err = parseGGUF(data)
	default:
		// .ggml, .bin and anything else: legacy flat container.
		desc, err = parseGGML(data)
	}
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "parse failed", Err: err}
	}

	if desc.Format == FormatGGML {
		gqa := opts.LegacyGQA
		if gqa <= 0 {
			gqa = 1
		}
		desc.Params.GQA = gqa
		if desc.Params.Heads > 0 {
			desc.Params.KVHeads = desc.Params.Heads / gqa
		}
	}

	elapsed := time.Since(start)
	metrics.ModelLoadSeconds.Set(elapsed.Seconds())
	metrics.ModelFootprintBytes.Set(float64(desc.TotalBytes))
	fmt.Printf("loaded %d tensors (%s) in %.2fs\n",
		len(desc.Tensors), formatSize(desc.TotalBytes), elapsed.Seconds())
	logger.Log.Debug("weight container parsed",
		"path", path,
		"format", desc.Format.String(),
		"tensors", len(desc.Tensors),
		"footprint", humanize.Bytes(desc.TotalBytes),
		"file_size", humanize.Bytes(uint64(size)),
		"elapsed", elapsed.String(),
	)

	return desc, nil
}

// formatSize renders a decimal byte count the way the stats lines expect.
func formatSize(n uint64) string {
	switch {
	case n < 1_000:
		return fmt.Sprintf("%dB", n)
	case n < 1_000_000:
		return fmt.Sprintf("%.2fKB", float64(n)/1e3)
	case n < 1_000_000_000:
		return fmt.Sprintf("%.2fMB", float64(n)/1e6)
	default:
		return fmt.Sprintf("%.2fGB", float64(n)/1e9)
	}
}
