package model

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// FamilySpec holds the per-release defaults that cannot be recovered from a
// legacy container: the attention grouping factor and whether re-prompted
// turns should be wrapped in the instruction template. The table is an
// empirical mapping tied to specific published checkpoints, so it is kept
// as data rather than code.
type FamilySpec struct {
	GQA      int  `yaml:"gqa"`
	Instruct bool `yaml:"instruct"`
}

// Families maps a model family identifier (the -which flag) to its spec.
type Families map[string]FamilySpec

//go:embed families.yaml
var builtinFamilies []byte

// BuiltinFamilies returns the table shipped with the binary.
func BuiltinFamilies() (Families, error) {
	return parseFamilies(builtinFamilies)
}

// LoadFamilies reads a replacement table from disk.
func LoadFamilies(path string) (Families, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("family table: %w", err)
	}
	return parseFamilies(data)
}

func parseFamilies(data []byte) (Families, error) {
	var f Families
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("family table: %w", err)
	}
	for name, spec := range f {
		if spec.GQA <= 0 {
			return nil, fmt.Errorf("family table: %s: gqa must be positive, got %d", name, spec.GQA)
		}
	}
	return f, nil
}

// Resolve looks up a family identifier, failing with the known names on a miss.
func (f Families) Resolve(which string) (FamilySpec, error) {
	spec, ok := f[which]
	if !ok {
		return FamilySpec{}, fmt.Errorf("unknown model family %q (known: %v)", which, f.Names())
	}
	return spec, nil
}

// Names returns the known family identifiers, sorted.
func (f Families) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
