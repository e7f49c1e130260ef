// Package skeleton builds shape-only model structures. A Skeleton declares
// every parameter tensor (name, shape, dtype) without allocating storage;
// the external runtime materializes real weights from the checkpoint
// manifest. Builders are registered per architecture tag.
package skeleton

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docker/go-units"

	"shardgen/internal/modelcfg"
)

// Param is a placeholder tensor: a descriptor with no backing storage.
type Param struct {
	Name  string
	Shape []int64
	DType Precision
}

// NumElements returns the product of the shape dimensions.
func (p Param) NumElements() int64 {
	n := int64(1)
	for _, d := range p.Shape {
		n *= d
	}
	return n
}

// Skeleton is the "meta" model: structure matching a config, no weights.
type Skeleton struct {
	ModelType string
	Precision Precision
	NumLayers int
	Params    []Param
}

// NumParams sums the element counts of all placeholder tensors.
func (s *Skeleton) NumParams() int64 {
	var total int64
	for _, p := range s.Params {
		total += p.NumElements()
	}
	return total
}

// SizeBytes is the storage the runtime will need once weights are materialized.
func (s *Skeleton) SizeBytes() int64 {
	return s.NumParams() * s.Precision.Bytes()
}

// HumanSize formats SizeBytes, e.g. "6.005GB".
func (s *Skeleton) HumanSize() string {
	return units.HumanSizeWithPrecision(float64(s.SizeBytes()), 4)
}

// HumanParams formats NumParams like "3.00 B".
func (s *Skeleton) HumanParams() string {
	return units.CustomSize("%.2f%s", float64(s.NumParams()), 1000.0, []string{"", " K", " M", " B", " T"})
}

// Builder constructs a skeleton for one architecture family.
type Builder func(desc modelcfg.Descriptor, p Precision) (*Skeleton, error)

var (
	regMu    sync.RWMutex
	builders = map[string]Builder{}
)

// Register installs a builder for a model_type tag. Registering the same tag
// twice replaces the previous builder.
func Register(modelType string, b Builder) {
	regMu.Lock()
	defer regMu.Unlock()
	builders[strings.ToLower(modelType)] = b
}

// Registered returns the known model_type tags, sorted.
func Registered() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build resolves the builder for desc.ModelType and runs it.
func Build(desc modelcfg.Descriptor, p Precision) (*Skeleton, error) {
	regMu.RLock()
	b, ok := builders[strings.ToLower(desc.ModelType)]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported model_type %q (known: %s)", desc.ModelType, strings.Join(Registered(), ", "))
	}
	if p.Bytes() == 0 {
		return nil, fmt.Errorf("unsupported precision: %q", p)
	}
	return b(desc, p)
}

func requirePositive(desc modelcfg.Descriptor, fields map[string]int) error {
	for name, v := range fields {
		if v <= 0 {
			return fmt.Errorf("%s config: %s must be positive, got %d", desc.ModelType, name, v)
		}
	}
	return nil
}
