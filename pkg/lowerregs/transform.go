// Package lowerregs replaces function-local variables with virtual
// registers. Every local load_deref/store_deref becomes a mov to or from a
// register slot; chains that differ only in array indices share one
// register, and nested array indices are linearized into a base offset
// plus an optional dynamic index.
//
// Copies between local chains must already be split into load/store pairs
// (see package splitcopies).
package lowerregs

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/nir"
)

// Stats describes what lowering one function did
type Stats struct {
	Loads     int // load_deref instructions rewritten
	Stores    int // store_deref instructions rewritten
	Registers int // registers created
}

// Progress reports whether any instruction was rewritten.
func (s Stats) Progress() bool {
	return s.Loads > 0 || s.Stores > 0
}

func (s *Stats) add(o Stats) {
	s.Loads += o.Loads
	s.Stores += o.Stores
	s.Registers += o.Registers
}

// lowerState holds per-function state; it is discarded after the function
type lowerState struct {
	impl    *nir.Impl
	builder *nir.Builder
	table   *RegisterTable
	stats   Stats
}

// Lower rewrites impl in place and reports what changed. On error the
// function is left partially rewritten and must be discarded.
func Lower(impl *nir.Impl) (Stats, error) {
	s := &lowerState{
		impl:    impl,
		builder: nir.NewBuilder(impl),
		table:   NewRegisterTable(impl),
	}

	impl.MetadataRequire(nir.MetadataDominance)

	for _, b := range impl.Blocks {
		if err := s.rewriteBlock(b); err != nil {
			return s.stats, fmt.Errorf("block %d: %w", b.Index, err)
		}
	}

	// only instructions inside blocks changed
	impl.MetadataPreserve(nir.MetadataBlockIndex | nir.MetadataDominance)

	s.stats.Registers = s.table.Len()
	return s.stats, nil
}

// LowerFunction rewrites impl in place and reports whether anything changed.
func LowerFunction(impl *nir.Impl) (bool, error) {
	stats, err := Lower(impl)
	return stats.Progress(), err
}

// LowerShader lowers every function with a body and reports whether any
// of them changed. The first error aborts the whole shader.
func LowerShader(shader *nir.Shader) (bool, error) {
	stats, err := LowerShaderStats(shader, nil)
	return stats.Progress(), err
}

// LowerShaderStats is LowerShader with per-function statistics. When
// report is non-nil it is called after each function.
func LowerShaderStats(shader *nir.Shader, report func(fn *nir.Function, stats Stats)) (Stats, error) {
	var total Stats
	for _, fn := range shader.FunctionsWithImpl() {
		stats, err := Lower(fn.Impl)
		total.add(stats)
		if err != nil {
			return total, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		if report != nil {
			report(fn, stats)
		}
	}
	return total, nil
}
