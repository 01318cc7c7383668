// Package splitcopies rewrites copy_deref instructions into one
// load_deref/store_deref pair per vector or scalar leaf of the copied type.
// It runs before lowerregs, which cannot handle whole-aggregate copies.
package splitcopies

import (
	"errors"
	"fmt"

	"github.com/oleiade/lane"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

// ErrUnsupportedCopy reports a copy whose two sides have different types
var ErrUnsupportedCopy = errors.New("unsupported copy_deref")

// pair is one pending (dst, src) copy of matching type
type pair struct {
	dst, src nir.DerefHandle
}

// SplitFunction replaces every copy_deref in impl and reports whether any
// was found.
func SplitFunction(impl *nir.Impl) (bool, error) {
	progress := false
	bld := nir.NewBuilder(impl)
	for _, b := range impl.Blocks {
		snapshot := append([]nir.Instr(nil), b.Instrs...)
		for _, instr := range snapshot {
			cp, ok := instr.(*nir.CopyDeref)
			if !ok {
				continue
			}
			bld.Cursor = nir.BeforeInstr(cp)
			if err := split(bld, cp.Dst, cp.Src); err != nil {
				return progress, fmt.Errorf("block %d: %w", b.Index, err)
			}
			b.Remove(cp)
			progress = true
		}
	}
	if progress {
		impl.MetadataPreserve(nir.MetadataBlockIndex | nir.MetadataDominance)
	}
	return progress, nil
}

// SplitShader runs SplitFunction on every function with a body.
func SplitShader(shader *nir.Shader) (bool, error) {
	progress := false
	for _, fn := range shader.FunctionsWithImpl() {
		p, err := SplitFunction(fn.Impl)
		if err != nil {
			return progress, fmt.Errorf("function %s: %w", fn.Name, err)
		}
		progress = progress || p
	}
	return progress, nil
}

// split walks the copied type breadth first, emitting a load/store pair
// at the builder's cursor for each leaf.
func split(bld *nir.Builder, dst, src nir.DerefHandle) error {
	impl := bld.Impl
	dt, st := impl.Deref(dst).Type, impl.Deref(src).Type
	if !gtypes.Equal(dt, st) {
		return fmt.Errorf("%w: %s = %s", ErrUnsupportedCopy, dt, st)
	}

	q := lane.NewQueue()
	for q.Enqueue(pair{dst, src}); !q.Empty(); {
		p := q.Dequeue().(pair)
		typ := impl.Deref(p.dst).Type

		switch t := typ.(type) {
		case gtypes.Array:
			for i := 0; i < t.Length; i++ {
				idx := nir.SSASrc(bld.Imm(int64(i), 32))
				d, err := impl.NewArrayDeref(p.dst, idx)
				if err != nil {
					return err
				}
				s, err := impl.NewArrayDeref(p.src, idx)
				if err != nil {
					return err
				}
				q.Enqueue(pair{d, s})
			}
		case gtypes.Struct:
			for i := range t.Fields {
				d, err := impl.NewStructDeref(p.dst, i)
				if err != nil {
					return err
				}
				s, err := impl.NewStructDeref(p.src, i)
				if err != nil {
					return err
				}
				q.Enqueue(pair{d, s})
			}
		default:
			if !gtypes.IsVectorOrScalar(typ) {
				return fmt.Errorf("%w: cannot copy %s", ErrUnsupportedCopy, typ)
			}
			n := gtypes.VectorElements(typ)
			v := bld.LoadDeref(p.src, n, gtypes.BitSize(typ))
			bld.StoreDeref(p.dst, v, nir.FullMask(n))
		}
	}
	return nil
}
