package lowerregs

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

// RegisterTable maps the canonical identity of a deref chain to the
// register holding it. One table serves one function; entries are never
// removed.
type RegisterTable struct {
	impl    *nir.Impl
	buckets map[uint32][]tableEntry // precomputed hash -> colliding entries
	count   int
}

type tableEntry struct {
	deref nir.DerefHandle // first chain seen with this identity
	reg   *nir.Register
}

// NewRegisterTable creates an empty table for impl.
func NewRegisterTable(impl *nir.Impl) *RegisterTable {
	return &RegisterTable{
		impl:    impl,
		buckets: make(map[uint32][]tableEntry),
	}
}

// Len returns the number of registers created through the table.
func (t *RegisterTable) Len() int {
	return t.count
}

// LookupOrCreate returns the register for the chain ending at h, creating
// it on first use.
func (t *RegisterTable) LookupOrCreate(h nir.DerefHandle) (*nir.Register, error) {
	hash, err := hashDeref(t.impl, h)
	if err != nil {
		return nil, err
	}

	if v := t.impl.DerefVar(h); v != nil && v.ConstantInitializer != nil {
		return nil, fmt.Errorf("%w: %s", ErrConstantInitializer, v.Name)
	}

	for _, e := range t.buckets[hash] {
		eq, err := derefsEqual(t.impl, e.deref, h)
		if err != nil {
			return nil, err
		}
		if eq {
			return e.reg, nil
		}
	}

	leaf := t.impl.Deref(h).Type
	if !gtypes.IsVectorOrScalar(leaf) {
		return nil, fmt.Errorf("%w: leaf type %s is not a vector or scalar", ErrMalformedDeref, leaf)
	}

	reg := t.impl.NewLocalReg(gtypes.VectorElements(leaf), gtypes.BitSize(leaf), t.arraySize(h))
	t.buckets[hash] = append(t.buckets[hash], tableEntry{deref: h, reg: reg})
	t.count++
	return reg, nil
}

// arraySize is the product of every array dimension along the whole chain,
// or 0 when the chain has no array links.
func (t *RegisterTable) arraySize(h nir.DerefHandle) int {
	size := 1
	for d := h; d != nir.NoDeref; d = t.impl.Parent(d) {
		if t.impl.Deref(d).Kind == nir.DerefArray {
			size *= gtypes.Length(t.impl.Deref(t.impl.Parent(d)).Type)
		}
	}
	if size > 1 {
		return size
	}
	return 0
}
