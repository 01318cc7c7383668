package lowerregs

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

// linearize turns the chain ending at h into a slot of reg. Constant
// indices fold into BaseOffset until the first dynamic index; from then on
// everything accumulates into Indirect. Address arithmetic is emitted at
// the builder's cursor.
func (s *lowerState) linearize(h nir.DerefHandle, reg *nir.Register) (nir.RegRef, error) {
	ref := nir.RegRef{Reg: reg}

	// Single-slot registers cannot be indirectly addressed; any index into
	// them degrades to a direct access.
	if reg.NumArrayElems == 0 {
		return ref, nil
	}

	b := s.builder
	inner := 1
	for d := h; d != nir.NoDeref; d = s.impl.Parent(d) {
		link := s.impl.Deref(d)
		if link.Kind != nir.DerefArray {
			continue
		}

		if k, ok := nir.SrcAsUint(link.Index); ok && ref.Indirect == nil {
			// indices are 32-bit; wider constants keep their low word
			ref.BaseOffset += int(uint32(k)) * inner
		} else {
			if ref.Indirect != nil {
				if ref.BaseOffset != 0 {
					return nir.RegRef{}, fmt.Errorf("%w: offset %d", ErrUnfoldedOffset, ref.BaseOffset)
				}
			} else {
				ref.Indirect = b.Imm(int64(ref.BaseOffset), 32)
				ref.BaseOffset = 0
			}
			index := b.U2U32(b.SSAForSrc(link.Index, 1))
			ref.Indirect = b.IAdd(ref.Indirect, b.IMul(index, b.Imm(int64(inner), 32)))
		}

		inner *= gtypes.Length(s.impl.Deref(link.Parent).Type)
	}
	return ref, nil
}
