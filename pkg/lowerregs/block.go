package lowerregs

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/nir"
)

// rewriteBlock replaces local load_deref/store_deref in b with register
// moves. It walks a snapshot of the instruction list, so removing the
// current instruction neither skips nor revisits its neighbours.
func (s *lowerState) rewriteBlock(b *nir.Block) error {
	snapshot := make([]nir.Instr, len(b.Instrs))
	copy(snapshot, b.Instrs)

	for _, instr := range snapshot {
		switch in := instr.(type) {
		case *nir.LoadDeref:
			if !s.impl.IsLocal(in.Deref) {
				continue
			}
			if err := s.rewriteLoad(in); err != nil {
				return err
			}
		case *nir.StoreDeref:
			if !s.impl.IsLocal(in.Deref) {
				continue
			}
			if err := s.rewriteStore(in); err != nil {
				return err
			}
		case *nir.CopyDeref:
			if s.impl.IsLocal(in.Dst) || s.impl.IsLocal(in.Src) {
				return fmt.Errorf("%w: %s", ErrIllegalLocalCopy, nir.FormatInstr(s.impl, in))
			}
		}
	}
	return nil
}

// regRefFor resolves the register and slot for the chain at h, emitting
// address arithmetic in front of the instruction being rewritten.
func (s *lowerState) regRefFor(h nir.DerefHandle) (nir.RegRef, error) {
	reg, err := s.table.LookupOrCreate(h)
	if err != nil {
		return nir.RegRef{}, err
	}
	return s.linearize(h, reg)
}

func (s *lowerState) rewriteLoad(load *nir.LoadDeref) error {
	s.builder.Cursor = nir.BeforeInstr(load)

	ref, err := s.regRefFor(load.Deref)
	if err != nil {
		return err
	}

	mov := &nir.ALU{
		Op:        nir.OpMov,
		SrcList:   []nir.Src{nir.RegSrc(ref)},
		WriteMask: nir.FullMask(load.NumComponents),
	}
	if old := load.Dest.SSA; old != nil {
		mov.Dest = nir.Dest{SSA: s.impl.NewSSADef(load.NumComponents, old.BitSize)}
		s.builder.Insert(mov)
		s.impl.RewriteUses(old, mov.Dest.SSA)
	} else {
		dst := *load.Dest.Reg
		mov.Dest = nir.Dest{Reg: &dst}
		s.builder.Insert(mov)
	}

	load.Block().Remove(load)
	s.stats.Loads++
	return nil
}

func (s *lowerState) rewriteStore(store *nir.StoreDeref) error {
	s.builder.Cursor = nir.BeforeInstr(store)

	ref, err := s.regRefFor(store.Deref)
	if err != nil {
		return err
	}

	s.builder.Insert(&nir.ALU{
		Op:        nir.OpMov,
		SrcList:   []nir.Src{store.Value},
		Dest:      nir.Dest{Reg: &ref},
		WriteMask: store.WriteMask,
	})

	store.Block().Remove(store)
	s.stats.Stores++
	return nil
}
