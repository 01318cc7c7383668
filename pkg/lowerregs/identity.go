package lowerregs

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/raymyers/ralph-nir/pkg/nir"
)

// hashDeref hashes the canonical identity of the chain ending at h: the
// struct field indices from leaf to root, then the root variable. Array
// links contribute nothing, so a[1].x and a[i].x hash alike.
func hashDeref(impl *nir.Impl, h nir.DerefHandle) (uint32, error) {
	hash := fnv.New32a()
	var buf [8]byte
	for d := h; d != nir.NoDeref; d = impl.Parent(d) {
		link := impl.Deref(d)
		switch link.Kind {
		case nir.DerefVar:
			binary.LittleEndian.PutUint64(buf[:], uint64(link.Var.ID))
			hash.Write(buf[:])
			return hash.Sum32(), nil
		case nir.DerefArray:
			continue
		case nir.DerefStruct:
			binary.LittleEndian.PutUint64(buf[:], uint64(link.Field))
			hash.Write(buf[:])
		default:
			return 0, fmt.Errorf("%w: unexpected %s link", ErrMalformedDeref, link.Kind)
		}
	}
	return 0, fmt.Errorf("%w: chain does not end at a variable", ErrMalformedDeref)
}

// derefsEqual reports whether the chains ending at a and b have the same
// canonical identity. Both chains are walked in lock step, so they must
// also have the same shape.
func derefsEqual(impl *nir.Impl, a, b nir.DerefHandle) (bool, error) {
	for a != nir.NoDeref || b != nir.NoDeref {
		if a == nir.NoDeref || b == nir.NoDeref {
			return false, nil
		}
		la, lb := impl.Deref(a), impl.Deref(b)
		if la.Kind != lb.Kind {
			return false, nil
		}
		switch la.Kind {
		case nir.DerefVar:
			return la.Var == lb.Var, nil
		case nir.DerefArray:
		case nir.DerefStruct:
			if la.Field != lb.Field {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: unexpected %s link", ErrMalformedDeref, la.Kind)
		}
		a, b = impl.Parent(a), impl.Parent(b)
	}
	return false, fmt.Errorf("%w: chain does not end at a variable", ErrMalformedDeref)
}
