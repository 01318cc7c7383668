package nir

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
)

// Deref returns the arena entry for h.
func (impl *Impl) Deref(h DerefHandle) *Deref {
	return &impl.Derefs[h]
}

// Parent returns the parent link of h, or NoDeref for a root.
func (impl *Impl) Parent(h DerefHandle) DerefHandle {
	return impl.Derefs[h].Parent
}

func (impl *Impl) addDeref(d Deref) DerefHandle {
	impl.Derefs = append(impl.Derefs, d)
	return DerefHandle(len(impl.Derefs) - 1)
}

// NewVarDeref starts a chain at v.
func (impl *Impl) NewVarDeref(v *Variable) DerefHandle {
	return impl.addDeref(Deref{
		Kind:   DerefVar,
		Parent: NoDeref,
		Var:    v,
		Type:   v.Type,
		Mode:   v.Mode,
	})
}

// NewArrayDeref indexes the array at parent.
func (impl *Impl) NewArrayDeref(parent DerefHandle, index Src) (DerefHandle, error) {
	p := impl.Derefs[parent]
	elem := gtypes.ElementType(p.Type)
	if elem == nil {
		return NoDeref, fmt.Errorf("cannot index non-array type %s", p.Type)
	}
	return impl.addDeref(Deref{
		Kind:   DerefArray,
		Parent: parent,
		Index:  index,
		Type:   elem,
		Mode:   p.Mode,
	}), nil
}

// NewStructDeref selects field of the struct at parent.
func (impl *Impl) NewStructDeref(parent DerefHandle, field int) (DerefHandle, error) {
	p := impl.Derefs[parent]
	ft := gtypes.FieldType(p.Type, field)
	if ft == nil {
		return NoDeref, fmt.Errorf("type %s has no field %d", p.Type, field)
	}
	return impl.addDeref(Deref{
		Kind:   DerefStruct,
		Parent: parent,
		Field:  field,
		Type:   ft,
		Mode:   p.Mode,
	}), nil
}

// NewCastDeref reinterprets the value at parent as typ. parent may be
// NoDeref for a cast from a raw pointer.
func (impl *Impl) NewCastDeref(parent DerefHandle, typ gtypes.Type, mode VarMode) DerefHandle {
	return impl.addDeref(Deref{
		Kind:   DerefCast,
		Parent: parent,
		Type:   typ,
		Mode:   mode,
	})
}

// DerefVar returns the root variable of the chain ending at h, or nil when
// the chain does not end at a variable.
func (impl *Impl) DerefVar(h DerefHandle) *Variable {
	for d := h; d != NoDeref; d = impl.Derefs[d].Parent {
		switch impl.Derefs[d].Kind {
		case DerefVar:
			return impl.Derefs[d].Var
		case DerefCast:
			return nil
		}
	}
	return nil
}

// IsLocal reports whether the chain ending at h addresses local storage.
func (impl *Impl) IsLocal(h DerefHandle) bool {
	return impl.Derefs[h].Mode == ModeLocal
}
