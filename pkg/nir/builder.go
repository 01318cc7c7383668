package nir

// Cursor is an insertion point: before Instr in Block, or at the end of
// Block when Instr is nil.
type Cursor struct {
	Block *Block
	Instr Instr
}

// BeforeInstr returns a cursor that inserts in front of instr.
func BeforeInstr(instr Instr) Cursor {
	return Cursor{Block: instr.Block(), Instr: instr}
}

// AtEnd returns a cursor that appends to b.
func AtEnd(b *Block) Cursor {
	return Cursor{Block: b}
}

// Builder emits instructions into an Impl at its cursor.
type Builder struct {
	Impl   *Impl
	Cursor Cursor
}

// NewBuilder creates a builder for impl with no cursor set.
func NewBuilder(impl *Impl) *Builder {
	return &Builder{Impl: impl}
}

// Insert places instr at the cursor. The cursor stays in front of the same
// instruction, so consecutive inserts keep program order.
func (b *Builder) Insert(instr Instr) {
	b.Cursor.Block.insertBefore(instr, b.Cursor.Instr)
}

// Imm emits a one-component integer constant.
func (b *Builder) Imm(v int64, bitSize int) *SSADef {
	def := b.Impl.NewSSADef(1, bitSize)
	b.Insert(&LoadConst{Def: def, Values: []uint64{uint64(v)}})
	return def
}

// Const emits a constant with one value per component.
func (b *Builder) Const(values []uint64, bitSize int) *SSADef {
	def := b.Impl.NewSSADef(len(values), bitSize)
	b.Insert(&LoadConst{Def: def, Values: values})
	return def
}

// ALU emits Op(srcs...) into a fresh SSA value shaped like the first source.
func (b *Builder) ALU(op ALUOp, srcs ...*SSADef) *SSADef {
	def := b.Impl.NewSSADef(srcs[0].NumComponents, srcs[0].BitSize)
	list := make([]Src, len(srcs))
	for i, s := range srcs {
		list[i] = SSASrc(s)
	}
	b.Insert(&ALU{
		Op:        op,
		SrcList:   list,
		Dest:      Dest{SSA: def},
		WriteMask: FullMask(def.NumComponents),
	})
	return def
}

// IAdd emits x + y
func (b *Builder) IAdd(x, y *SSADef) *SSADef { return b.ALU(OpIAdd, x, y) }

// IMul emits x * y
func (b *Builder) IMul(x, y *SSADef) *SSADef { return b.ALU(OpIMul, x, y) }

// U2U32 emits x converted to 32 bits, or returns x when it already is.
func (b *Builder) U2U32(x *SSADef) *SSADef {
	if x.BitSize == 32 {
		return x
	}
	def := b.Impl.NewSSADef(x.NumComponents, 32)
	b.Insert(&ALU{
		Op:        OpU2U32,
		SrcList:   []Src{SSASrc(x)},
		Dest:      Dest{SSA: def},
		WriteMask: FullMask(def.NumComponents),
	})
	return def
}

// Mov emits a copy of src into a fresh SSA value.
func (b *Builder) Mov(src Src, numComponents, bitSize int) *SSADef {
	def := b.Impl.NewSSADef(numComponents, bitSize)
	b.Insert(&ALU{
		Op:        OpMov,
		SrcList:   []Src{src},
		Dest:      Dest{SSA: def},
		WriteMask: FullMask(numComponents),
	})
	return def
}

// SSAForSrc returns src as an SSA value, copying register operands out
// with a mov.
func (b *Builder) SSAForSrc(src Src, numComponents int) *SSADef {
	if src.SSA != nil {
		return src.SSA
	}
	bits := 32
	if src.Reg != nil && src.Reg.Reg != nil {
		bits = src.Reg.Reg.BitSize
	}
	return b.Mov(src, numComponents, bits)
}

// LoadDeref emits a load of the value at h into a fresh SSA value.
func (b *Builder) LoadDeref(h DerefHandle, numComponents, bitSize int) *SSADef {
	def := b.Impl.NewSSADef(numComponents, bitSize)
	b.Insert(&LoadDeref{Deref: h, Dest: Dest{SSA: def}, NumComponents: numComponents})
	return def
}

// StoreDeref emits a store of value to h.
func (b *Builder) StoreDeref(h DerefHandle, value *SSADef, writeMask uint8) {
	b.Insert(&StoreDeref{Deref: h, Value: SSASrc(value), WriteMask: writeMask})
}

// FullMask is the write mask covering n components.
func FullMask(n int) uint8 {
	return uint8(1<<uint(n)) - 1
}
