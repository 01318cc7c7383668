// Package nir defines a small NIR-style shader IR: functions made of basic
// blocks in a CFG, SSA values, virtual registers, and variables reached
// through dereference chains. Passes rewrite instructions in place.
package nir

import (
	"fmt"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
)

// VarMode is the storage class of a variable
type VarMode int

const (
	ModeLocal VarMode = iota // private to one function invocation
	ModeGlobal
	ModeUniform
	ModeShaderIn
	ModeShaderOut
)

var modeNames = []string{"local", "global", "uniform", "shader_in", "shader_out"}

func (m VarMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "?"
}

// ParseVarMode returns the mode with the given printed name.
func ParseVarMode(s string) (VarMode, error) {
	for i, n := range modeNames {
		if n == s {
			return VarMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown variable mode %q", s)
}

// Variable is a declared storage location.
// ID is unique per declaration within a shader.
type Variable struct {
	ID                  int
	Name                string
	Type                gtypes.Type
	Mode                VarMode
	ConstantInitializer []uint64 // nil when the variable has no initializer
}

// --- SSA values, registers and operands ---

// SSADef is an SSA value produced by exactly one instruction
type SSADef struct {
	Index         int
	NumComponents int
	BitSize       int
	Parent        Instr // defining instruction
}

// Register is a virtual register owned by a function implementation.
// NumArrayElems is 0 for a single-slot register.
type Register struct {
	Index         int
	NumComponents int
	BitSize       int
	NumArrayElems int
}

// RegRef addresses one slot of a register: Reg[BaseOffset + Indirect].
// Indirect is nil for direct accesses.
type RegRef struct {
	Reg        *Register
	BaseOffset int
	Indirect   *SSADef
}

// Src is an instruction operand: either an SSA value or a register slot
type Src struct {
	SSA *SSADef
	Reg *RegRef
}

// Dest is an instruction result: either a new SSA value or a register slot
type Dest struct {
	SSA *SSADef
	Reg *RegRef
}

// SSASrc wraps an SSA value as an operand
func SSASrc(d *SSADef) Src { return Src{SSA: d} }

// RegSrc wraps a register slot as an operand
func RegSrc(r RegRef) Src { return Src{Reg: &r} }

// IsSSA reports whether the operand is an SSA value
func (s Src) IsSSA() bool { return s.SSA != nil }

// --- Dereference chains ---

// DerefKind distinguishes the links of a dereference chain
type DerefKind int

const (
	DerefVar DerefKind = iota
	DerefArray
	DerefStruct
	DerefCast
)

func (k DerefKind) String() string {
	switch k {
	case DerefVar:
		return "var"
	case DerefArray:
		return "array"
	case DerefStruct:
		return "struct"
	case DerefCast:
		return "cast"
	}
	return "?"
}

// DerefHandle addresses a Deref in its Impl's arena
type DerefHandle int

// NoDeref is the parent of a chain root
const NoDeref DerefHandle = -1

// Deref is one link of a dereference chain. Links point at their parent;
// a well-formed chain ends at a DerefVar.
type Deref struct {
	Kind   DerefKind
	Parent DerefHandle
	Var    *Variable // DerefVar
	Index  Src       // DerefArray
	Field  int       // DerefStruct
	Type   gtypes.Type
	Mode   VarMode
}

// --- Instructions ---

// Instr is the interface for instructions held by a Block
type Instr interface {
	Block() *Block
	setBlock(b *Block)
	// Srcs returns pointers to the operands so uses can be rewritten
	Srcs() []*Src
}

type instrBase struct {
	block *Block
}

func (i *instrBase) Block() *Block     { return i.block }
func (i *instrBase) setBlock(b *Block) { i.block = b }

// ALUOp is an ALU opcode
type ALUOp int

const (
	OpMov ALUOp = iota
	OpIAdd
	OpIMul
	OpFAdd
	OpFMul
	OpU2U32
)

var aluNames = []string{"mov", "iadd", "imul", "fadd", "fmul", "u2u32"}

func (o ALUOp) String() string {
	if int(o) < len(aluNames) {
		return aluNames[o]
	}
	return "?"
}

// ParseALUOp returns the opcode with the given printed name.
func ParseALUOp(s string) (ALUOp, error) {
	for i, n := range aluNames {
		if n == s {
			return ALUOp(i), nil
		}
	}
	return 0, fmt.Errorf("unknown alu op %q", s)
}

// NumSrcs returns the operand count of the opcode
func (o ALUOp) NumSrcs() int {
	if o == OpMov || o == OpU2U32 {
		return 1
	}
	return 2
}

// ALU is an arithmetic instruction: Dest = Op(Srcs...)
type ALU struct {
	instrBase
	Op        ALUOp
	SrcList   []Src
	Dest      Dest
	WriteMask uint8
}

// LoadConst defines an SSA value from immediate components
type LoadConst struct {
	instrBase
	Def    *SSADef
	Values []uint64
}

// LoadDeref reads the value at the end of a dereference chain
type LoadDeref struct {
	instrBase
	Deref         DerefHandle
	Dest          Dest
	NumComponents int
}

// StoreDeref writes Value to the end of a dereference chain.
// Only components set in WriteMask are written.
type StoreDeref struct {
	instrBase
	Deref     DerefHandle
	Value     Src
	WriteMask uint8
}

// CopyDeref copies the whole value at Src to Dst
type CopyDeref struct {
	instrBase
	Dst DerefHandle
	Src DerefHandle
}

// Intrinsic is an opaque operation the passes leave alone
type Intrinsic struct {
	instrBase
	Name    string
	SrcList []Src
	Dest    *Dest
}

func (i *ALU) Srcs() []*Src {
	out := make([]*Src, len(i.SrcList))
	for j := range i.SrcList {
		out[j] = &i.SrcList[j]
	}
	return out
}

func (i *LoadConst) Srcs() []*Src  { return nil }
func (i *LoadDeref) Srcs() []*Src  { return nil }
func (i *StoreDeref) Srcs() []*Src { return []*Src{&i.Value} }
func (i *CopyDeref) Srcs() []*Src  { return nil }

func (i *Intrinsic) Srcs() []*Src {
	out := make([]*Src, len(i.SrcList))
	for j := range i.SrcList {
		out[j] = &i.SrcList[j]
	}
	return out
}

// --- Blocks, functions and shaders ---

// Block is a basic block. Succs holds up to two successors; the
// terminator is implied by the edges.
type Block struct {
	Index  int
	Name   string
	Instrs []Instr
	Succs  []*Block

	// filled in by dominance metadata
	IDom        *Block
	DomChildren []*Block

	// filled in by live SSA def metadata, ordered by index
	LiveIn  []*SSADef
	LiveOut []*SSADef
}

// Impl is the body of a function
type Impl struct {
	Function  *Function
	Locals    []*Variable
	Derefs    []Deref
	Blocks    []*Block
	Registers []*Register

	numSSA int
	valid  Metadata
}

// Function is a declared function; Impl is nil for declarations
type Function struct {
	Name string
	Impl *Impl
}

// Shader is a complete program
type Shader struct {
	Name      string
	Globals   []*Variable
	Functions []*Function
}

// NewImpl creates an empty implementation attached to fn.
func NewImpl(fn *Function) *Impl {
	impl := &Impl{Function: fn}
	fn.Impl = impl
	return impl
}

// AddBlock appends a new block to the implementation.
func (impl *Impl) AddBlock(name string) *Block {
	b := &Block{Index: len(impl.Blocks), Name: name}
	impl.Blocks = append(impl.Blocks, b)
	impl.valid = MetadataNone
	return b
}

// AddEdge adds a CFG edge from b to succ.
func (b *Block) AddEdge(succ *Block) {
	b.Succs = append(b.Succs, succ)
}

// Preds returns the predecessors of b in block order.
func (impl *Impl) Preds(b *Block) []*Block {
	var preds []*Block
	for _, p := range impl.Blocks {
		for _, s := range p.Succs {
			if s == b {
				preds = append(preds, p)
				break
			}
		}
	}
	return preds
}

// NewSSADef allocates a fresh SSA value.
func (impl *Impl) NewSSADef(numComponents, bitSize int) *SSADef {
	d := &SSADef{Index: impl.numSSA, NumComponents: numComponents, BitSize: bitSize}
	impl.numSSA++
	return d
}

// NewLocalReg creates a register owned by this implementation.
func (impl *Impl) NewLocalReg(numComponents, bitSize, numArrayElems int) *Register {
	r := &Register{
		Index:         len(impl.Registers),
		NumComponents: numComponents,
		BitSize:       bitSize,
		NumArrayElems: numArrayElems,
	}
	impl.Registers = append(impl.Registers, r)
	return r
}

// Append adds an instruction at the end of b.
func (b *Block) Append(instr Instr) {
	instr.setBlock(b)
	b.Instrs = append(b.Instrs, instr)
	setParent(instr)
}

// Remove deletes instr from b. Removing an instruction that is not in b is
// a no-op.
func (b *Block) Remove(instr Instr) {
	for i, in := range b.Instrs {
		if in == instr {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			instr.setBlock(nil)
			return
		}
	}
}

// insertBefore places instr in front of at, or at the end when at is nil.
func (b *Block) insertBefore(instr, at Instr) {
	instr.setBlock(b)
	setParent(instr)
	if at == nil {
		b.Instrs = append(b.Instrs, instr)
		return
	}
	for i, in := range b.Instrs {
		if in == at {
			b.Instrs = append(b.Instrs, nil)
			copy(b.Instrs[i+1:], b.Instrs[i:])
			b.Instrs[i] = instr
			return
		}
	}
	b.Instrs = append(b.Instrs, instr)
}

// InstrDef returns the SSA value instr defines, or nil.
func InstrDef(instr Instr) *SSADef {
	switch i := instr.(type) {
	case *ALU:
		return i.Dest.SSA
	case *LoadConst:
		return i.Def
	case *LoadDeref:
		return i.Dest.SSA
	case *Intrinsic:
		if i.Dest != nil {
			return i.Dest.SSA
		}
	}
	return nil
}

// RegDest returns the register slot instr writes, or nil.
func RegDest(instr Instr) *RegRef {
	switch i := instr.(type) {
	case *ALU:
		return i.Dest.Reg
	case *LoadDeref:
		return i.Dest.Reg
	case *Intrinsic:
		if i.Dest != nil {
			return i.Dest.Reg
		}
	}
	return nil
}

// setParent records instr as the defining instruction of its SSA result
func setParent(instr Instr) {
	if d := InstrDef(instr); d != nil {
		d.Parent = instr
	}
}

// derefs returns the chains instr reads or writes through
func derefs(instr Instr) []DerefHandle {
	switch i := instr.(type) {
	case *LoadDeref:
		return []DerefHandle{i.Deref}
	case *StoreDeref:
		return []DerefHandle{i.Deref}
	case *CopyDeref:
		return []DerefHandle{i.Dst, i.Src}
	}
	return nil
}

// forEachUse calls fn for every SSA value instr reads: operands, indirect
// register slots and array indices along its deref chains.
func (impl *Impl) forEachUse(instr Instr, fn func(*SSADef)) {
	visit := func(s Src) {
		if s.IsSSA() {
			fn(s.SSA)
		}
		if s.Reg != nil && s.Reg.Indirect != nil {
			fn(s.Reg.Indirect)
		}
	}
	for _, s := range instr.Srcs() {
		visit(*s)
	}
	if r := RegDest(instr); r != nil && r.Indirect != nil {
		fn(r.Indirect)
	}
	for _, h := range derefs(instr) {
		for d := h; d != NoDeref; d = impl.Derefs[d].Parent {
			if impl.Derefs[d].Kind == DerefArray {
				visit(impl.Derefs[d].Index)
			}
		}
	}
}

// RewriteUses redirects every use of old to new, including array indices
// held by the deref arena.
func (impl *Impl) RewriteUses(old, new *SSADef) {
	rewrite := func(s *Src) {
		if s.SSA == old {
			s.SSA = new
		}
		if s.Reg != nil && s.Reg.Indirect == old {
			s.Reg.Indirect = new
		}
	}
	for _, b := range impl.Blocks {
		for _, instr := range b.Instrs {
			for _, s := range instr.Srcs() {
				rewrite(s)
			}
			// register destinations may be indirectly addressed too
			if r := RegDest(instr); r != nil && r.Indirect == old {
				r.Indirect = new
			}
		}
	}
	for i := range impl.Derefs {
		if impl.Derefs[i].Kind == DerefArray {
			rewrite(&impl.Derefs[i].Index)
		}
	}
}

// SrcAsUint returns the first component of src when it is a compile-time
// constant.
func SrcAsUint(src Src) (uint64, bool) {
	if src.SSA == nil {
		return 0, false
	}
	lc, ok := src.SSA.Parent.(*LoadConst)
	if !ok || len(lc.Values) == 0 {
		return 0, false
	}
	return lc.Values[0], true
}

// FunctionsWithImpl returns the functions that have a body.
func (s *Shader) FunctionsWithImpl() []*Function {
	var fns []*Function
	for _, fn := range s.Functions {
		if fn.Impl != nil {
			fns = append(fns, fn)
		}
	}
	return fns
}
