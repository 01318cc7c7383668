package nir

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
)

// Printer writes the textual form of a shader
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new NIR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintShader prints globals followed by every function
func (p *Printer) PrintShader(s *Shader) {
	fmt.Fprintf(p.w, "shader %s\n", s.Name)
	for _, v := range s.Globals {
		p.printVarDecl(v)
	}
	for _, fn := range s.Functions {
		fmt.Fprintln(p.w)
		p.PrintFunction(fn)
	}
}

// PrintFunction prints one function; declarations print as a single line
func (p *Printer) PrintFunction(fn *Function) {
	if fn.Impl == nil {
		fmt.Fprintf(p.w, "decl_function %s\n", fn.Name)
		return
	}
	impl := fn.Impl
	fmt.Fprintf(p.w, "impl %s {\n", fn.Name)
	for _, v := range impl.Locals {
		fmt.Fprint(p.w, "  ")
		p.printVarDecl(v)
	}
	for _, r := range impl.Registers {
		fmt.Fprintf(p.w, "  decl_reg %s\n", FormatRegDecl(r))
	}
	for _, b := range impl.Blocks {
		p.printBlock(impl, b)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printVarDecl(v *Variable) {
	fmt.Fprintf(p.w, "decl_var %s %s %s", v.Mode, v.Type, v.Name)
	if v.ConstantInitializer != nil {
		fmt.Fprintf(p.w, " = %s", formatValues(v.ConstantInitializer))
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) printBlock(impl *Impl, b *Block) {
	fmt.Fprintf(p.w, "  block %s:", blockName(b))
	if preds := impl.Preds(b); len(preds) > 0 {
		fmt.Fprintf(p.w, " // preds: %s", blockList(preds))
	}
	if impl.valid&MetadataDominance != 0 && b.IDom != nil {
		fmt.Fprintf(p.w, " // idom: %s", blockName(b.IDom))
	}
	if impl.valid&MetadataLiveSSADefs != 0 && len(b.LiveIn) > 0 {
		fmt.Fprintf(p.w, " // live-in: %s", defList(b.LiveIn))
	}
	fmt.Fprintln(p.w)
	for _, instr := range b.Instrs {
		fmt.Fprintf(p.w, "    %s\n", FormatInstr(impl, instr))
	}
	if len(b.Succs) > 0 {
		fmt.Fprintf(p.w, "    // succs: %s\n", blockList(b.Succs))
	}
}

func blockName(b *Block) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("b%d", b.Index)
}

func blockList(bs []*Block) string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = blockName(b)
	}
	return strings.Join(names, " ")
}

func defList(defs []*SSADef) string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = fmt.Sprintf("ssa_%d", d.Index)
	}
	return strings.Join(names, " ")
}

// FormatRegDecl prints a register declaration, e.g. "vec4 32 r0[4]"
func FormatRegDecl(r *Register) string {
	s := fmt.Sprintf("%s %d r%d", vecName(r.NumComponents), r.BitSize, r.Index)
	if r.NumArrayElems > 0 {
		s += fmt.Sprintf("[%d]", r.NumArrayElems)
	}
	return s
}

func vecName(n int) string {
	return fmt.Sprintf("vec%d", n)
}

// FormatInstr prints a single instruction
func FormatInstr(impl *Impl, instr Instr) string {
	switch i := instr.(type) {
	case *ALU:
		srcs := make([]string, len(i.SrcList))
		for j, s := range i.SrcList {
			srcs[j] = FormatSrc(s)
		}
		s := fmt.Sprintf("%s = %s %s", formatDest(i.Dest), i.Op, strings.Join(srcs, ", "))
		if i.Dest.Reg != nil && i.Dest.Reg.Reg != nil && i.WriteMask != FullMask(i.Dest.Reg.Reg.NumComponents) {
			s += fmt.Sprintf(" (wrmask=%s)", formatMask(i.WriteMask))
		}
		return s
	case *LoadConst:
		return fmt.Sprintf("%s = load_const %s", formatDef(i.Def), formatValues(i.Values))
	case *LoadDeref:
		return fmt.Sprintf("%s = load_deref %s", formatDest(i.Dest), FormatDeref(impl, i.Deref))
	case *StoreDeref:
		return fmt.Sprintf("store_deref %s, %s (wrmask=%s)", FormatDeref(impl, i.Deref), FormatSrc(i.Value), formatMask(i.WriteMask))
	case *CopyDeref:
		return fmt.Sprintf("copy_deref %s, %s", FormatDeref(impl, i.Dst), FormatDeref(impl, i.Src))
	case *Intrinsic:
		srcs := make([]string, len(i.SrcList))
		for j, s := range i.SrcList {
			srcs[j] = FormatSrc(s)
		}
		call := fmt.Sprintf("@%s (%s)", i.Name, strings.Join(srcs, ", "))
		if i.Dest != nil {
			return formatDest(*i.Dest) + " = " + call
		}
		return call
	}
	return "???"
}

func formatDef(d *SSADef) string {
	return fmt.Sprintf("%s %d ssa_%d", vecName(d.NumComponents), d.BitSize, d.Index)
}

func formatDest(d Dest) string {
	if d.SSA != nil {
		return formatDef(d.SSA)
	}
	if d.Reg != nil {
		return FormatRegRef(*d.Reg)
	}
	return "???"
}

// FormatSrc prints an operand: ssa_N or a register slot
func FormatSrc(s Src) string {
	if s.SSA != nil {
		return fmt.Sprintf("ssa_%d", s.SSA.Index)
	}
	if s.Reg != nil {
		return FormatRegRef(*s.Reg)
	}
	return "???"
}

// FormatRegRef prints r0, r0[2], r0[ssa_4] or r0[2 + ssa_4]
func FormatRegRef(r RegRef) string {
	if r.Reg == nil {
		return "r?"
	}
	name := fmt.Sprintf("r%d", r.Reg.Index)
	if r.Reg.NumArrayElems == 0 {
		return name
	}
	switch {
	case r.Indirect == nil:
		return fmt.Sprintf("%s[%d]", name, r.BaseOffset)
	case r.BaseOffset == 0:
		return fmt.Sprintf("%s[ssa_%d]", name, r.Indirect.Index)
	default:
		return fmt.Sprintf("%s[%d + ssa_%d]", name, r.BaseOffset, r.Indirect.Index)
	}
}

// FormatDeref prints a chain the way it would be written in source:
// &light.weights[ssa_3]
func FormatDeref(impl *Impl, h DerefHandle) string {
	var parts []string
	for d := h; d != NoDeref; d = impl.Derefs[d].Parent {
		link := impl.Derefs[d]
		switch link.Kind {
		case DerefVar:
			parts = append(parts, link.Var.Name)
		case DerefArray:
			if v, ok := SrcAsUint(link.Index); ok {
				parts = append(parts, fmt.Sprintf("[%d]", v))
			} else {
				parts = append(parts, "["+FormatSrc(link.Index)+"]")
			}
		case DerefStruct:
			parts = append(parts, "."+fieldName(impl, link))
		case DerefCast:
			parts = append(parts, fmt.Sprintf("(%s *)", link.Type))
		}
	}
	var sb strings.Builder
	sb.WriteString("&")
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteString(parts[i])
	}
	return sb.String()
}

func fieldName(impl *Impl, link Deref) string {
	if link.Parent != NoDeref {
		if st, ok := impl.Derefs[link.Parent].Type.(gtypes.Struct); ok && link.Field < len(st.Fields) {
			return st.Fields[link.Field].Name
		}
	}
	return fmt.Sprintf("%d", link.Field)
}

func formatValues(vs []uint64) string {
	strs := make([]string, len(vs))
	for i, v := range vs {
		strs[i] = fmt.Sprintf("0x%08x", v)
	}
	return "(" + strings.Join(strs, ", ") + ")"
}

func formatMask(m uint8) string {
	var sb strings.Builder
	for i, c := range "xyzw" {
		if m&(1<<uint(i)) != 0 {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}
