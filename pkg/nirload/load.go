// Package nirload reads shader descriptions written in YAML and builds the
// corresponding nir.Shader.
//
// A description looks like:
//
//	format: "1.0"
//	shader: example
//	structs:
//	  - name: Light
//	    fields:
//	      - {name: pos, type: vec3}
//	functions:
//	  - name: main
//	    locals:
//	      - {name: arr, type: "vec4[4]"}
//	    blocks:
//	      - name: b0
//	        instrs:
//	          - {op: const, def: v, values: [1, 2, 3, 4]}
//	          - {op: store, deref: "arr[1]", value: v}
//	          - {op: load, deref: "arr[1]", def: r}
//
// Integer literals in deref paths and operand lists become implicit
// 32-bit load_const instructions emitted just before their user.
package nirload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

// FormatConstraint is the range of description versions this loader reads
const FormatConstraint = "^1.0"

type shaderSpec struct {
	Format    string         `yaml:"format"`
	Shader    string         `yaml:"shader"`
	Structs   []structSpec   `yaml:"structs"`
	Globals   []varSpec      `yaml:"globals"`
	Functions []functionSpec `yaml:"functions"`
}

type structSpec struct {
	Name   string    `yaml:"name"`
	Fields []varSpec `yaml:"fields"`
}

type varSpec struct {
	Name string   `yaml:"name"`
	Type string   `yaml:"type"`
	Mode string   `yaml:"mode"`
	Init []uint64 `yaml:"init"`
}

type functionSpec struct {
	Name   string      `yaml:"name"`
	Locals []varSpec   `yaml:"locals"`
	Blocks []blockSpec `yaml:"blocks"`
}

type blockSpec struct {
	Name   string      `yaml:"name"`
	Succs  []string    `yaml:"succs"`
	Instrs []instrSpec `yaml:"instrs"`
}

type instrSpec struct {
	Op         string   `yaml:"op"`
	Def        string   `yaml:"def"`
	Values     []uint64 `yaml:"values"`
	Bits       int      `yaml:"bits"`
	Components int      `yaml:"components"`
	Deref      string   `yaml:"deref"`
	Value      string   `yaml:"value"`
	WriteMask  *uint8   `yaml:"wrmask"`
	Dst        string   `yaml:"dst"`
	Src        string   `yaml:"src"`
	ALU        string   `yaml:"alu"`
	Srcs       []string `yaml:"srcs"`
	Name       string   `yaml:"name"`

	line int
}

func (s *instrSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain instrSpec
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	s.line = n.Line
	return nil
}

// LoadFile reads the description at path. Errors are prefixed with path.
func LoadFile(path string) (*nir.Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Load reads one description from r.
func Load(r io.Reader) (*nir.Shader, error) {
	var spec shaderSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, err
	}
	if err := checkFormat(spec.Format); err != nil {
		return nil, err
	}

	l := &loader{
		structs: make(map[string]gtypes.Type),
		globals: make(map[string]*nir.Variable),
		nextID:  1,
	}
	return l.shader(&spec)
}

func checkFormat(format string) error {
	if format == "" {
		return fmt.Errorf("missing format version")
	}
	v, err := semver.NewVersion(format)
	if err != nil {
		return fmt.Errorf("format %q: %w", format, err)
	}
	c, err := semver.NewConstraint(FormatConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("format %s not supported (want %s)", v, FormatConstraint)
	}
	return nil
}

// loader holds shader-wide state; fnLoader holds what is per function
type loader struct {
	structs map[string]gtypes.Type
	globals map[string]*nir.Variable
	nextID  int
}

func (l *loader) shader(spec *shaderSpec) (*nir.Shader, error) {
	shader := &nir.Shader{Name: spec.Shader}

	for _, st := range spec.Structs {
		t := gtypes.Struct{Name: st.Name}
		for _, f := range st.Fields {
			ft, err := gtypes.Parse(f.Type, l.structs)
			if err != nil {
				return nil, fmt.Errorf("struct %s: field %s: %w", st.Name, f.Name, err)
			}
			t.Fields = append(t.Fields, gtypes.Field{Name: f.Name, Type: ft})
		}
		if _, dup := l.structs[st.Name]; dup {
			return nil, fmt.Errorf("struct %s redeclared", st.Name)
		}
		l.structs[st.Name] = t
	}

	for _, g := range spec.Globals {
		mode := nir.ModeGlobal
		if g.Mode != "" {
			m, err := nir.ParseVarMode(g.Mode)
			if err != nil {
				return nil, fmt.Errorf("global %s: %w", g.Name, err)
			}
			mode = m
		}
		if mode == nir.ModeLocal {
			return nil, fmt.Errorf("global %s: mode local is reserved for function locals", g.Name)
		}
		v, err := l.variable(g, mode)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name, err)
		}
		if _, dup := l.globals[v.Name]; dup {
			return nil, fmt.Errorf("global %s redeclared", v.Name)
		}
		l.globals[v.Name] = v
		shader.Globals = append(shader.Globals, v)
	}

	for i := range spec.Functions {
		fn, err := l.function(&spec.Functions[i])
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", spec.Functions[i].Name, err)
		}
		shader.Functions = append(shader.Functions, fn)
	}
	return shader, nil
}

func (l *loader) variable(vs varSpec, mode nir.VarMode) (*nir.Variable, error) {
	t, err := gtypes.Parse(vs.Type, l.structs)
	if err != nil {
		return nil, err
	}
	v := &nir.Variable{ID: l.nextID, Name: vs.Name, Type: t, Mode: mode, ConstantInitializer: vs.Init}
	l.nextID++
	return v, nil
}

type fnLoader struct {
	*loader
	impl   *nir.Impl
	bld    *nir.Builder
	locals map[string]*nir.Variable
	defs   map[string]*nir.SSADef
}

func (l *loader) function(spec *functionSpec) (*nir.Function, error) {
	fn := &nir.Function{Name: spec.Name}
	if len(spec.Blocks) == 0 {
		if len(spec.Locals) != 0 {
			return nil, fmt.Errorf("declaration cannot have locals")
		}
		return fn, nil
	}

	fl := &fnLoader{
		loader: l,
		impl:   nir.NewImpl(fn),
		locals: make(map[string]*nir.Variable),
		defs:   make(map[string]*nir.SSADef),
	}
	fl.bld = nir.NewBuilder(fl.impl)

	for _, ls := range spec.Locals {
		v, err := l.variable(ls, nir.ModeLocal)
		if err != nil {
			return nil, fmt.Errorf("local %s: %w", ls.Name, err)
		}
		if _, dup := fl.locals[v.Name]; dup {
			return nil, fmt.Errorf("local %s redeclared", v.Name)
		}
		fl.locals[v.Name] = v
		fl.impl.Locals = append(fl.impl.Locals, v)
	}

	byName := make(map[string]*nir.Block)
	for i, bs := range spec.Blocks {
		name := bs.Name
		if name == "" {
			name = fmt.Sprintf("b%d", i)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("block %s redeclared", name)
		}
		byName[name] = fl.impl.AddBlock(name)
	}
	for i, bs := range spec.Blocks {
		b := fl.impl.Blocks[i]
		if len(bs.Succs) > 2 {
			return nil, fmt.Errorf("block %s: %d successors, at most 2 allowed", b.Name, len(bs.Succs))
		}
		for _, s := range bs.Succs {
			succ, ok := byName[s]
			if !ok {
				return nil, fmt.Errorf("block %s: unknown successor %s", b.Name, s)
			}
			b.AddEdge(succ)
		}
	}

	for i := range spec.Blocks {
		b := fl.impl.Blocks[i]
		fl.bld.Cursor = nir.AtEnd(b)
		for j := range spec.Blocks[i].Instrs {
			is := &spec.Blocks[i].Instrs[j]
			if err := fl.instr(is); err != nil {
				return nil, fmt.Errorf("line %d: block %s: instr %d: %w", is.line, b.Name, j, err)
			}
		}
	}
	return fn, nil
}

func (fl *fnLoader) define(name string, def *nir.SSADef) error {
	if name == "" {
		return nil
	}
	if _, dup := fl.defs[name]; dup {
		return fmt.Errorf("value %s redefined", name)
	}
	fl.defs[name] = def
	return nil
}

// value resolves an operand: a defined value name or an integer literal
func (fl *fnLoader) value(name string) (*nir.SSADef, error) {
	if def, ok := fl.defs[name]; ok {
		return def, nil
	}
	if n, err := strconv.ParseInt(name, 0, 64); err == nil {
		return fl.bld.Imm(n, 32), nil
	}
	if name == "" {
		return nil, fmt.Errorf("missing operand")
	}
	return nil, fmt.Errorf("undefined value %s", name)
}

func (fl *fnLoader) lookupVar(name string) (*nir.Variable, bool) {
	if v, ok := fl.locals[name]; ok {
		return v, true
	}
	v, ok := fl.globals[name]
	return v, ok
}

func (fl *fnLoader) instr(is *instrSpec) error {
	bits := is.Bits
	if bits == 0 {
		bits = 32
	}

	switch is.Op {
	case "const":
		if len(is.Values) == 0 {
			return fmt.Errorf("const without values")
		}
		return fl.define(is.Def, fl.bld.Const(is.Values, bits))

	case "load":
		h, err := fl.deref(is.Deref)
		if err != nil {
			return err
		}
		leaf := fl.impl.Deref(h).Type
		if !gtypes.IsVectorOrScalar(leaf) {
			return fmt.Errorf("load of aggregate %s", leaf)
		}
		def := fl.bld.LoadDeref(h, gtypes.VectorElements(leaf), gtypes.BitSize(leaf))
		return fl.define(is.Def, def)

	case "store":
		h, err := fl.deref(is.Deref)
		if err != nil {
			return err
		}
		v, err := fl.value(is.Value)
		if err != nil {
			return err
		}
		mask := nir.FullMask(v.NumComponents)
		if is.WriteMask != nil {
			mask = *is.WriteMask
		}
		fl.bld.StoreDeref(h, v, mask)
		return nil

	case "copy":
		dst, err := fl.deref(is.Dst)
		if err != nil {
			return err
		}
		src, err := fl.deref(is.Src)
		if err != nil {
			return err
		}
		fl.bld.Insert(&nir.CopyDeref{Dst: dst, Src: src})
		return nil

	case "alu":
		op, err := nir.ParseALUOp(is.ALU)
		if err != nil {
			return err
		}
		if len(is.Srcs) != op.NumSrcs() {
			return fmt.Errorf("%s takes %d operands, got %d", op, op.NumSrcs(), len(is.Srcs))
		}
		srcs := make([]*nir.SSADef, len(is.Srcs))
		for i, s := range is.Srcs {
			if srcs[i], err = fl.value(s); err != nil {
				return err
			}
		}
		return fl.define(is.Def, fl.bld.ALU(op, srcs...))

	case "intrinsic":
		if is.Name == "" {
			return fmt.Errorf("intrinsic without name")
		}
		in := &nir.Intrinsic{Name: is.Name}
		for _, s := range is.Srcs {
			v, err := fl.value(s)
			if err != nil {
				return err
			}
			in.SrcList = append(in.SrcList, nir.SSASrc(v))
		}
		if is.Def != "" {
			n := is.Components
			if n == 0 {
				n = 1
			}
			def := fl.impl.NewSSADef(n, bits)
			in.Dest = &nir.Dest{SSA: def}
			if err := fl.define(is.Def, def); err != nil {
				return err
			}
		}
		fl.bld.Insert(in)
		return nil
	}
	return fmt.Errorf("unknown op %q", is.Op)
}
