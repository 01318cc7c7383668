package regviz

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/lowerregs"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

func lowered(t *testing.T) *nir.Impl {
	t.Helper()
	fn := &nir.Function{Name: "main"}
	impl := nir.NewImpl(fn)
	b := impl.AddBlock("entry")
	arr := &nir.Variable{ID: 1, Name: "arr", Type: gtypes.ArrayOf(gtypes.Vec4(), 4), Mode: nir.ModeLocal}
	impl.Locals = append(impl.Locals, arr)

	bld := nir.NewBuilder(impl)
	bld.Cursor = nir.AtEnd(b)
	elem := func() nir.DerefHandle {
		h, err := impl.NewArrayDeref(impl.NewVarDeref(arr), nir.SSASrc(bld.Imm(1, 32)))
		if err != nil {
			t.Fatal(err)
		}
		return h
	}
	v := bld.Const([]uint64{1, 2, 3, 4}, 32)
	bld.StoreDeref(elem(), v, 0xf)
	bld.LoadDeref(elem(), 4, 32)

	if _, err := lowerregs.LowerFunction(impl); err != nil {
		t.Fatal(err)
	}
	return impl
}

func TestDraw(t *testing.T) {
	impl := lowered(t)

	var buf bytes.Buffer
	if err := Draw(&buf, impl); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "<?xml") || !strings.Contains(out, "</svg>") {
		t.Fatalf("not an svg document:\n%s", out)
	}
	if !strings.Contains(out, "vec4 32 r0[4]") {
		t.Errorf("register column header missing")
	}
	if !strings.Contains(out, ">entry<") {
		t.Errorf("block label missing")
	}
	// one write and one read
	if n := strings.Count(out, "<circle"); n != 2 {
		t.Errorf("got %d access marks, want 2", n)
	}
	if n := strings.Count(out, "fill:white;stroke:black"); n != 1 {
		t.Errorf("got %d write marks, want 1", n)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDrawWriteError(t *testing.T) {
	if err := Draw(failWriter{}, lowered(t)); err == nil || err.Error() != "disk full" {
		t.Errorf("got %v, want disk full", err)
	}
}

func TestDrawOrderAndWrites(t *testing.T) {
	fn := &nir.Function{Name: "main"}
	impl := nir.NewImpl(fn)
	entry := impl.AddBlock("entry")
	late := impl.AddBlock("late")
	mid := impl.AddBlock("mid")
	dead := impl.AddBlock("dead")
	entry.AddEdge(mid)
	mid.AddEdge(late)
	dead.AddEdge(late)

	g := &nir.Variable{ID: 1, Name: "g", Type: gtypes.FloatType(), Mode: nir.ModeUniform}
	r0 := impl.NewLocalReg(1, 32, 0)
	r1 := impl.NewLocalReg(1, 32, 0)
	mid.Append(&nir.Intrinsic{Name: "load_input", Dest: &nir.Dest{Reg: &nir.RegRef{Reg: r0}}})
	late.Append(&nir.LoadDeref{Deref: impl.NewVarDeref(g), Dest: nir.Dest{Reg: &nir.RegRef{Reg: r1}}, NumComponents: 1})
	late.Append(&nir.ALU{
		Op:        nir.OpMov,
		SrcList:   []nir.Src{nir.RegSrc(nir.RegRef{Reg: r0})},
		Dest:      nir.Dest{SSA: impl.NewSSADef(1, 32)},
		WriteMask: 1,
	})

	var buf bytes.Buffer
	if err := Draw(&buf, impl); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	out := buf.String()

	pos := func(label string) int {
		i := strings.Index(out, ">"+label+"<")
		if i < 0 {
			t.Fatalf("block label %s missing", label)
		}
		return i
	}
	if !(pos("entry") < pos("mid") && pos("mid") < pos("late") && pos("late") < pos("dead")) {
		t.Errorf("blocks not in dominance order")
	}
	if n := strings.Count(out, "<circle"); n != 3 {
		t.Errorf("got %d access marks, want 3", n)
	}
	if n := strings.Count(out, "fill:white;stroke:black"); n != 2 {
		t.Errorf("got %d write marks, want 2", n)
	}
}
