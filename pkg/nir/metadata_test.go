package nir

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
)

// diamond builds entry -> (then, else) -> merge, plus an unreachable block
func diamond() (*Impl, []*Block) {
	impl := NewImpl(&Function{Name: "f"})
	entry := impl.AddBlock("entry")
	then := impl.AddBlock("then")
	els := impl.AddBlock("else")
	merge := impl.AddBlock("merge")
	dead := impl.AddBlock("dead")
	entry.AddEdge(then)
	entry.AddEdge(els)
	then.AddEdge(merge)
	els.AddEdge(merge)
	merge.AddEdge(merge) // self loop
	dead.AddEdge(merge)
	return impl, []*Block{entry, then, els, merge, dead}
}

func TestDominance(t *testing.T) {
	impl, bs := diamond()
	entry, then, els, merge, dead := bs[0], bs[1], bs[2], bs[3], bs[4]

	impl.MetadataRequire(MetadataDominance)

	if impl.ValidMetadata()&MetadataDominance == 0 {
		t.Fatal("dominance not marked valid")
	}
	if impl.ValidMetadata()&MetadataBlockIndex == 0 {
		t.Error("dominance should imply block indices")
	}

	tests := []struct {
		block *Block
		idom  *Block
	}{
		{entry, nil},
		{then, entry},
		{els, entry},
		{merge, entry},
		{dead, nil},
	}
	for _, tt := range tests {
		if tt.block.IDom != tt.idom {
			t.Errorf("idom(%s) = %v, want %v", tt.block.Name, nameOf(tt.block.IDom), nameOf(tt.idom))
		}
	}
}

func TestDominancePreorder(t *testing.T) {
	impl, _ := diamond()
	impl.MetadataRequire(MetadataDominance)

	var got []string
	for _, b := range impl.DominancePreorder() {
		got = append(got, b.Name)
	}
	want := []string{"entry", "then", "else", "merge"}
	if len(got) != len(want) {
		t.Fatalf("preorder = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("preorder = %v, want %v", got, want)
			break
		}
	}
}

func TestMetadataPreserve(t *testing.T) {
	impl, _ := diamond()
	impl.MetadataRequire(MetadataAll)
	if impl.ValidMetadata() != MetadataAll {
		t.Fatalf("valid = %b, want %b", impl.ValidMetadata(), MetadataAll)
	}

	impl.MetadataPreserve(MetadataBlockIndex | MetadataDominance)
	if got := impl.ValidMetadata(); got != MetadataBlockIndex|MetadataDominance {
		t.Errorf("valid after preserve = %b", got)
	}

	impl.AddBlock("late")
	if impl.ValidMetadata() != MetadataNone {
		t.Error("adding a block should invalidate metadata")
	}
}

func TestPreds(t *testing.T) {
	impl, bs := diamond()
	preds := impl.Preds(bs[3])
	var names []string
	for _, p := range preds {
		names = append(names, p.Name)
	}
	want := []string{"then", "else", "merge", "dead"}
	if len(names) != len(want) {
		t.Fatalf("preds = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("preds = %v, want %v", names, want)
		}
	}
}

// branchy builds entry -> (then, join), then -> join. entry defines a and
// b; then reads a; join writes a register slot indexed by b.
func branchy() (impl *Impl, a, b *SSADef, bs []*Block) {
	impl = NewImpl(&Function{Name: "f"})
	entry := impl.AddBlock("entry")
	then := impl.AddBlock("then")
	join := impl.AddBlock("join")
	entry.AddEdge(then)
	entry.AddEdge(join)
	then.AddEdge(join)

	bld := NewBuilder(impl)
	bld.Cursor = AtEnd(entry)
	a = bld.Imm(1, 32)
	b = bld.Imm(2, 32)
	bld.Cursor = AtEnd(then)
	bld.IAdd(a, a)
	r := impl.NewLocalReg(1, 32, 4)
	join.Append(&Intrinsic{Name: "load_input", Dest: &Dest{Reg: &RegRef{Reg: r, Indirect: b}}})
	return impl, a, b, []*Block{entry, then, join}
}

func TestLiveness(t *testing.T) {
	impl, a, b, bs := branchy()
	entry, then, join := bs[0], bs[1], bs[2]
	impl.MetadataRequire(MetadataLiveSSADefs)
	if impl.ValidMetadata()&(MetadataLiveSSADefs|MetadataBlockIndex) != MetadataLiveSSADefs|MetadataBlockIndex {
		t.Fatalf("valid = %b", impl.ValidMetadata())
	}

	tests := []struct {
		block   *Block
		in, out []*SSADef
	}{
		{entry, nil, []*SSADef{a, b}},
		{then, []*SSADef{a, b}, []*SSADef{b}},
		{join, []*SSADef{b}, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(indices(tt.in), indices(tt.block.LiveIn)); diff != "" {
			t.Errorf("live-in(%s) (-want +got):\n%s", tt.block.Name, diff)
		}
		if diff := cmp.Diff(indices(tt.out), indices(tt.block.LiveOut)); diff != "" {
			t.Errorf("live-out(%s) (-want +got):\n%s", tt.block.Name, diff)
		}
	}
}

func TestLivenessLoop(t *testing.T) {
	impl := NewImpl(&Function{Name: "f"})
	entry := impl.AddBlock("entry")
	loop := impl.AddBlock("loop")
	exit := impl.AddBlock("exit")
	entry.AddEdge(loop)
	loop.AddEdge(loop)
	loop.AddEdge(exit)

	bld := NewBuilder(impl)
	bld.Cursor = AtEnd(entry)
	n := bld.Imm(4, 32)
	bld.Cursor = AtEnd(exit)
	arr := &Variable{ID: 1, Name: "arr", Type: gtypes.ArrayOf(gtypes.FloatType(), 4), Mode: ModeLocal}
	h, err := impl.NewArrayDeref(impl.NewVarDeref(arr), SSASrc(n))
	if err != nil {
		t.Fatal(err)
	}
	bld.LoadDeref(h, 1, 32)

	impl.MetadataRequire(MetadataLiveSSADefs)
	for _, b := range []*Block{loop, exit} {
		if diff := cmp.Diff([]int{n.Index}, indices(b.LiveIn)); diff != "" {
			t.Errorf("live-in(%s) (-want +got):\n%s", b.Name, diff)
		}
	}
	if diff := cmp.Diff([]int{n.Index}, indices(loop.LiveOut)); diff != "" {
		t.Errorf("live-out(loop) (-want +got):\n%s", diff)
	}
}

func indices(defs []*SSADef) []int {
	var out []int
	for _, d := range defs {
		out = append(out, d.Index)
	}
	return out
}

func nameOf(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return b.Name
}
