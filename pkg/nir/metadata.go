package nir

import (
	"sort"

	"github.com/oleiade/lane"
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"
)

// Metadata is a set of analyses cached on an Impl
type Metadata uint

const (
	MetadataBlockIndex Metadata = 1 << iota
	MetadataDominance
	MetadataLiveSSADefs

	MetadataNone Metadata = 0
	MetadataAll           = MetadataBlockIndex | MetadataDominance | MetadataLiveSSADefs
)

// ValidMetadata returns the analyses currently valid on impl.
func (impl *Impl) ValidMetadata() Metadata {
	return impl.valid
}

// MetadataRequire computes any of the requested analyses that are not
// valid. Every analysis implies block indices.
func (impl *Impl) MetadataRequire(required Metadata) {
	missing := required &^ impl.valid
	if missing != 0 && impl.valid&MetadataBlockIndex == 0 {
		impl.indexBlocks()
		impl.valid |= MetadataBlockIndex
	}
	if missing&MetadataDominance != 0 {
		impl.computeDominance()
		impl.valid |= MetadataDominance
	}
	if missing&MetadataLiveSSADefs != 0 {
		impl.computeLiveness()
		impl.valid |= MetadataLiveSSADefs
	}
}

// MetadataPreserve declares that a pass kept the listed analyses intact;
// everything else is invalidated.
func (impl *Impl) MetadataPreserve(preserved Metadata) {
	impl.valid &= preserved
}

func (impl *Impl) indexBlocks() {
	for i, b := range impl.Blocks {
		b.Index = i
	}
}

// computeDominance fills IDom and DomChildren with Lengauer-Tarjan over the
// reachable part of the CFG. Unreachable blocks get a nil IDom.
func (impl *Impl) computeDominance() {
	for _, b := range impl.Blocks {
		b.IDom = nil
		b.DomChildren = nil
	}
	if len(impl.Blocks) == 0 {
		return
	}

	g := simple.NewDirectedGraph()
	for _, b := range impl.Blocks {
		g.AddNode(simple.Node(b.Index))
	}
	for _, b := range impl.Blocks {
		for _, s := range b.Succs {
			// self loops never change dominance and simple graphs reject them
			if s == b || g.HasEdgeFromTo(int64(b.Index), int64(s.Index)) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(b.Index), simple.Node(s.Index)))
		}
	}

	entry := impl.Blocks[0]
	tree := flow.Dominators(simple.Node(entry.Index), g)
	for _, b := range impl.Blocks {
		if b == entry {
			continue
		}
		if d := tree.DominatorOf(int64(b.Index)); d != nil {
			b.IDom = impl.Blocks[d.ID()]
		}
	}
	// children in block order keeps the tree walk deterministic
	for _, b := range impl.Blocks {
		if b.IDom != nil {
			b.IDom.DomChildren = append(b.IDom.DomChildren, b)
		}
	}
}

// DominancePreorder returns the reachable blocks in dominator-tree preorder.
// Dominance metadata must be valid.
func (impl *Impl) DominancePreorder() []*Block {
	if len(impl.Blocks) == 0 {
		return nil
	}
	var order []*Block
	s := lane.NewStack()
	s.Push(impl.Blocks[0])
	for !s.Empty() {
		b := s.Pop().(*Block)
		order = append(order, b)
		// push in reverse so the first child is visited first
		for i := len(b.DomChildren) - 1; i >= 0; i-- {
			s.Push(b.DomChildren[i])
		}
	}
	return order
}

type defSet map[*SSADef]bool

// computeLiveness fills LiveIn and LiveOut with a backward dataflow over the
// CFG. The IR has no phis, so a value is live into a block when the block
// reads it before defining it, or when it is live out and not defined there.
func (impl *Impl) computeLiveness() {
	n := len(impl.Blocks)
	defs := make([]defSet, n)
	in := make([]defSet, n)
	out := make([]defSet, n)
	for i, b := range impl.Blocks {
		defs[i], in[i], out[i] = defSet{}, defSet{}, defSet{}
		for _, instr := range b.Instrs {
			impl.forEachUse(instr, func(d *SSADef) {
				if !defs[i][d] {
					in[i][d] = true
				}
			})
			if d := InstrDef(instr); d != nil {
				defs[i][d] = true
			}
		}
	}

	queued := make([]bool, n)
	q := lane.NewQueue()
	for i := n - 1; i >= 0; i-- {
		q.Enqueue(impl.Blocks[i])
		queued[i] = true
	}
	for !q.Empty() {
		b := q.Dequeue().(*Block)
		queued[b.Index] = false
		grew := false
		for _, s := range b.Succs {
			for d := range in[s.Index] {
				if out[b.Index][d] {
					continue
				}
				out[b.Index][d] = true
				if !defs[b.Index][d] && !in[b.Index][d] {
					in[b.Index][d] = true
					grew = true
				}
			}
		}
		if !grew {
			continue
		}
		for _, p := range impl.Preds(b) {
			if !queued[p.Index] {
				q.Enqueue(p)
				queued[p.Index] = true
			}
		}
	}

	for i, b := range impl.Blocks {
		b.LiveIn = in[i].sorted()
		b.LiveOut = out[i].sorted()
	}
}

func (s defSet) sorted() []*SSADef {
	if len(s) == 0 {
		return nil
	}
	list := make([]*SSADef, 0, len(s))
	for d := range s {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Index < list[j].Index })
	return list
}
