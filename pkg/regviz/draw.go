// Package regviz draws the register accesses of a lowered function as an
// SVG: one row per instruction, one column per register. Blocks are laid
// out in dominator-tree preorder with unreachable blocks last. Reads are
// filled dots, writes are hollow ones, and each dot is labelled with the
// slot.
package regviz

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/raymyers/ralph-nir/pkg/nir"
)

const (
	rowHeight = 24
	top       = 100
	charWidth = 9
	regWidth  = 72
)

type access struct {
	row   int
	ref   *nir.RegRef
	write bool
}

// errWriter keeps the first write error; svgo does not report them
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

// blockOrder returns every block of impl, dominators before the blocks
// they dominate.
func blockOrder(impl *nir.Impl) []*nir.Block {
	impl.MetadataRequire(nir.MetadataDominance)
	order := impl.DominancePreorder()
	seen := make(map[*nir.Block]bool, len(order))
	for _, b := range order {
		seen[b] = true
	}
	for _, b := range impl.Blocks {
		if !seen[b] {
			order = append(order, b)
		}
	}
	return order
}

// Draw writes the register access chart of impl to w. It computes
// dominance on impl if needed.
func Draw(w io.Writer, impl *nir.Impl) error {
	var (
		rows   []string
		marks  = make(map[*nir.Register][]access)
		maxi   int
		blocks = blockOrder(impl)
	)
	for _, b := range blocks {
		rows = append(rows, "")
		for _, instr := range b.Instrs {
			row := len(rows)
			for _, s := range instr.Srcs() {
				if s.Reg != nil {
					marks[s.Reg.Reg] = append(marks[s.Reg.Reg], access{row: row, ref: s.Reg})
				}
			}
			if dst := nir.RegDest(instr); dst != nil {
				marks[dst.Reg] = append(marks[dst.Reg], access{row: row, ref: dst, write: true})
			}
			s := nir.FormatInstr(impl, instr)
			if len(s) > maxi {
				maxi = len(s)
			}
			rows = append(rows, s)
		}
	}

	insw := maxi*charWidth + 120
	width := len(impl.Registers)*regWidth + insw + 100
	height := len(rows)*rowHeight + top

	ew := &errWriter{w: w}
	p := svg.New(ew)
	p.Start(width, height)
	p.Rect(0, 0, width, height, "fill:white")

	row := 0
	for _, b := range blocks {
		y := top + row*rowHeight
		name := b.Name
		if name == "" {
			name = fmt.Sprintf("b%d", b.Index)
		}
		p.Text(16, y, name, "fill:gray;font-size:16px;font-family:monospace")
		p.Line(10, y-16, insw+5, y-16, "stroke:lightgray")
		row++
		for range b.Instrs {
			y := top + row*rowHeight
			p.Text(insw, y, rows[row], "fill:black;font-size:16px;font-family:monospace;text-anchor:end")
			p.Line(insw+10, y-5, width-50, y-5, "stroke:gray")
			row++
		}
	}

	for i, reg := range impl.Registers {
		x := insw + i*regWidth + 50
		p.Text(x, 70, nir.FormatRegDecl(reg), "fill:black;font-size:12px;font-family:monospace;text-anchor:middle")
		ms := marks[reg]
		if len(ms) == 0 {
			continue
		}
		first, last := ms[0].row, ms[len(ms)-1].row
		p.Line(x, top+first*rowHeight-5, x, top+last*rowHeight-5, "stroke:black;stroke-width:3")
		for _, m := range ms {
			y := top + m.row*rowHeight - 5
			if m.write {
				p.Circle(x, y, 4, "fill:white;stroke:black;stroke-width:2")
			} else {
				p.Circle(x, y, 4, "fill:black;stroke:black;stroke-width:2")
			}
			p.Text(x+8, y+4, slot(m.ref), "fill:gray;font-size:10px;font-family:monospace")
		}
	}
	p.End()
	return ew.err
}

func slot(ref *nir.RegRef) string {
	switch {
	case ref.Indirect == nil:
		return fmt.Sprintf("%d", ref.BaseOffset)
	case ref.BaseOffset == 0:
		return fmt.Sprintf("ssa_%d", ref.Indirect.Index)
	}
	return fmt.Sprintf("%d+ssa_%d", ref.BaseOffset, ref.Indirect.Index)
}
