package nirload

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

// deref builds the chain for a path such as "lights[i].pos" or "m[2][j]".
// Locals shadow globals. Index operands are resolved with value.
func (fl *fnLoader) deref(path string) (nir.DerefHandle, error) {
	p := &pathScanner{src: path}
	root := p.ident()
	if root == "" {
		return nir.NoDeref, fmt.Errorf("deref %q: expected variable name", path)
	}
	v, ok := fl.lookupVar(root)
	if !ok {
		return nir.NoDeref, fmt.Errorf("deref %q: unknown variable %s", path, root)
	}
	h := fl.impl.NewVarDeref(v)

	for !p.done() {
		var err error
		switch p.next() {
		case '[':
			idx := strings.TrimSpace(p.until(']'))
			if !p.accept(']') {
				return nir.NoDeref, fmt.Errorf("deref %q: unterminated index", path)
			}
			var def *nir.SSADef
			if def, err = fl.value(idx); err != nil {
				return nir.NoDeref, fmt.Errorf("deref %q: %w", path, err)
			}
			h, err = fl.impl.NewArrayDeref(h, nir.SSASrc(def))
		case '.':
			name := p.ident()
			t := fl.impl.Deref(h).Type
			i := gtypes.FieldIndex(t, name)
			if i < 0 {
				return nir.NoDeref, fmt.Errorf("deref %q: %s has no field %q", path, t, name)
			}
			h, err = fl.impl.NewStructDeref(h, i)
		default:
			return nir.NoDeref, fmt.Errorf("deref %q: unexpected %q at offset %d", path, p.src[p.pos-1], p.pos-1)
		}
		if err != nil {
			return nir.NoDeref, fmt.Errorf("deref %q: %w", path, err)
		}
	}
	return h, nil
}

type pathScanner struct {
	src string
	pos int
}

func (p *pathScanner) done() bool { return p.pos >= len(p.src) }

func (p *pathScanner) next() byte {
	c := p.src[p.pos]
	p.pos++
	return c
}

func (p *pathScanner) accept(c byte) bool {
	if !p.done() && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *pathScanner) until(c byte) string {
	start := p.pos
	for !p.done() && p.src[p.pos] != c {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *pathScanner) ident() string {
	start := p.pos
	for !p.done() {
		c := p.src[p.pos]
		if c != '_' && !('a' <= c && c <= 'z') && !('A' <= c && c <= 'Z') && !(p.pos > start && '0' <= c && c <= '9') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}
