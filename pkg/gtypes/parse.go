package gtypes

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse parses a type written the way String prints it: a base name
// ("float", "uint", "vec4", "ivec2", or a struct name from structs)
// followed by zero or more "[N]" dimensions, outermost first.
func Parse(s string, structs map[string]Type) (Type, error) {
	s = strings.TrimSpace(s)
	name := s
	var dims []int
	if i := strings.IndexByte(s, '['); i >= 0 {
		name = strings.TrimSpace(s[:i])
		rest := s[i:]
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("type %q: unexpected %q", s, rest)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("type %q: missing ']'", s)
			}
			n, err := strconv.Atoi(strings.TrimSpace(rest[1:end]))
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("type %q: bad array length %q", s, rest[1:end])
			}
			dims = append(dims, n)
			rest = strings.TrimSpace(rest[end+1:])
		}
	}

	base, err := parseBase(name, structs)
	if err != nil {
		return nil, err
	}

	// Wrap innermost dimension first
	t := base
	for i := len(dims) - 1; i >= 0; i-- {
		t = Array{Elem: t, Length: dims[i]}
	}
	return t, nil
}

func parseBase(name string, structs map[string]Type) (Type, error) {
	for i, n := range baseNames {
		if name == n {
			return Scalar{Base: BaseType(i)}, nil
		}
	}
	// Longest prefixes first so "i64vec" is not taken for "ivec"
	for _, b := range []BaseType{Int64, Uint64, Double, Int, Uint, Bool, Float} {
		prefix := vecPrefixes[b]
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix):])
		if err != nil {
			continue
		}
		if n < 2 || n > 4 {
			return nil, fmt.Errorf("type %q: vectors have 2 to 4 components", name)
		}
		return Vector{Base: b, Components: n}, nil
	}
	if t, ok := structs[strings.TrimPrefix(name, "struct ")]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}
