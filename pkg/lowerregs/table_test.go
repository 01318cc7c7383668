package lowerregs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raymyers/ralph-nir/pkg/gtypes"
	"github.com/raymyers/ralph-nir/pkg/nir"
)

func TestIdentityIgnoresArrayIndices(t *testing.T) {
	light := gtypes.Struct{Name: "Light", Fields: []gtypes.Field{
		{Name: "pos", Type: gtypes.Vec(gtypes.Float, 3)},
		{Name: "weight", Type: gtypes.FloatType()},
	}}
	f := newFixture()
	lights := f.local("lights", gtypes.ArrayOf(light, 4))
	i := f.dynamic("i")

	constPos := f.path(t, lights, 1, field(0))
	dynPos := f.path(t, lights, i, field(0))
	weight := f.path(t, lights, 1, field(1))

	h1, err := hashDeref(f.impl, constPos)
	require.NoError(t, err)
	h2, err := hashDeref(f.impl, dynPos)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	eq, err := derefsEqual(f.impl, constPos, dynPos)
	require.NoError(t, err)
	require.True(t, eq)

	eq, err = derefsEqual(f.impl, constPos, weight)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestIdentityDepthMatters(t *testing.T) {
	f := newFixture()
	m := f.local("m", gtypes.ArrayOf(gtypes.ArrayOf(gtypes.FloatType(), 4), 3))
	whole := f.impl.NewVarDeref(m)
	row := f.path(t, m, 1)

	eq, err := derefsEqual(f.impl, whole, row)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestIdentityRejectsCast(t *testing.T) {
	f := newFixture()
	a := f.local("a", gtypes.Vec4())
	cast := f.impl.NewCastDeref(f.path(t, a), gtypes.Vec4(), nir.ModeLocal)
	raw := f.impl.NewCastDeref(nir.NoDeref, gtypes.Vec4(), nir.ModeLocal)

	_, err := hashDeref(f.impl, cast)
	require.ErrorIs(t, err, ErrMalformedDeref)
	_, err = hashDeref(f.impl, raw)
	require.ErrorIs(t, err, ErrMalformedDeref)
	_, err = derefsEqual(f.impl, cast, cast)
	require.ErrorIs(t, err, ErrMalformedDeref)
}

func TestRegisterTable(t *testing.T) {
	f := newFixture()
	a := f.local("a", gtypes.ArrayOf(gtypes.ArrayOf(gtypes.Vec(gtypes.Int, 2), 4), 3))
	b := f.local("b", gtypes.Vec(gtypes.Double, 3))
	i := f.dynamic("i")

	table := NewRegisterTable(f.impl)
	r1, err := table.LookupOrCreate(f.path(t, a, 0, 1))
	require.NoError(t, err)
	r2, err := table.LookupOrCreate(f.path(t, a, i, 3))
	require.NoError(t, err)
	r3, err := table.LookupOrCreate(f.path(t, b))
	require.NoError(t, err)

	require.Same(t, r1, r2)
	require.NotSame(t, r1, r3)
	require.Equal(t, 2, table.Len())
	require.Equal(t, nir.Register{Index: 0, NumComponents: 2, BitSize: 32, NumArrayElems: 12}, *r1)
	require.Equal(t, nir.Register{Index: 1, NumComponents: 3, BitSize: 64}, *r3)
	require.Equal(t, []*nir.Register{r1, r3}, f.impl.Registers)
}
