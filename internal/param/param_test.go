// Public domain.

package param_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soniakeys/saukf/internal/param"
)

func TestDriverClipping(t *testing.T) {
	d, err := param.NewDriver("drag coefficient", 2, 1, 1, 3)
	require.NoError(t, err)
	for _, delta := range []float64{-1e9, -5, -1.0000001, 1.0000001, 7, 1e9} {
		d.SetValue(2 + delta)
		want := 3.
		if delta < 0 {
			want = 1
		}
		assert.Equal(t, want, d.Value(), "delta %g", delta)
	}
	d.SetValue(2.5)
	assert.Equal(t, 2.5, d.Value())
	d.SetMax(2)
	assert.Equal(t, 2., d.Value())
}

func TestDriverScale(t *testing.T) {
	_, err := param.NewDriver("x", 0, 0, -1, 1)
	require.ErrorIs(t, err, param.ErrInvalidScale)
	_, err = param.NewDriver("x", 0, math.NaN(), -1, 1)
	require.ErrorIs(t, err, param.ErrInvalidScale)

	d, err := param.NewDriver("x", 10, 0.5, math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	d.SetValue(11)
	assert.Equal(t, 2., d.NormalizedValue())
	d.SetNormalizedValue(-4)
	assert.Equal(t, 8., d.Value())
}

func TestDriverReferenceDate(t *testing.T) {
	d, err := param.NewDriver("x", 0, 1, -1, 1)
	require.NoError(t, err)
	_, err = d.RequireReferenceDate()
	require.ErrorIs(t, err, param.ErrReferenceDateUnset)

	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, d.DefaultReferenceDate(t0))
	assert.False(t, d.DefaultReferenceDate(t0.Add(time.Hour)))
	got, err := d.RequireReferenceDate()
	require.NoError(t, err)
	assert.Equal(t, t0, got)
}

func newSelected(t *testing.T, name string, v float64) *param.Driver {
	d, err := param.NewDriver(name, v, 1, -100, 100)
	require.NoError(t, err)
	d.SetSelected(true)
	return d
}

func TestListMerge(t *testing.T) {
	l := param.NewList()
	a1 := newSelected(t, "bias", 1)
	a2 := newSelected(t, "bias", 5)
	b := newSelected(t, "scale", 2)
	require.NoError(t, l.AddAll(a1, b, a2))
	require.Equal(t, 2, l.Len())
	assert.Equal(t, 2, l.NbParams())

	c := l.Find("bias")
	require.NotNil(t, c)
	assert.Len(t, c.Drivers(), 2)
	// merged driver took the column value
	assert.Equal(t, 1., a2.Value())

	c.SetValue(7)
	assert.Equal(t, 7., a1.Value())
	assert.Equal(t, 7., a2.Value())

	// adding the same driver again is a no-op
	require.NoError(t, l.Add(a1))
	assert.Len(t, c.Drivers(), 2)
}

func TestListSelectionConflict(t *testing.T) {
	l := param.NewList()
	require.NoError(t, l.Add(newSelected(t, "bias", 0)))
	off, err := param.NewDriver("bias", 0, 1, -1, 1)
	require.NoError(t, err)
	require.ErrorIs(t, l.Add(off), param.ErrSelectionConflict)
}

func TestListSortDeterministic(t *testing.T) {
	names := []string{"reflection coefficient", "drag coefficient", "Cr", "mu", "drag coefficient"}
	build := func() *param.List {
		l := param.NewList()
		for _, n := range names {
			require.NoError(t, l.Add(newSelected(t, n, 0)))
		}
		off, err := param.NewDriver("aaa", 0, 1, -1, 1)
		require.NoError(t, err)
		require.NoError(t, l.Add(off))
		s := l.Selected()
		s.Sort()
		return s
	}
	first := build().Names()
	second := build().Names()
	assert.Equal(t, []string{"Cr", "drag coefficient", "mu", "reflection coefficient"}, first)
	assert.Equal(t, first, second)
}

func ExampleList_Sort() {
	l := param.NewList()
	for _, n := range []string{"zeta", "alpha", "mid"} {
		d, _ := param.NewDriver(n, 0, 1, -1, 1)
		l.Add(d)
	}
	l.Sort()
	fmt.Println(l)
	fmt.Println(l.Find("mid").Name())
	// Output:
	// [alpha, mid, zeta]
	// mid
}
