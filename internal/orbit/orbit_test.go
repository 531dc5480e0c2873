// Public domain.

package orbit_test

import (
	"math"
	"testing"
	"time"

	"github.com/soniakeys/coord"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/orbit"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		typ   orbit.Type
		angle orbit.PositionAngle
		arr   []float64
	}{
		{orbit.Keplerian, orbit.Mean, []float64{7e6, 0.1, 0.5, 1, 2, 3}},
		{orbit.Keplerian, orbit.True, []float64{8e6, 0.3, 2.5, 5, 0.2, 0.1}},
		{orbit.Circular, orbit.Eccentric, []float64{7e6, 0.01, -0.02, 1.2, 4, 5}},
		{orbit.Equinoctial, orbit.Mean, []float64{7e6, 0.001, 0.002, 0.1, -0.05, 1}},
		{orbit.Equinoctial, orbit.True, []float64{4.2e7, -0.1, 0.05, 0, 0, 6}},
		{orbit.Cartesian, orbit.Mean, []float64{7e6, 1e5, -2e5, 10, 7500, 300}},
	}
	for _, c := range cases {
		o, err := c.typ.MapArrayToOrbit(c.arr, c.angle, epoch, orbit.EarthMu, orbit.EME2000)
		require.NoError(t, err, "%v %v", c.typ, c.arr)
		exact, err := c.typ.MapOrbitToArray(o, c.angle)
		require.NoError(t, err)
		assert.Equal(t, c.arr, exact)

		// through Cartesian, so the elements are recomputed
		pv, err := orbit.Cartesian.MapOrbitToArray(o, c.angle)
		require.NoError(t, err)
		o, err = orbit.Cartesian.MapArrayToOrbit(pv, c.angle, epoch, orbit.EarthMu, orbit.EME2000)
		require.NoError(t, err)
		got, err := c.typ.MapOrbitToArray(o, c.angle)
		require.NoError(t, err)
		for i := range got {
			assert.InDelta(t, c.arr[i], got[i], 1e-9*math.Max(1, math.Abs(c.arr[i])),
				"%v element %d", c.typ, i)
		}
	}
}

func TestCircularEquatorial(t *testing.T) {
	// e = 0, i = 0: node and perigee collapse onto the x axis.
	r := 7e6
	v := math.Sqrt(orbit.EarthMu / r)
	o, err := orbit.NewCartesianOrbit(coord.Cart{Y: r}, coord.Cart{X: -v},
		orbit.EME2000, epoch, orbit.EarthMu)
	require.NoError(t, err)
	k, err := orbit.Keplerian.MapOrbitToArray(o, orbit.True)
	require.NoError(t, err)
	assert.InDelta(t, r, k[0], 1e-3)
	assert.InDelta(t, 0, k[1], 1e-12)
	assert.InDelta(t, 0, k[3], 1e-12)
	assert.InDelta(t, 0, k[4], 1e-12)
	assert.InDelta(t, math.Pi/2, k[5], 1e-12)
}

func TestInvalidOrbitState(t *testing.T) {
	_, err := orbit.Keplerian.MapArrayToOrbit([]float64{7e6, 1.2, 0, 0, 0, 0},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.ErrorIs(t, err, orbit.ErrInvalidOrbitState)

	_, err = orbit.Equinoctial.MapArrayToOrbit([]float64{-7e6, 0, 0, 0, 0, 0},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.ErrorIs(t, err, orbit.ErrInvalidOrbitState)

	_, err = orbit.Equinoctial.MapArrayToOrbit([]float64{7e6, math.NaN(), 0, 0, 0, 0},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.ErrorIs(t, err, orbit.ErrInvalidOrbitState)

	// escape velocity
	o, err := orbit.NewCartesianOrbit(coord.Cart{X: 7e6}, coord.Cart{Y: 2e4},
		orbit.EME2000, epoch, orbit.EarthMu)
	require.NoError(t, err)
	_, err = orbit.Equinoctial.MapOrbitToArray(o, orbit.Mean)
	require.ErrorIs(t, err, orbit.ErrInvalidOrbitState)

	_, err = orbit.NewCartesianOrbit(coord.Cart{X: 7e6}, coord.Cart{Y: 7e3},
		orbit.Frame{}, epoch, orbit.EarthMu)
	require.ErrorIs(t, err, orbit.ErrFrameUnset)
}

func TestShiftedFullPeriod(t *testing.T) {
	o, err := orbit.Keplerian.MapArrayToOrbit([]float64{7e6, 0.05, 0.9, 1, 2, 0.5},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	s, err := o.Shifted(o.KeplerianPeriod())
	require.NoError(t, err)
	p0, p1 := o.Position(), s.Position()
	assert.InDelta(t, p0.X, p1.X, 1e-2)
	assert.InDelta(t, p0.Y, p1.Y, 1e-2)
	assert.InDelta(t, p0.Z, p1.Z, 1e-2)
	assert.WithinDuration(t, epoch.Add(time.Duration(o.KeplerianPeriod()*1e9)), s.Epoch(), time.Microsecond)
}

func TestLOFOrthonormal(t *testing.T) {
	o, err := orbit.Keplerian.MapArrayToOrbit([]float64{7e6, 0.1, 0.5, 1, 2, 3},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	for _, l := range []orbit.LOFType{orbit.TNW, orbit.QSW} {
		r := l.RotationToInertial(o)
		var rtr mat.Dense
		rtr.Mul(r.T(), r)
		assert.True(t, mat.EqualApprox(&rtr, eye(3), 1e-12), "%v", l)
		assert.InDelta(t, 1, mat.Det(r), 1e-12, "%v right handed", l)
	}
	// first QSW axis is radial
	q := orbit.QSW.RotationToInertial(o)
	p := o.Position()
	r := math.Sqrt(p.Square())
	assert.InDelta(t, p.X/r, q.At(0, 0), 1e-12)
	assert.InDelta(t, p.Z/r, q.At(2, 0), 1e-12)
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func TestJacobianLinearizes(t *testing.T) {
	o, err := orbit.Equinoctial.MapArrayToOrbit([]float64{7e6, 0.001, 0.002, 0.1, -0.05, 1},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	j, err := orbit.Equinoctial.JacobianWrtCartesian(o, orbit.Mean)
	require.NoError(t, err)

	delta := []float64{1, -2, 0.5, 1e-3, 2e-3, -1e-3}
	pv, err := orbit.Cartesian.MapOrbitToArray(o, orbit.Mean)
	require.NoError(t, err)
	for i := range pv {
		pv[i] += delta[i]
	}
	moved, err := orbit.Cartesian.MapArrayToOrbit(pv, orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	e0, err := orbit.Equinoctial.MapOrbitToArray(o, orbit.Mean)
	require.NoError(t, err)
	e1, err := orbit.Equinoctial.MapOrbitToArray(moved, orbit.Mean)
	require.NoError(t, err)

	var lin mat.VecDense
	lin.MulVec(j, mat.NewVecDense(6, delta))
	for i := 0; i < 6; i++ {
		d := e1[i] - e0[i]
		assert.InDelta(t, d, lin.AtVec(i), 2e-3*math.Abs(d)+1e-10, "element %d", i)
	}
}

func TestStateImmutable(t *testing.T) {
	o, err := orbit.NewCartesianOrbit(coord.Cart{X: 7e6}, coord.Cart{Y: 7.5e3},
		orbit.EME2000, epoch, orbit.EarthMu)
	require.NoError(t, err)
	s0 := orbit.NewState(o)
	s1 := s0.WithMass(500).WithAdditional("cr", []float64{1.5})
	assert.Equal(t, orbit.DefaultMass, s0.Mass())
	assert.Equal(t, 500., s1.Mass())
	_, ok := s0.Additional("cr")
	assert.False(t, ok)
	v, ok := s1.Additional("cr")
	require.True(t, ok)
	v[0] = 9
	v, _ = s1.Additional("cr")
	assert.Equal(t, []float64{1.5}, v)
	assert.Equal(t, epoch, s1.Date())
}
