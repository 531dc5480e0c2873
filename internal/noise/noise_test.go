// Public domain.

package noise_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/noise"
	"github.com/soniakeys/saukf/internal/orbit"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func states(t *testing.T, dt time.Duration) (prev, cur *orbit.State) {
	o, err := orbit.Keplerian.MapArrayToOrbit([]float64{7e6, 0.01, 0.9, 0.3, 1.1, 0.2},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	o2, err := o.Shifted(dt.Seconds())
	require.NoError(t, err)
	return orbit.NewState(o), orbit.NewState(o2)
}

func TestPolynomial(t *testing.T) {
	p := noise.Polynomial{1, 2, 3}
	assert.Equal(t, 1., p.Value(0))
	assert.Equal(t, 6., p.Value(1))
	assert.Equal(t, 17., p.Value(2))
	assert.Equal(t, 0., noise.Polynomial(nil).Value(5))
}

func TestConstantProcessNoise(t *testing.T) {
	c, err := noise.NewConstantProcessNoise(noise.Diagonal(1, 2), nil)
	require.NoError(t, err)
	p, err := c.ProcessNoiseMatrix(nil, nil)
	require.NoError(t, err)
	p.SetSym(0, 0, 99)
	again, err := c.ProcessNoiseMatrix(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1., again.At(0, 0))

	_, err = noise.NewConstantProcessNoise(noise.Diagonal(1, 2), noise.Diagonal(1))
	assert.Error(t, err)
}

func lofFuncs(pos, vel float64) []noise.Func {
	return []noise.Func{
		noise.Polynomial{0, pos}, noise.Polynomial{0, 2 * pos}, noise.Polynomial{0, 3 * pos},
		noise.Polynomial{0, vel}, noise.Polynomial{0, vel}, noise.Polynomial{0, vel},
	}
}

func TestUnivariateDimensions(t *testing.T) {
	_, err := noise.NewUnivariateProcessNoise(noise.Diagonal(1, 1, 1, 1, 1, 1), orbit.QSW,
		orbit.Equinoctial, orbit.Mean, lofFuncs(1, 1), []noise.Func{noise.Polynomial{1}}, nil)
	assert.Error(t, err)
	_, err = noise.NewUnivariateProcessNoise(noise.Diagonal(1, 1, 1, 1, 1, 1), orbit.QSW,
		orbit.Equinoctial, orbit.Mean, lofFuncs(1, 1)[:5], nil, nil)
	assert.Error(t, err)
}

func TestUnivariateCartesianTrace(t *testing.T) {
	prev, cur := states(t, 100*time.Second)
	init := noise.Diagonal(1, 1, 1, 1, 1, 1, 1, 1)
	u, err := noise.NewUnivariateProcessNoise(init, orbit.TNW, orbit.Cartesian, orbit.Mean,
		lofFuncs(1e-2, 1e-5),
		[]noise.Func{noise.Polynomial{0, 1e-3}},
		[]noise.Func{noise.Polynomial{0.5}})
	require.NoError(t, err)

	q, err := u.ProcessNoiseMatrix(prev, cur)
	require.NoError(t, err)
	require.Equal(t, 8, q.SymmetricDim())

	// rotation keeps the trace of each block
	var pos, vel float64
	for i := 0; i < 3; i++ {
		pos += q.At(i, i)
		vel += q.At(3+i, 3+i)
	}
	assert.InDelta(t, 1+4+9, pos, 1e-9)
	assert.InDelta(t, 3*1e-6, vel, 1e-15)
	assert.InDelta(t, 1e-2, q.At(6, 6), 1e-15)
	assert.Equal(t, 0.25, q.At(7, 7))
	assert.Zero(t, q.At(6, 0))

	// noise grows from zero
	q0, err := u.ProcessNoiseMatrix(cur, cur)
	require.NoError(t, err)
	assert.Zero(t, q0.At(0, 0))
}

func TestUnivariateEquinoctialPSD(t *testing.T) {
	prev, cur := states(t, 60*time.Second)
	u, err := noise.NewUnivariateProcessNoise(noise.Diagonal(1, 1, 1, 1, 1, 1), orbit.QSW,
		orbit.Equinoctial, orbit.Mean, lofFuncs(1e-3, 1e-6), nil, nil)
	require.NoError(t, err)
	q, err := u.ProcessNoiseMatrix(prev, cur)
	require.NoError(t, err)

	var eig mat.EigenSym
	require.True(t, eig.Factorize(q, false))
	vals := eig.Values(nil)
	max := vals[len(vals)-1]
	require.Greater(t, max, 0.)
	for _, v := range vals {
		assert.GreaterOrEqual(t, v, -1e-12*max)
	}
	for i := 0; i < 6; i++ {
		assert.Greater(t, q.At(i, i), 0.)
	}
}
