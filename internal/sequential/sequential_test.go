// Public domain.

package sequential_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/soniakeys/unit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/noise"
	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
	"github.com/soniakeys/saukf/internal/sequential"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// circular returns a near circular LEO mean state.
func circular(t *testing.T) *orbit.State {
	o, err := orbit.Keplerian.MapArrayToOrbit([]float64{7e6, 1e-4, 51.6 * math.Pi / 180, 0.5, 1.2, 0.1},
		orbit.Mean, epoch, orbit.EarthMu, orbit.EME2000)
	require.NoError(t, err)
	return orbit.NewState(o)
}

func builder(t *testing.T, forces ...dsst.ForceModel) *dsst.Builder {
	b, err := dsst.NewBuilder(circular(t), dsst.Mean, 10, forces...)
	require.NoError(t, err)
	return b
}

func j2(t *testing.T) *dsst.ZonalJ2 {
	z, err := dsst.NewZonalJ2(orbit.EarthMu, orbit.EarthJ2, orbit.EarthRadius)
	require.NoError(t, err)
	return z
}

// dynamicNoise has the driver scales squared on the diagonal, and a much
// smaller process noise.
func dynamicNoise(t *testing.T, b *dsst.Builder) *noise.ConstantProcessNoise {
	orb, prop, _ := sequential.Columns(b, nil)
	s := sequential.Scales(orb, prop)
	p0 := make([]float64, len(s))
	q := make([]float64, len(s))
	for i, x := range s {
		p0[i] = x * x
		q[i] = 1e-6 * x * x
	}
	c, err := noise.NewConstantProcessNoise(noise.Diagonal(p0...), noise.Diagonal(q...))
	require.NoError(t, err)
	return c
}

// truth returns osculating states at dates, built the way the filter
// rebuilds them from its reference trajectory.
func truth(t *testing.T, b *dsst.Builder, dates []time.Time) []*orbit.State {
	p, err := b.BuildPropagator()
	require.NoError(t, err)
	c := &sequential.Composer{Type: b.OrbitType(), Angle: b.PositionAngle(), Mu: b.Mu(), Frame: b.Frame()}
	for i := range b.OrbitalParameters().Columns() {
		c.Orbital = append(c.Orbital, i)
	}
	zero := make([]float64, 6)
	var out []*orbit.State
	for _, d := range dates {
		mean, err := p.Propagate(d)
		require.NoError(t, err)
		p.InitializeShortPeriodTerms(mean)
		spt, err := p.ShortPeriodTermsValue(mean)
		require.NoError(t, err)
		arr, err := b.OrbitType().MapOrbitToArray(mean.Orbit(), b.PositionAngle())
		require.NoError(t, err)
		s, err := c.Compose(mean, arr, zero, spt, d)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func schedule(n int, spacing time.Duration) []time.Time {
	d := make([]time.Time, n)
	for i := range d {
		d[i] = epoch.Add(time.Duration(i+1) * spacing)
	}
	return d
}

var station = measure.NewGroundStation("toulouse", unit.AngleFromDeg(43.6), unit.AngleFromDeg(1.44), 150)

// perfect returns range and angle measurements equal to their values on
// the truth states.
func perfect(t *testing.T, states []*orbit.State) []measure.ObservedMeasurement {
	var ms []measure.ObservedMeasurement
	for _, s := range states {
		r0, err := measure.NewRange(station, s.Date(), 0, 1)
		require.NoError(t, err)
		e, err := r0.Estimate(0, 0, []*orbit.State{s})
		require.NoError(t, err)
		r, err := measure.NewRange(station, s.Date(), e.Value[0], 1)
		require.NoError(t, err)

		sig := unit.AngleFromSec(2)
		a0, err := measure.NewRaDec(station, s.Date(), 0, 0, sig, sig)
		require.NoError(t, err)
		e, err = a0.Estimate(0, 0, []*orbit.State{s})
		require.NoError(t, err)
		a, err := measure.NewRaDec(station, s.Date(), unit.Angle(e.Value[0]), unit.Angle(e.Value[1]), sig, sig)
		require.NoError(t, err)
		ms = append(ms, r, a)
	}
	return ms
}

func TestEndToEndZeroOffset(t *testing.T) {
	b := builder(t, j2(t))
	ms := perfect(t, truth(t, b, schedule(10, time.Minute)))
	require.Len(t, ms, 20)

	var statuses []measure.Status
	obs := sequential.ObserverFunc(func(p sequential.Progress) {
		statuses = append(statuses, p.CorrectedMeasurement().Status())
	})
	dyn := dynamicNoise(t, b)
	est, err := sequential.NewEstimator(b, dyn,
		sequential.WithLogger(zaptest.NewLogger(t)),
		sequential.WithObserver(obs))
	require.NoError(t, err)

	p, err := est.ProcessMeasurements(ms)
	require.NoError(t, err)
	require.NotNil(t, p)

	require.Len(t, statuses, len(ms))
	for i, s := range statuses {
		assert.Equal(t, measure.Processed, s, "measurement %d", i)
	}
	m := est.Model()
	assert.Equal(t, len(ms), m.CurrentMeasurementNumber())
	assert.True(t, m.CurrentDate().Equal(ms[len(ms)-1].Date()))

	x := m.Estimate().State
	scales := sequential.Scales(m.EstimatedOrbitalParameters(), m.EstimatedPropagationParameters())
	require.Equal(t, len(scales), x.Len())
	for i, s := range scales {
		assert.InDelta(t, 0, x.AtVec(i)/s, 1e-6, "column %d", i)
	}
	p0, err := dyn.InitialCovarianceMatrix(nil)
	require.NoError(t, err)
	assert.Less(t, mat.Trace(m.PhysicalEstimatedCovariance()), mat.Trace(p0))
}

func TestEndToEndParallel(t *testing.T) {
	run := func(workers int) *mat.VecDense {
		b := builder(t, j2(t))
		ms := perfect(t, truth(t, b, schedule(4, time.Minute)))
		est, err := sequential.NewEstimator(b, dynamicNoise(t, b), sequential.WithParallel(workers))
		require.NoError(t, err)
		_, err = est.ProcessMeasurements(ms)
		require.NoError(t, err)
		return est.Model().Estimate().State
	}
	assert.Equal(t, run(1).RawVector().Data, run(4).RawVector().Data)
}

func TestRejectionKeepsEstimate(t *testing.T) {
	b := builder(t)
	states := truth(t, b, schedule(1, time.Minute))
	r, err := measure.NewRange(station, states[0].Date(), 1e9, 1)
	require.NoError(t, err)
	f, err := measure.NewOutlierFilter(0, 3)
	require.NoError(t, err)
	r.AddModifier(f)

	var seen *measure.EstimatedMeasurement
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b),
		sequential.WithObserver(sequential.ObserverFunc(func(p sequential.Progress) {
			seen = p.CorrectedMeasurement()
		})))
	require.NoError(t, err)
	before := est.Model().Estimate()
	x0 := append([]float64(nil), before.State.RawVector().Data...)
	p0 := mat.NewSymDense(before.Covariance.SymmetricDim(), nil)
	p0.CopySym(before.Covariance)

	_, err = est.ProcessMeasurements([]measure.ObservedMeasurement{r})
	require.NoError(t, err)

	after := est.Model().Estimate()
	assert.Same(t, before, after)
	assert.Equal(t, x0, after.State.RawVector().Data)
	assert.True(t, mat.Equal(p0, after.Covariance))
	require.NotNil(t, seen)
	assert.Equal(t, measure.Rejected, seen.Status())
	assert.Equal(t, 1, est.Model().CurrentMeasurementNumber())
	assert.Same(t, before.State, est.Model().Estimate().State)
}

func TestOutlierSigmaSingleUse(t *testing.T) {
	b := builder(t)
	ms := perfect(t, truth(t, b, schedule(2, time.Minute)))
	policy, err := measure.NewDynamicOutlierFilter(0, 5)
	require.NoError(t, err)
	var ranges []measure.ObservedMeasurement
	for _, m := range ms {
		if r, ok := m.(*measure.Range); ok {
			r.SetOutlierPolicy(policy)
			ranges = append(ranges, r)
		}
	}
	require.Len(t, ranges, 2)

	// Without a sigma the policy leaves no trace, so its name in Applied
	// shows the sigma was set while it ran.
	var between [][]float64
	var statuses []measure.Status
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b),
		sequential.WithObserver(sequential.ObserverFunc(func(p sequential.Progress) {
			between = append(between, policy.Sigma())
			statuses = append(statuses, p.CorrectedMeasurement().Status())
			assert.Contains(t, p.PredictedMeasurement().Applied, policy.Name())
			assert.NotContains(t, p.CorrectedMeasurement().Applied, policy.Name())
		})))
	require.NoError(t, err)
	_, err = est.ProcessMeasurements(ranges)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{nil, nil}, between)
	assert.Equal(t, []measure.Status{measure.Processed, measure.Processed}, statuses)
}

func TestDynamicOutlierRejection(t *testing.T) {
	b := builder(t)
	ms := perfect(t, truth(t, b, schedule(1, time.Minute)))
	good := ms[0].(*measure.Range)
	r, err := measure.NewRange(station, good.Date(), good.Observed()[0]+5e3, 1)
	require.NoError(t, err)
	policy, err := measure.NewDynamicOutlierFilter(0, 3)
	require.NoError(t, err)
	r.SetOutlierPolicy(policy)

	var seen *measure.EstimatedMeasurement
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b),
		sequential.WithObserver(sequential.ObserverFunc(func(p sequential.Progress) {
			seen = p.CorrectedMeasurement()
		})))
	require.NoError(t, err)
	before := est.Model().Estimate()
	x0 := append([]float64(nil), before.State.RawVector().Data...)

	_, err = est.ProcessMeasurements([]measure.ObservedMeasurement{r})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, measure.Rejected, seen.Status())
	assert.Contains(t, seen.Applied, policy.Name())
	assert.Same(t, before, est.Model().Estimate())
	assert.Equal(t, x0, est.Model().Estimate().State.RawVector().Data)
	assert.Nil(t, policy.Sigma())
}

func TestProcessNoiseAdditivity(t *testing.T) {
	b := builder(t, j2(t))
	dyn, err := noise.NewUnivariateProcessNoise(noise.Diagonal(1, 1, 1, 1, 1, 1), orbit.QSW,
		orbit.Equinoctial, orbit.Mean,
		[]noise.Func{
			noise.Polynomial{0, 1e-2}, noise.Polynomial{0, 1e-2}, noise.Polynomial{0, 1e-2},
			noise.Polynomial{0, 1e-5}, noise.Polynomial{0, 1e-5}, noise.Polynomial{0, 1e-5},
		}, nil, nil)
	require.NoError(t, err)
	m, err := sequential.NewModel(b, dyn, nil, nil)
	require.NoError(t, err)

	date := epoch.Add(5 * time.Minute)
	nominal, err := m.ReferencePropagator().Propagate(date)
	require.NoError(t, err)
	require.NoError(t, m.Relinearize(nominal))
	r, err := measure.NewRange(station, date, 1e6, 1)
	require.NoError(t, err)
	d := sequential.Decorate(r, epoch)
	assert.Equal(t, 300., d.Time())

	want, err := dyn.ProcessNoiseMatrix(m.PreviousNominalState(), m.NominalState())
	require.NoError(t, err)
	require.NotZero(t, mat.Trace(want))

	zero := []*mat.VecDense{mat.NewVecDense(6, nil)}
	other := []*mat.VecDense{
		mat.NewVecDense(6, []float64{3, 1e-6, -1e-6, 1e-7, 0, 1e-5}),
		mat.NewVecDense(6, []float64{-3, 0, 0, 0, 1e-7, -1e-5}),
	}
	for _, pts := range [][]*mat.VecDense{zero, other} {
		ev, err := m.Evolution(0, pts, d)
		require.NoError(t, err)
		assert.True(t, mat.Equal(want, ev.ProcessNoise))
		assert.Len(t, ev.PredictedMeasurements, len(pts))
		assert.Equal(t, pts, ev.SigmaPoints)
	}
}

func TestDimensionErrors(t *testing.T) {
	b := builder(t)
	short, err := noise.NewConstantProcessNoise(noise.Diagonal(1, 1, 1, 1, 1), nil)
	require.NoError(t, err)
	_, err = sequential.NewModel(b, short, nil, nil)
	var de *sequential.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 5, de.Requested)
	assert.Equal(t, 6, de.Expected)
	assert.Equal(t, []string{"a", "ex", "ey", "hx", "hy", "LM"}, de.Parameters)

	bias, err := measure.NewBias([]string{"bx", "by", "bz"}, 1, -100, 100)
	require.NoError(t, err)
	meas := param.NewList()
	for _, d := range bias.Parameters() {
		d.SetSelected(true)
		require.NoError(t, meas.Add(d))
	}
	two, err := noise.NewConstantProcessNoise(noise.Diagonal(1, 1), nil)
	require.NoError(t, err)
	_, err = sequential.NewEstimator(b, dynamicNoise(t, b), sequential.WithMeasurementParameters(meas, two))
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "measurement", de.Block)
	assert.Equal(t, 2, de.Requested)
	assert.Equal(t, 3, de.Expected)
	assert.Contains(t, de.Error(), "bx, by, bz")
}

func TestMeasurementBeforeEpoch(t *testing.T) {
	b := builder(t)
	r, err := measure.NewRange(station, epoch.Add(-time.Second), 1e6, 1)
	require.NoError(t, err)
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b))
	require.NoError(t, err)
	_, err = est.ProcessMeasurements([]measure.ObservedMeasurement{r})
	require.ErrorIs(t, err, sequential.ErrMeasurementBeforeEpoch)
	var se *sequential.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 0, se.Index)
	assert.Zero(t, est.Model().CurrentMeasurementNumber())
}

func TestColumnsDeterministic(t *testing.T) {
	columns := func() []string {
		drag, err := dsst.NewAtmosphericDrag(2.2, 4, 3e-12, 400e3, 60e3)
		require.NoError(t, err)
		srp, err := dsst.NewSolarRadiationPressure(1.3, 10)
		require.NoError(t, err)
		for _, d := range append(srp.Parameters(), drag.Parameters()...) {
			d.SetSelected(true)
		}
		b := builder(t, srp, j2(t), drag)
		orb, prop, meas := sequential.Columns(b, nil)
		assert.Equal(t, 6, orb.Len())
		assert.Zero(t, meas.Len())
		for _, c := range prop.Columns() {
			for _, d := range c.Drivers() {
				ref, ok := d.ReferenceDate()
				assert.True(t, ok)
				assert.True(t, ref.Equal(epoch))
			}
		}
		return prop.Names()
	}
	first := columns()
	assert.Equal(t, []string{dsst.DragCoefficient, dsst.ReflectionCoefficient}, first)
	assert.Equal(t, first, columns())
}

func TestComposeIdempotent(t *testing.T) {
	b := builder(t)
	nominal := circular(t).WithMass(500)
	mean, err := b.OrbitType().MapOrbitToArray(nominal.Orbit(), b.PositionAngle())
	require.NoError(t, err)
	c := &sequential.Composer{Type: b.OrbitType(), Angle: b.PositionAngle(), Mu: b.Mu(), Frame: b.Frame(),
		Orbital: []int{0, 1, 2, 3, 4, 5}}
	s, err := c.Compose(nominal, mean, make([]float64, 6), [6]float64{}, epoch)
	require.NoError(t, err)
	got, err := b.OrbitType().MapOrbitToArray(s.Orbit(), b.PositionAngle())
	require.NoError(t, err)
	assert.Equal(t, mean, got)
	assert.Equal(t, 500., s.Mass())

	// a partial selection corrects only its own elements
	c.Orbital = []int{0, 5}
	s, err = c.Compose(nominal, mean, []float64{100, 1e-3}, [6]float64{}, epoch)
	require.NoError(t, err)
	got, err = b.OrbitType().MapOrbitToArray(s.Orbit(), b.PositionAngle())
	require.NoError(t, err)
	assert.Equal(t, mean[0]+100, got[0])
	assert.Equal(t, mean[1:5], got[1:5])
	assert.Equal(t, mean[5]+1e-3, got[5])

	_, err = c.Compose(nominal, []float64{-7e6, 0, 0, 0, 0, 0}, []float64{0, 0}, [6]float64{}, epoch)
	assert.ErrorIs(t, err, orbit.ErrInvalidOrbitState)
}

func TestMeasurementParameters(t *testing.T) {
	b := builder(t)
	states := truth(t, b, schedule(5, time.Minute))
	bias, err := measure.NewBias([]string{"gnss x", "gnss y", "gnss z"}, 1, -100, 100)
	require.NoError(t, err)
	meas := param.NewList()
	for _, d := range bias.Parameters() {
		d.SetSelected(true)
		require.NoError(t, meas.Add(d))
	}
	var ms []measure.ObservedMeasurement
	for _, s := range states {
		p, err := measure.NewPosition(s.Date(), s.Orbit().Position(), 5)
		require.NoError(t, err)
		p.AddModifier(bias)
		ms = append(ms, p)
	}
	mp, err := noise.NewConstantProcessNoise(noise.Diagonal(4, 4, 4), noise.Diagonal(1e-6, 1e-6, 1e-6))
	require.NoError(t, err)
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b), sequential.WithMeasurementParameters(meas, mp))
	require.NoError(t, err)
	m := est.Model()
	assert.Equal(t, 9, m.Len())
	assert.Equal(t, []string{"gnss x", "gnss y", "gnss z"}, m.EstimatedMeasurementParameters().Names())

	_, err = est.ProcessMeasurements(ms)
	require.NoError(t, err)
	x := m.Estimate().State
	for i := 6; i < 9; i++ {
		assert.InDelta(t, 0, x.AtVec(i), 1e-6)
	}
	// correction pushed into the drivers, values restored between evaluations
	for i, d := range bias.Parameters() {
		assert.InDelta(t, x.AtVec(6+i), d.Value(), 1e-12)
	}
	phys := m.PhysicalEstimatedState()
	require.Equal(t, 9, phys.Len())
	for i, d := range bias.Parameters() {
		assert.Equal(t, d.Value(), phys.AtVec(6+i))
	}
	assert.NotNil(t, m.PhysicalKalmanGain())
	assert.NotNil(t, m.PhysicalInnovationCovariance())
}

func TestPhysicalStateAfterCommit(t *testing.T) {
	b := builder(t)
	states := truth(t, b, schedule(5, time.Minute))
	var ms []measure.ObservedMeasurement
	for _, s := range states {
		p := s.Orbit().Position()
		p.X += 50
		fix, err := measure.NewPosition(s.Date(), p, 5)
		require.NoError(t, err)
		ms = append(ms, fix)
	}
	var last []float64
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b),
		sequential.WithObserver(sequential.ObserverFunc(func(p sequential.Progress) {
			last = append([]float64(nil), p.PhysicalEstimatedState().RawVector().Data...)
		})))
	require.NoError(t, err)
	_, err = est.ProcessMeasurements(ms)
	require.NoError(t, err)

	m := est.Model()
	x := m.Estimate().State
	require.Greater(t, math.Abs(x.AtVec(0)), 1e-3)
	cols := m.EstimatedOrbitalParameters().Columns()
	phys := m.PhysicalEstimatedState()
	for i, c := range cols {
		assert.Equal(t, c.Value(), phys.AtVec(i), "column %d", i)
		assert.InDelta(t, last[i], phys.AtVec(i), 1e-6*math.Max(1, math.Abs(last[i])), "column %d", i)
	}

	// committing twice leaves the drivers alone
	values := make([]float64, len(cols))
	for i, c := range cols {
		values[i] = c.Value()
	}
	m.UpdateParameters()
	for i, c := range cols {
		assert.Equal(t, values[i], c.Value(), "column %d", i)
	}
}

func TestLoggingObserver(t *testing.T) {
	b := builder(t)
	ms := perfect(t, truth(t, b, schedule(1, time.Minute)))
	core, logs := observer.New(zap.InfoLevel)
	est, err := sequential.NewEstimator(b, dynamicNoise(t, b),
		sequential.WithObserver(sequential.LoggingObserver{Log: zap.New(core)}))
	require.NoError(t, err)
	_, err = est.ProcessMeasurements(ms)
	require.NoError(t, err)
	assert.Equal(t, 2, logs.FilterMessage("evaluation").Len())
	for _, e := range logs.All() {
		assert.Equal(t, "PROCESSED", e.ContextMap()["status"])
	}
}
