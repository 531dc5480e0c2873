// Public domain.

// Package sequential estimates orbits and dynamic parameters with an
// unscented Kalman filter on top of the semi-analytical propagator.
//
// The filter state is a small correction to a nominal mean trajectory.
// Each evaluation rebuilds the osculating state as nominal mean elements
// plus correction plus short-period terms.  The nominal trajectory and
// its short-period terms are replaced together, by Relinearize, between
// measurements.
package sequential

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/noise"
	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
	"github.com/soniakeys/saukf/internal/ukf"
)

// nominal is the re-linearization context: the mean state the filter
// corrects, with its element array and short-period terms.  It is
// replaced as a whole, never modified.
type nominal struct {
	state *orbit.State
	mean  []float64
	spt   [6]float64
}

// Model is the process of the unscented filter.  It owns the column
// layout: selected orbital drivers, then selected propagation drivers
// sorted by name, then selected measurement drivers.
type Model struct {
	builder  *dsst.Builder
	prop     *dsst.Propagator
	composer *Composer
	refDate  time.Time

	orbital     *param.List
	propagation *param.List
	measurement *param.List

	dynamic   noise.CovarianceMatrixProvider
	measNoise noise.CovarianceMatrixProvider

	ctxLock  sync.RWMutex
	nominal  *nominal
	previous *orbit.State

	counter     int
	currentDate time.Time
	estimate    *ukf.ProcessEstimate
	committed   bool // estimate.State already added to the drivers

	predictedCorrection  *mat.VecDense
	correctedCorrection  *mat.VecDense
	predictedState       *orbit.State
	correctedState       *orbit.State
	predictedMeasurement *measure.EstimatedMeasurement
	correctedMeasurement *measure.EstimatedMeasurement

	measLock sync.Mutex // serializes driver offsets while estimating
	workers  int
	log      *zap.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithModelLogger sets the logger; the default discards.
func WithModelLogger(l *zap.Logger) ModelOption {
	return func(m *Model) { m.log = l }
}

// WithWorkers evaluates sigma points on n goroutines.  n <= 1 is serial.
func WithWorkers(n int) ModelOption {
	return func(m *Model) { m.workers = n }
}

// Columns returns the selected orbital, propagation and measurement
// parameters in column order, setting the reference date of every driver
// that lacks one to the initial orbit date of b.
func Columns(b *dsst.Builder, measurement *param.List) (orb, prop, meas *param.List) {
	ref := b.InitialOrbitDate()
	for _, l := range []*param.List{b.OrbitalParameters(), b.PropagationParameters(), measurement} {
		if l == nil {
			continue
		}
		for _, c := range l.Columns() {
			c.DefaultReferenceDate(ref)
		}
	}
	orb = b.OrbitalParameters().Selected()
	prop = b.PropagationParameters().Selected()
	prop.Sort()
	if measurement == nil {
		measurement = param.NewList()
	}
	meas = measurement.Selected()
	return
}

// Scales returns the driver scales in column order.
func Scales(lists ...*param.List) []float64 {
	var s []float64
	for _, l := range lists {
		for _, c := range l.Columns() {
			s = append(s, c.Scale())
		}
	}
	return s
}

// NewModel builds the reference propagator from b and the initial
// estimate: zero correction, covariance from the providers.  measNoise
// may be nil, leaving the measurement block zero.
func NewModel(b *dsst.Builder, dynamic noise.CovarianceMatrixProvider, measurement *param.List,
	measNoise noise.CovarianceMatrixProvider, opts ...ModelOption) (*Model, error) {
	m := &Model{
		builder:     b,
		refDate:     b.InitialOrbitDate(),
		currentDate: b.InitialOrbitDate(),
		dynamic:     dynamic,
		measNoise:   measNoise,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	m.orbital, m.propagation, m.measurement = Columns(b, measurement)

	m.composer = &Composer{Type: b.OrbitType(), Angle: b.PositionAngle(), Mu: b.Mu(), Frame: b.Frame()}
	for i, c := range b.OrbitalParameters().Columns() {
		if c.IsSelected() {
			m.composer.Orbital = append(m.composer.Orbital, i)
		}
	}

	prop, err := b.BuildPropagator()
	if err != nil {
		return nil, errors.Wrap(err, "reference propagator")
	}
	m.prop = prop
	mean := prop.InitialState()
	if err := m.InitializeShortPeriodicTerms(mean); err != nil {
		return nil, err
	}
	m.previous = mean
	m.predictedState = mean
	m.correctedState = mean

	n := m.Len()
	m.predictedCorrection = mat.NewVecDense(n, nil)
	m.correctedCorrection = m.predictedCorrection

	p, err := dynamic.InitialCovarianceMatrix(mean)
	if err != nil {
		return nil, err
	}
	var pm mat.Symmetric
	if measNoise != nil {
		if pm, err = measNoise.InitialCovarianceMatrix(mean); err != nil {
			return nil, err
		}
	}
	cov, err := m.assemble(p, pm)
	if err != nil {
		return nil, err
	}
	m.estimate = &ukf.ProcessEstimate{State: m.correctedCorrection, Covariance: cov}
	m.log.Debug("process model",
		zap.Strings("orbital", m.orbital.Names()),
		zap.Strings("propagation", m.propagation.Names()),
		zap.Strings("measurement", m.measurement.Names()))
	return m, nil
}

func (m *Model) nbDyn() int { return m.orbital.Len() + m.propagation.Len() }

// Len is the number of columns.
func (m *Model) Len() int { return m.nbDyn() + m.measurement.Len() }

// assemble places the dynamic block top left and the measurement block,
// if any, bottom right, checking both dimensions.
func (m *Model) assemble(dyn, meas mat.Symmetric) (*mat.SymDense, error) {
	nd := m.nbDyn()
	if d := dyn.SymmetricDim(); d != nd {
		return nil, &DimensionError{
			Block:      "orbital and propagation",
			Requested:  d,
			Expected:   nd,
			Parameters: append(m.orbital.Names(), m.propagation.Names()...),
		}
	}
	nm := m.measurement.Len()
	if meas != nil {
		if d := meas.SymmetricDim(); d != nm {
			return nil, &DimensionError{
				Block:      "measurement",
				Requested:  d,
				Expected:   nm,
				Parameters: m.measurement.Names(),
			}
		}
	}
	k := mat.NewSymDense(nd+nm, nil)
	for i := 0; i < nd; i++ {
		for j := i; j < nd; j++ {
			k.SetSym(i, j, dyn.At(i, j))
		}
	}
	if meas != nil {
		for i := 0; i < nm; i++ {
			for j := i; j < nm; j++ {
				k.SetSym(nd+i, nd+j, meas.At(i, j))
			}
		}
	}
	return k, nil
}

func (m *Model) context() *nominal {
	m.ctxLock.RLock()
	defer m.ctxLock.RUnlock()
	return m.nominal
}

// newContext computes the element array and short-period terms of s.
func (m *Model) newContext(s *orbit.State) (*nominal, error) {
	mean, err := m.composer.Type.MapOrbitToArray(s.Orbit(), m.composer.Angle)
	if err != nil {
		return nil, err
	}
	spt, err := m.prop.ShortPeriodTermsValue(s)
	if err != nil {
		return nil, err
	}
	return &nominal{state: s, mean: mean, spt: spt}, nil
}

// InitializeShortPeriodicTerms sets the short-period terms of the
// reference propagator about mean, and makes mean the nominal state.
func (m *Model) InitializeShortPeriodicTerms(mean *orbit.State) error {
	m.prop.InitializeShortPeriodTerms(mean)
	ctx, err := m.newContext(mean)
	if err != nil {
		return err
	}
	m.ctxLock.Lock()
	m.nominal = ctx
	m.ctxLock.Unlock()
	return nil
}

// Relinearize replaces the nominal mean state, refreshing the
// short-period terms about it and resetting the builder orbit.  On error
// the previous nominal state stays in effect.
func (m *Model) Relinearize(mean *orbit.State) error {
	old := m.context()
	if _, err := m.composer.Type.MapOrbitToArray(mean.Orbit(), m.composer.Angle); err != nil {
		return err
	}
	m.prop.UpdateShortPeriodTerms(mean)
	ctx, err := m.newContext(mean)
	if err == nil {
		err = m.builder.ResetOrbit(mean.Orbit(), dsst.Mean)
	}
	if err != nil {
		if old != nil {
			m.prop.UpdateShortPeriodTerms(old.state)
		}
		return err
	}
	m.ctxLock.Lock()
	m.nominal = ctx
	m.ctxLock.Unlock()
	return nil
}

// NominalState returns the current nominal mean state.
func (m *Model) NominalState() *orbit.State { return m.context().state }

// PreviousNominalState is the nominal state of the last finalized step.
func (m *Model) PreviousNominalState() *orbit.State { return m.previous }

// osculating composes the osculating state for the correction x.
func (m *Model) osculating(ctx *nominal, x *mat.VecDense) (*orbit.State, error) {
	return m.composer.Compose(ctx.state, ctx.mean, x.RawVector().Data, ctx.spt, m.currentDate)
}

// estimateWith evaluates o on s, with measurement drivers offset by
// their entries of x for the duration of the call.
func (m *Model) estimateWith(o measure.ObservedMeasurement, s *orbit.State, x *mat.VecDense) (*measure.EstimatedMeasurement, error) {
	states := []*orbit.State{s}
	cols := m.measurement.Columns()
	if len(cols) == 0 {
		return o.Estimate(m.counter, m.counter, states)
	}
	m.measLock.Lock()
	defer m.measLock.Unlock()
	off := m.nbDyn()
	saved := make([]float64, len(cols))
	for i, c := range cols {
		saved[i] = c.Value()
		c.SetValue(saved[i] + x.AtVec(off+i))
	}
	defer func() {
		for i, c := range cols {
			c.SetValue(saved[i])
		}
	}()
	return o.Estimate(m.counter, m.counter, states)
}

// Evolution predicts the measurement of every sigma point.  The sigma
// points are returned unchanged; the process noise comes from the
// providers between the previous and current nominal states.
func (m *Model) Evolution(_ float64, sigma []*mat.VecDense, d *Decorator) (*ukf.Evolution, error) {
	obs := d.Observed()
	for _, drv := range obs.Parameters() {
		drv.DefaultReferenceDate(m.refDate)
	}
	m.counter++
	m.currentDate = obs.Date()

	ctx := m.context()
	predicted := make([]*mat.VecDense, len(sigma))
	eval := func(k int) error {
		s, err := m.osculating(ctx, sigma[k])
		if err != nil {
			return errors.Wrapf(err, "sigma point %d", k)
		}
		e, err := m.estimateWith(obs, s, sigma[k])
		if err != nil {
			return err
		}
		predicted[k] = mat.NewVecDense(len(e.Value), append([]float64(nil), e.Value...))
		return nil
	}
	if m.workers > 1 {
		var g errgroup.Group
		g.SetLimit(m.workers)
		for k := range sigma {
			k := k
			g.Go(func() error { return eval(k) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for k := range sigma {
			if err := eval(k); err != nil {
				return nil, err
			}
		}
	}

	q, err := m.processNoise(ctx.state)
	if err != nil {
		return nil, err
	}
	return &ukf.Evolution{
		Time:                  d.Time(),
		SigmaPoints:           sigma,
		PredictedMeasurements: predicted,
		ProcessNoise:          q,
	}, nil
}

// processNoise assembles the providers' noise from the previous nominal
// state to current.
func (m *Model) processNoise(current *orbit.State) (*mat.SymDense, error) {
	qd, err := m.dynamic.ProcessNoiseMatrix(m.previous, current)
	if err != nil {
		return nil, err
	}
	var qm mat.Symmetric
	if m.measNoise != nil {
		if qm, err = m.measNoise.ProcessNoiseMatrix(m.previous, current); err != nil {
			return nil, err
		}
	}
	return m.assemble(qd, qm)
}

// Innovation evaluates the measurement on the predicted state and returns
// observed minus estimated, or nil when the measurement is rejected.
// A dynamic outlier policy gets its sigma from the innovation covariance
// for this one test.
func (m *Model) Innovation(d *Decorator, _, predictedState *mat.VecDense, s mat.Symmetric) (*mat.VecDense, error) {
	obs := d.Observed()
	m.predictedCorrection = mat.VecDenseCopyOf(predictedState)
	st, err := m.osculating(m.context(), m.predictedCorrection)
	if err != nil {
		return nil, err
	}
	m.predictedState = st
	e, err := m.estimateWith(obs, st, m.predictedCorrection)
	if err != nil {
		return nil, err
	}
	m.predictedMeasurement = e

	if f := obs.OutlierPolicy(); f != nil {
		sigma := make([]float64, s.SymmetricDim())
		for i := range sigma {
			sigma[i] = math.Sqrt(s.At(i, i))
		}
		f.SetSigma(sigma)
		f.Modify(e)
		f.SetSigma(nil)
	}
	if e.Status() == measure.Rejected {
		return nil, nil
	}
	return mat.NewVecDense(len(e.Value), e.Residual()), nil
}

// FinalizeEstimation commits the corrected estimate of an accepted
// measurement and rolls the previous nominal state forward.
func (m *Model) FinalizeEstimation(obs measure.ObservedMeasurement, est *ukf.ProcessEstimate) error {
	m.estimate = est
	m.committed = false
	m.correctedCorrection = est.State
	ctx := m.context()
	m.previous = ctx.state

	st, err := m.osculating(ctx, m.correctedCorrection)
	if err != nil {
		return err
	}
	m.correctedState = st
	e, err := m.estimateWith(obs, st, m.correctedCorrection)
	if err != nil {
		return err
	}
	m.correctedMeasurement = e
	return nil
}

// FinalizeRejected records a rejected measurement: the estimate is kept
// and the rejected prediction is reported as the corrected measurement.
func (m *Model) FinalizeRejected() {
	m.correctedMeasurement = m.predictedMeasurement
}

// FinalizeOperationsObservationGrid ends a batch by pushing corrections
// into the drivers.
func (m *Model) FinalizeOperationsObservationGrid() {
	m.UpdateParameters()
}

// UpdateParameters adds each entry of the corrected state to the value of
// its column, once per estimate.  Drivers clip.
func (m *Model) UpdateParameters() {
	if m.committed {
		return
	}
	m.committed = true
	x := m.estimate.State
	i := 0
	for _, l := range []*param.List{m.orbital, m.propagation, m.measurement} {
		for _, c := range l.Columns() {
			c.SetValue(c.Value() + x.AtVec(i))
			i++
		}
	}
}

// EstimatedPropagator builds a propagator from the current driver values.
func (m *Model) EstimatedPropagator() (*dsst.Propagator, error) {
	return m.builder.BuildPropagator()
}

// ReferencePropagator propagates the nominal mean trajectory.
func (m *Model) ReferencePropagator() *dsst.Propagator { return m.prop }

// Builder returns the propagator builder.
func (m *Model) Builder() *dsst.Builder { return m.builder }

// Estimate returns the current corrected estimate.
func (m *Model) Estimate() *ukf.ProcessEstimate { return m.estimate }

func (m *Model) EstimatedOrbitalParameters() *param.List { return m.orbital }
func (m *Model) EstimatedPropagationParameters() *param.List { return m.propagation }
func (m *Model) EstimatedMeasurementParameters() *param.List { return m.measurement }
func (m *Model) CurrentMeasurementNumber() int { return m.counter }
func (m *Model) CurrentDate() time.Time { return m.currentDate }
func (m *Model) PredictedMeasurement() *measure.EstimatedMeasurement { return m.predictedMeasurement }
func (m *Model) CorrectedMeasurement() *measure.EstimatedMeasurement { return m.correctedMeasurement }

// PredictedStates returns the osculating predicted state.
func (m *Model) PredictedStates() []*orbit.State { return []*orbit.State{m.predictedState} }

// CorrectedStates returns the osculating corrected state.
func (m *Model) CorrectedStates() []*orbit.State { return []*orbit.State{m.correctedState} }

// PredictedCorrection returns the filter correction of the last
// prediction.
func (m *Model) PredictedCorrection() *mat.VecDense { return m.predictedCorrection }

// PhysicalEstimatedState returns the estimated value of every column.
// Before UpdateParameters that is driver value plus correction, after it
// the driver value alone.
func (m *Model) PhysicalEstimatedState() *mat.VecDense {
	x := m.estimate.State
	v := mat.NewVecDense(x.Len(), nil)
	i := 0
	for _, l := range []*param.List{m.orbital, m.propagation, m.measurement} {
		for _, c := range l.Columns() {
			if m.committed {
				v.SetVec(i, c.Value())
			} else {
				v.SetVec(i, c.Value()+x.AtVec(i))
			}
			i++
		}
	}
	return v
}

func (m *Model) PhysicalEstimatedCovariance() *mat.SymDense { return m.estimate.Covariance }
func (m *Model) PhysicalInnovationCovariance() *mat.SymDense { return m.estimate.InnovationCovariance }
func (m *Model) PhysicalKalmanGain() *mat.Dense { return m.estimate.KalmanGain }
