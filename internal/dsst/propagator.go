// Public domain.

package dsst

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/soniakeys/saukf/internal/orbit"
)

// DefaultStep is the integration step of the mean elements, s.
const DefaultStep = 60.

// Propagator integrates mean elements with a fixed step Runge-Kutta 4.
// Propagate is safe for concurrent use.
type Propagator struct {
	initial *orbit.State // mean
	osc     bool
	forces  []ForceModel
	step    float64

	mu    sync.Mutex
	terms []ShortPeriodTerms
	grid  gridPoint
}

// gridPoint caches the last full step reached from the initial state, so
// that successive calls integrate the same steps.
type gridPoint struct {
	k   int
	arr []float64
}

// NewPropagator returns a propagator starting from initial.  When typ is
// Osculating the mean initial state is computed first.
func NewPropagator(initial *orbit.State, typ PropagationType, step float64, forces ...ForceModel) (*Propagator, error) {
	if !(step > 0) {
		return nil, errors.Errorf("propagator step %g", step)
	}
	p := &Propagator{forces: forces, step: step}
	if err := p.ResetOrbit(initial, typ); err != nil {
		return nil, err
	}
	return p, nil
}

// InitialState returns the mean initial state.
func (p *Propagator) InitialState() *orbit.State { return p.initial }

// InitialIsOsculating reports whether the propagator was given osculating
// elements.
func (p *Propagator) InitialIsOsculating() bool { return p.osc }

// ForceModels returns all force models.
func (p *Propagator) ForceModels() []ForceModel { return p.forces }

// ResetOrbit replaces the initial state.
func (p *Propagator) ResetOrbit(s *orbit.State, typ PropagationType) error {
	if typ == Osculating {
		m, err := ComputeMeanState(s, p.forces)
		if err != nil {
			return err
		}
		s = m
	}
	arr, err := ElementType.MapOrbitToArray(s.Orbit(), ElementAngle)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.initial = s
	p.osc = typ == Osculating
	p.grid = gridPoint{arr: arr}
	p.mu.Unlock()
	return nil
}

// SetShortPeriodTerms replaces the terms evaluated by ShortPeriodTermsValue.
func (p *Propagator) SetShortPeriodTerms(t []ShortPeriodTerms) {
	p.mu.Lock()
	p.terms = t
	p.mu.Unlock()
}

// InitializeShortPeriodTerms sets terms from every force model, with
// coefficients computed about mean.
func (p *Propagator) InitializeShortPeriodTerms(mean *orbit.State) {
	t := make([]ShortPeriodTerms, len(p.forces))
	for i, f := range p.forces {
		t[i] = f.InitializeShortPeriodTerms(mean)
	}
	p.SetShortPeriodTerms(t)
}

// UpdateShortPeriodTerms refreshes the coefficients of the propagator's
// own terms about mean.  Terms initialized elsewhere on the same force
// models are not touched.
func (p *Propagator) UpdateShortPeriodTerms(mean *orbit.State) {
	p.mu.Lock()
	terms := p.terms
	p.mu.Unlock()
	for _, t := range terms {
		t.Update(mean)
	}
}

// ShortPeriodTermsValue sums the short-period terms at mean.  Without
// terms the sum is zero.
func (p *Propagator) ShortPeriodTermsValue(mean *orbit.State) ([6]float64, error) {
	p.mu.Lock()
	terms := p.terms
	p.mu.Unlock()
	return sumTerms(terms, mean)
}

func sumTerms(terms []ShortPeriodTerms, mean *orbit.State) (sum [6]float64, err error) {
	for _, t := range terms {
		v, err := t.Value(mean)
		if err != nil {
			return sum, err
		}
		for i := range sum {
			sum[i] += v[i]
		}
	}
	return
}

// Propagate returns the mean state at t.
func (p *Propagator) Propagate(t time.Time) (*orbit.State, error) {
	p.mu.Lock()
	init := p.initial
	g := p.grid
	p.mu.Unlock()

	dt := t.Sub(init.Date()).Seconds()
	h := p.step
	if dt < 0 {
		h = -h
		g = gridPoint{}
	}
	k := int(math.Floor(dt / h))
	if g.arr == nil || g.k > k {
		arr, err := ElementType.MapOrbitToArray(init.Orbit(), ElementAngle)
		if err != nil {
			return nil, err
		}
		g = gridPoint{arr: arr}
	}
	y := append([]float64(nil), g.arr...)
	var err error
	for ; g.k < k; g.k++ {
		if y, err = p.rk4(init, y, float64(g.k)*h, h); err != nil {
			return nil, err
		}
	}
	if h > 0 {
		p.mu.Lock()
		if p.initial == init {
			p.grid = gridPoint{k: g.k, arr: append([]float64(nil), y...)}
		}
		p.mu.Unlock()
	}
	if rest := dt - float64(k)*h; rest != 0 {
		if y, err = p.rk4(init, y, float64(k)*h, rest); err != nil {
			return nil, err
		}
	}
	return p.state(init, y, dt)
}

func (p *Propagator) state(init *orbit.State, y []float64, dt float64) (*orbit.State, error) {
	o := init.Orbit()
	epoch := init.Date().Add(time.Duration(math.Round(dt * float64(time.Second))))
	m, err := ElementType.MapArrayToOrbit(y, ElementAngle, epoch, o.Mu(), o.Frame())
	if err != nil {
		return nil, err
	}
	return init.WithOrbit(m), nil
}

// derivatives at elapsed time dt from init.
func (p *Propagator) derivatives(init *orbit.State, y []float64, dt float64) ([]float64, error) {
	s, err := p.state(init, y, dt)
	if err != nil {
		return nil, err
	}
	d := make([]float64, 6)
	d[5] = math.Sqrt(s.Orbit().Mu() / (y[0] * y[0] * y[0]))
	for _, f := range p.forces {
		r, err := f.MeanElementRates(s)
		if err != nil {
			return nil, errors.Wrapf(err, "%s rates", f.Name())
		}
		for i := range d {
			d[i] += r[i]
		}
	}
	return d, nil
}

func (p *Propagator) rk4(init *orbit.State, y []float64, t, h float64) ([]float64, error) {
	tmp := make([]float64, 6)
	axpy := func(k []float64, c float64) []float64 {
		for i := range tmp {
			tmp[i] = y[i] + c*k[i]
		}
		return tmp
	}
	k1, err := p.derivatives(init, y, t)
	if err != nil {
		return nil, err
	}
	k2, err := p.derivatives(init, axpy(k1, h/2), t+h/2)
	if err != nil {
		return nil, err
	}
	k3, err := p.derivatives(init, axpy(k2, h/2), t+h/2)
	if err != nil {
		return nil, err
	}
	k4, err := p.derivatives(init, axpy(k3, h), t+h)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 6)
	for i := range out {
		out[i] = y[i] + h/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out, nil
}

// ComputeMeanState finds the mean state whose mean elements plus
// short-period terms reproduce osc, by fixed point iteration.
func ComputeMeanState(osc *orbit.State, forces []ForceModel) (*orbit.State, error) {
	const (
		maxIter = 50
		eps     = 1e-13
	)
	o := osc.Orbit()
	target, err := ElementType.MapOrbitToArray(o, ElementAngle)
	if err != nil {
		return nil, err
	}
	mean := osc
	cur := append([]float64(nil), target...)
	for iter := 0; iter < maxIter; iter++ {
		terms := make([]ShortPeriodTerms, len(forces))
		for i, f := range forces {
			terms[i] = f.InitializeShortPeriodTerms(mean)
		}
		spt, err := sumTerms(terms, mean)
		if err != nil {
			return nil, err
		}
		next := make([]float64, 6)
		var delta float64
		for i := range next {
			next[i] = target[i] - spt[i]
			if i == 5 {
				next[i] = orbit.Normalize(next[i], cur[i])
			}
			d := math.Abs(next[i] - cur[i])
			if i == 0 {
				d /= cur[0]
			}
			delta = math.Max(delta, d)
		}
		m, err := ElementType.MapArrayToOrbit(next, ElementAngle, o.Epoch(), o.Mu(), o.Frame())
		if err != nil {
			return nil, err
		}
		mean = osc.WithOrbit(m)
		cur = next
		if delta < eps {
			return mean, nil
		}
	}
	return nil, errors.Errorf("mean state did not converge in %d iterations", maxIter)
}
