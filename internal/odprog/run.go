// Public domain.

package odprog

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/noise"
	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
	"github.com/soniakeys/saukf/internal/sequential"
	"github.com/soniakeys/saukf/internal/ukf"
)

// collector accumulates residual statistics from the estimator.
type collector struct {
	stats map[string]*Residuals
	trace sequential.Observer
}

func typeName(m measure.ObservedMeasurement) string {
	switch m.(type) {
	case *measure.Range:
		return TypeRange
	case *measure.RangeRate:
		return TypeRangeRate
	case *measure.RaDec:
		return TypeRaDec
	case *measure.Position:
		return TypePosition
	}
	return "other"
}

func (c *collector) EvaluationPerformed(p sequential.Progress) {
	if c.trace != nil {
		c.trace.EvaluationPerformed(p)
	}
	e := p.CorrectedMeasurement()
	name := typeName(e.Observed)
	r := c.stats[name]
	if r == nil {
		r = &Residuals{Type: name}
		c.stats[name] = r
	}
	r.N++
	if e.Status() == measure.Rejected {
		r.Rejected++
		return
	}
	for _, x := range e.Residual() {
		r.sumSq += x * x
		r.n++
	}
}

// Run simulates the measurements of sc, estimates the orbit from them
// and compares the result with the truth.
func Run(sc *Scenario, rnd *xrand.Rand, log *zap.Logger) (*Report, error) {
	ref, truth, err := sc.Orbits()
	if err != nil {
		return nil, err
	}

	var bias *measure.Bias
	meas := param.NewList()
	if b := sc.Schedule.RangeBias; b != nil {
		if bias, err = measure.NewBias([]string{RangeBias}, math.Max(b.Sigma, 1), -1e4, 1e4); err != nil {
			return nil, err
		}
		for _, d := range bias.Parameters() {
			d.SetSelected(b.Estimate)
			if err = meas.Add(d); err != nil {
				return nil, err
			}
		}
	}

	sim, err := newSimulator(sc, truth, sc.GroundStations(), bias, rnd)
	if err != nil {
		return nil, err
	}
	ms, err := sim.run()
	if err != nil {
		return nil, err
	}
	log.Info("simulated", zap.Int("measurements", len(ms)))
	if len(ms) == 0 {
		return nil, errors.New("no measurement visible")
	}

	forces, err := sc.ForceModels()
	if err != nil {
		return nil, err
	}
	b, err := dsst.NewBuilder(ref, sc.PropagationType(), sc.Filter.PositionScale, forces...)
	if err != nil {
		return nil, err
	}
	dyn, measNoise, err := providers(sc, b, meas)
	if err != nil {
		return nil, err
	}

	col := &collector{stats: map[string]*Residuals{}}
	if log.Core().Enabled(zap.DebugLevel) {
		col.trace = sequential.LoggingObserver{Log: log.Named("filter")}
	}
	opts := []sequential.Option{
		sequential.WithLogger(log),
		sequential.WithObserver(col),
		sequential.WithParallel(sc.Filter.Parallel),
	}
	if measNoise != nil {
		opts = append(opts, sequential.WithMeasurementParameters(meas, measNoise))
	}
	if m := sc.Filter.Merwe; m != nil {
		orb, prop, sel := sequential.Columns(b, meas)
		n := orb.Len() + prop.Len() + sel.Len()
		kappa := 3 - float64(n)
		if m.Kappa != nil {
			kappa = *m.Kappa
		}
		ut, err := ukf.NewMerweUnscentedTransform(n, m.Alpha, m.Beta, kappa)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sequential.WithUnscentedTransform(ut))
	}
	est, err := sequential.NewEstimator(b, dyn, opts...)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	p, err := est.ProcessMeasurements(ms)
	if err != nil {
		return nil, err
	}
	log.Info("estimated", zap.Duration("elapsed", time.Since(start)))
	return report(est.Model(), p, sim, col)
}

// providers returns the covariance providers: the dynamic block from the
// driver scales and the configured process noise, and the measurement
// block, nil when no measurement parameter is estimated.
func providers(sc *Scenario, b *dsst.Builder, meas *param.List) (noise.CovarianceMatrixProvider, noise.CovarianceMatrixProvider, error) {
	orb, prop, sel := sequential.Columns(b, meas)
	k := sc.Filter.InitialSigma
	scales := sequential.Scales(orb, prop)
	p0 := make([]float64, len(scales))
	for i, s := range scales {
		p0[i] = (k * s) * (k * s)
	}
	var dyn noise.CovarianceMatrixProvider
	if pn := sc.Filter.ProcessNoise; pn != nil {
		lof, err := orbit.ParseLOFType(pn.LOF)
		if err != nil {
			return nil, nil, err
		}
		pos, vel := noise.Polynomial(pn.Position), noise.Polynomial(pn.Velocity)
		lofFuncs := []noise.Func{pos, pos, pos, vel, vel, vel}
		var propFuncs []noise.Func
		for _, c := range prop.Columns() {
			f := make(noise.Polynomial, len(pn.Propagation))
			for i, x := range pn.Propagation {
				f[i] = x * c.Scale()
			}
			propFuncs = append(propFuncs, f)
		}
		u, err := noise.NewUnivariateProcessNoise(noise.Diagonal(p0...), lof, b.OrbitType(), b.PositionAngle(),
			lofFuncs, propFuncs, nil)
		if err != nil {
			return nil, nil, err
		}
		dyn = u
	} else {
		c, err := noise.NewConstantProcessNoise(noise.Diagonal(p0...), noise.Diagonal(make([]float64, len(p0))...))
		if err != nil {
			return nil, nil, err
		}
		dyn = c
	}
	if sel.Len() == 0 {
		return dyn, nil, nil
	}
	ms := sequential.Scales(sel)
	m0 := make([]float64, len(ms))
	for i, s := range ms {
		m0[i] = s * s
	}
	mn, err := noise.NewConstantProcessNoise(noise.Diagonal(m0...), noise.Diagonal(make([]float64, len(m0))...))
	if err != nil {
		return nil, nil, err
	}
	return dyn, mn, nil
}

// report compares the estimated mean orbit with the truth at the date of
// the last measurement.
func report(m *sequential.Model, p *dsst.Propagator, sim *simulator, col *collector) (*Report, error) {
	final := p.InitialState()
	truth, err := sim.prop.Propagate(final.Date())
	if err != nil {
		return nil, err
	}
	r := &Report{Epoch: final.Date()}
	kep, err := orbit.Keplerian.MapOrbitToArray(final.Orbit(), orbit.Mean)
	if err != nil {
		return nil, err
	}
	copy(r.Elements[:], kep)
	ep, tp := final.Orbit().Position(), truth.Orbit().Position()
	ep.Sub(&ep, &tp)
	r.PositionError = math.Sqrt(ep.Square())

	cov := m.PhysicalEstimatedCovariance()
	i := m.EstimatedOrbitalParameters().Len()
	for _, l := range []*param.List{m.EstimatedPropagationParameters(), m.EstimatedMeasurementParameters()} {
		for _, c := range l.Columns() {
			r.Parameters = append(r.Parameters, Estimated{
				Name:  c.Name(),
				Value: c.Value(),
				Sigma: math.Sqrt(cov.At(i, i)),
			})
			i++
		}
	}
	for _, typ := range append(append([]string(nil), sim.sc.Schedule.Types...), "other") {
		if s := col.stats[typ]; s != nil {
			r.Residuals = append(r.Residuals, *s)
		}
	}
	r.Trace = mat.Trace(cov)
	return r, nil
}
