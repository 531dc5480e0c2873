// Public domain.

package odprog

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/sequential"
)

// RangeBias is the name of the range bias driver.
const RangeBias = "range bias"

// simulator generates measurements of the truth orbit.  The truth is
// propagated with its own force models: mean elements, then osculating
// elements as mean plus short-period terms.
type simulator struct {
	sc       *Scenario
	prop     *dsst.Propagator
	composer *sequential.Composer
	stations []*measure.GroundStation
	rnd      *xrand.Rand

	bias    *measure.Bias
	static  *measure.OutlierFilter
	dynamic *measure.DynamicOutlierFilter
}

func newSimulator(sc *Scenario, truth *orbit.State, stations []*measure.GroundStation,
	bias *measure.Bias, rnd *xrand.Rand) (*simulator, error) {
	forces, err := sc.ForceModels()
	if err != nil {
		return nil, err
	}
	b, err := dsst.NewBuilder(truth, sc.PropagationType(), sc.Filter.PositionScale, forces...)
	if err != nil {
		return nil, errors.Wrap(err, "truth")
	}
	p, err := b.BuildPropagator()
	if err != nil {
		return nil, errors.Wrap(err, "truth")
	}
	s := &simulator{
		sc:       sc,
		prop:     p,
		composer: &sequential.Composer{Type: b.OrbitType(), Angle: b.PositionAngle(), Mu: b.Mu(), Frame: b.Frame()},
		stations: stations,
		rnd:      rnd,
		bias:     bias,
	}
	for i := range b.OrbitalParameters().Columns() {
		s.composer.Orbital = append(s.composer.Orbital, i)
	}
	if o := sc.Outlier; o.Enabled {
		if o.Dynamic {
			s.dynamic, err = measure.NewDynamicOutlierFilter(o.Warmup, o.MaxSigma)
		} else {
			s.static, err = measure.NewOutlierFilter(o.Warmup, o.MaxSigma)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// osculating returns the truth state at t.
func (s *simulator) osculating(t time.Time) (*orbit.State, error) {
	mean, err := s.prop.Propagate(t)
	if err != nil {
		return nil, err
	}
	s.prop.InitializeShortPeriodTerms(mean)
	spt, err := s.prop.ShortPeriodTermsValue(mean)
	if err != nil {
		return nil, err
	}
	arr, err := s.composer.Type.MapOrbitToArray(mean.Orbit(), s.composer.Angle)
	if err != nil {
		return nil, err
	}
	return s.composer.Compose(mean, arr, make([]float64, 6), spt, t)
}

// noise returns a normal deviate of standard deviation sigma, or zero
// when the scenario has no noise.
func (s *simulator) noise(sigma float64) float64 {
	if !s.sc.Schedule.Noise || s.rnd == nil {
		return 0
	}
	return s.rnd.NormFloat64() * sigma
}

func (s *simulator) filtered(b *measure.Base) {
	switch {
	case s.dynamic != nil:
		b.SetOutlierPolicy(s.dynamic)
	case s.static != nil:
		b.AddModifier(s.static)
	}
}

// run returns the measurements of every epoch, station and type, skipping
// stations that do not see the satellite.
func (s *simulator) run() ([]measure.ObservedMeasurement, error) {
	sc := s.sc.Schedule
	var ms []measure.ObservedMeasurement
	for k := 1; k <= sc.Count; k++ {
		t := s.sc.Epoch.Add(time.Duration(k) * sc.Spacing)
		truth, err := s.osculating(t)
		if err != nil {
			return nil, errors.Wrapf(err, "truth at %s", t.Format(time.RFC3339))
		}
		p := truth.Orbit().Position()
		for _, typ := range sc.Types {
			if typ == TypePosition {
				m, err := s.position(truth)
				if err != nil {
					return nil, err
				}
				ms = append(ms, m)
				continue
			}
			for _, sta := range s.stations {
				if sta.Elevation(t, p) < sc.MinElevation.Angle() {
					continue
				}
				m, err := s.ground(typ, sta, truth)
				if err != nil {
					return nil, err
				}
				ms = append(ms, m)
			}
		}
	}
	return ms, nil
}

func (s *simulator) position(truth *orbit.State) (measure.ObservedMeasurement, error) {
	sig := s.sc.Schedule.Sigma.Position
	p := truth.Orbit().Position()
	p.X += s.noise(sig)
	p.Y += s.noise(sig)
	p.Z += s.noise(sig)
	m, err := measure.NewPosition(truth.Date(), p, sig)
	if err != nil {
		return nil, err
	}
	s.filtered(&m.Base)
	return m, nil
}

func (s *simulator) ground(typ string, sta *measure.GroundStation, truth *orbit.State) (measure.ObservedMeasurement, error) {
	t := truth.Date()
	states := []*orbit.State{truth}
	sig := s.sc.Schedule.Sigma
	switch typ {
	case TypeRange:
		r0, err := measure.NewRange(sta, t, 0, sig.Range)
		if err != nil {
			return nil, err
		}
		e, err := r0.Estimate(0, 0, states)
		if err != nil {
			return nil, err
		}
		v := e.Value[0] + s.noise(sig.Range)
		if b := s.sc.Schedule.RangeBias; b != nil {
			v += b.Value
		}
		m, err := measure.NewRange(sta, t, v, sig.Range)
		if err != nil {
			return nil, err
		}
		if s.bias != nil {
			m.AddModifier(s.bias)
		}
		s.filtered(&m.Base)
		return m, nil
	case TypeRangeRate:
		r0, err := measure.NewRangeRate(sta, t, 0, sig.RangeRate)
		if err != nil {
			return nil, err
		}
		e, err := r0.Estimate(0, 0, states)
		if err != nil {
			return nil, err
		}
		m, err := measure.NewRangeRate(sta, t, e.Value[0]+s.noise(sig.RangeRate), sig.RangeRate)
		if err != nil {
			return nil, err
		}
		s.filtered(&m.Base)
		return m, nil
	case TypeRaDec:
		a := sig.Angle.Angle()
		r0, err := measure.NewRaDec(sta, t, 0, 0, a, a)
		if err != nil {
			return nil, err
		}
		e, err := r0.Estimate(0, 0, states)
		if err != nil {
			return nil, err
		}
		ra := unit.Angle(unit.PMod(e.Value[0]+s.noise(a.Rad()), 2*math.Pi))
		dec := unit.Angle(e.Value[1] + s.noise(a.Rad()))
		m, err := measure.NewRaDec(sta, t, ra, dec, a, a)
		if err != nil {
			return nil, err
		}
		s.filtered(&m.Base)
		return m, nil
	}
	return nil, errors.Errorf("unknown measurement type %q", typ)
}

// Simulate returns the measurements of the truth orbit of sc, without
// bias modifiers.  rnd may be nil for noise free measurements.
func Simulate(sc *Scenario, rnd *xrand.Rand) ([]measure.ObservedMeasurement, error) {
	_, truth, err := sc.Orbits()
	if err != nil {
		return nil, err
	}
	s, err := newSimulator(sc, truth, sc.GroundStations(), nil, rnd)
	if err != nil {
		return nil, err
	}
	return s.run()
}
