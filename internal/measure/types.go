// Public domain.

package measure

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/saukf/internal/orbit"
)

// Range is the one-way geometric distance from a ground station, m.
type Range struct {
	Base
	Station *GroundStation
}

func NewRange(station *GroundStation, date time.Time, r, sigma float64) (*Range, error) {
	b, err := newBase(date, []float64{r}, []float64{sigma})
	if err != nil {
		return nil, err
	}
	return &Range{Base: b, Station: station}, nil
}

func (m *Range) Estimate(iteration, count int, states []*orbit.State) (*EstimatedMeasurement, error) {
	s, err := oneState(states)
	if err != nil {
		return nil, err
	}
	sta := m.Station.PV(m.date)
	sat := satellitePV(s)
	var d coord.Cart
	d.Sub(&sat.P, &sta.P)
	v := []float64{math.Sqrt(d.Square())}
	return m.finish(m, iteration, count, states, v, []PV{sta, sat}), nil
}

func (m *Range) String() string {
	return fmt.Sprintf("range %s %s", m.Station.Name, m.date.Format(time.RFC3339))
}

// RangeRate is the time derivative of Range, m/s.
type RangeRate struct {
	Base
	Station *GroundStation
}

func NewRangeRate(station *GroundStation, date time.Time, rr, sigma float64) (*RangeRate, error) {
	b, err := newBase(date, []float64{rr}, []float64{sigma})
	if err != nil {
		return nil, err
	}
	return &RangeRate{Base: b, Station: station}, nil
}

func (m *RangeRate) Estimate(iteration, count int, states []*orbit.State) (*EstimatedMeasurement, error) {
	s, err := oneState(states)
	if err != nil {
		return nil, err
	}
	sta := m.Station.PV(m.date)
	sat := satellitePV(s)
	var d, dv coord.Cart
	d.Sub(&sat.P, &sta.P)
	dv.Sub(&sat.V, &sta.V)
	v := []float64{d.Dot(&dv) / math.Sqrt(d.Square())}
	return m.finish(m, iteration, count, states, v, []PV{sta, sat}), nil
}

func (m *RangeRate) String() string {
	return fmt.Sprintf("range rate %s %s", m.Station.Name, m.date.Format(time.RFC3339))
}

// RaDec is a pair of topocentric inertial angles, right ascension and
// declination, in radians.
type RaDec struct {
	Base
	Station *GroundStation
}

func NewRaDec(station *GroundStation, date time.Time, ra, dec, sigmaRa, sigmaDec unit.Angle) (*RaDec, error) {
	b, err := newBase(date,
		[]float64{ra.Rad(), dec.Rad()},
		[]float64{sigmaRa.Rad(), sigmaDec.Rad()})
	if err != nil {
		return nil, err
	}
	return &RaDec{Base: b, Station: station}, nil
}

// Estimate returns right ascension within π of the observed value.
func (m *RaDec) Estimate(iteration, count int, states []*orbit.State) (*EstimatedMeasurement, error) {
	s, err := oneState(states)
	if err != nil {
		return nil, err
	}
	sta := m.Station.PV(m.date)
	sat := satellitePV(s)
	ra, dec := topocentric(&sta.P, &sat.P)
	v := []float64{orbit.Normalize(ra, m.observed[0]), dec}
	return m.finish(m, iteration, count, states, v, []PV{sta, sat}), nil
}

func (m *RaDec) String() string {
	return fmt.Sprintf("RA/Dec %s %s", m.Station.Name, m.date.Format(time.RFC3339))
}

// topocentric returns right ascension and declination of sat seen from
// sta.
func topocentric(sta, sat *coord.Cart) (ra, dec float64) {
	var d coord.Cart
	d.Sub(sat, sta)
	ra = math.Atan2(d.Y, d.X)
	dec = math.Asin(d.Z / math.Sqrt(d.Square()))
	return
}

// Position is an inertial position fix, as from a GNSS receiver, m.
type Position struct {
	Base
}

func NewPosition(date time.Time, p coord.Cart, sigma float64) (*Position, error) {
	b, err := newBase(date, []float64{p.X, p.Y, p.Z}, []float64{sigma, sigma, sigma})
	if err != nil {
		return nil, err
	}
	return &Position{Base: b}, nil
}

func (m *Position) Estimate(iteration, count int, states []*orbit.State) (*EstimatedMeasurement, error) {
	s, err := oneState(states)
	if err != nil {
		return nil, err
	}
	sat := satellitePV(s)
	v := []float64{sat.P.X, sat.P.Y, sat.P.Z}
	return m.finish(m, iteration, count, states, v, []PV{sat}), nil
}

func (m *Position) String() string {
	return "position " + m.date.Format(time.RFC3339)
}

func satellitePV(s *orbit.State) PV {
	o := s.Orbit()
	return PV{P: o.Position(), V: o.Velocity()}
}
