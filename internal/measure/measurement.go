// Public domain.

// Package measure holds observed measurements, their theoretical
// evaluation on spacecraft states, and the modifiers that correct or
// reject estimated values.
package measure

import (
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/coord"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// Status of an estimated measurement.  Only modifiers change it.
type Status int

const (
	Processed Status = iota
	Rejected
)

func (s Status) String() string {
	if s == Rejected {
		return "REJECTED"
	}
	return "PROCESSED"
}

// PV is an inertial position and velocity of a participant.
type PV struct {
	P, V coord.Cart
}

// ObservedMeasurement is a dated observation that can be evaluated on
// spacecraft states.
type ObservedMeasurement interface {
	Date() time.Time
	Dimension() int
	Observed() []float64
	// Sigma is the theoretical standard deviation per component.
	Sigma() []float64
	// Parameters returns the drivers of the measurement and of its
	// modifiers.
	Parameters() []*param.Driver
	Modifiers() []Modifier
	// OutlierPolicy is the dynamic outlier filter, or nil.
	OutlierPolicy() *DynamicOutlierFilter
	Estimate(iteration, count int, states []*orbit.State) (*EstimatedMeasurement, error)
	fmt.Stringer
}

// EstimatedMeasurement is one evaluation of an observed measurement.
type EstimatedMeasurement struct {
	Observed     ObservedMeasurement
	Iteration    int
	Count        int
	States       []*orbit.State
	Participants []PV
	Value        []float64
	Applied      []string // names of applied modifiers, in order
	status       Status
}

func (e *EstimatedMeasurement) Status() Status { return e.status }
func (e *EstimatedMeasurement) SetStatus(s Status) { e.status = s }

// Residual is observed minus estimated.
func (e *EstimatedMeasurement) Residual() []float64 {
	obs := e.Observed.Observed()
	r := make([]float64, len(obs))
	for i := range r {
		r[i] = obs[i] - e.Value[i]
	}
	return r
}

// Base carries what all measurement types share.  Concrete types embed
// it and implement Estimate.
type Base struct {
	date      time.Time
	observed  []float64
	sigma     []float64
	modifiers []Modifier
	drivers   []*param.Driver
	outlier   *DynamicOutlierFilter
}

// ErrDimension is returned when observed values and sigmas disagree.
var ErrDimension = errors.New("measurement dimension mismatch")

func newBase(date time.Time, observed, sigma []float64) (Base, error) {
	if len(observed) == 0 || len(observed) != len(sigma) {
		return Base{}, errors.Wrapf(ErrDimension, "%d values, %d sigmas", len(observed), len(sigma))
	}
	for _, s := range sigma {
		if !(s > 0) {
			return Base{}, errors.Errorf("sigma %g not positive", s)
		}
	}
	return Base{
		date:     date,
		observed: append([]float64(nil), observed...),
		sigma:    append([]float64(nil), sigma...),
	}, nil
}

func (b *Base) Date() time.Time { return b.date }
func (b *Base) Dimension() int { return len(b.observed) }
func (b *Base) Observed() []float64 { return b.observed }
func (b *Base) Sigma() []float64 { return b.sigma }
func (b *Base) Modifiers() []Modifier { return b.modifiers }
func (b *Base) OutlierPolicy() *DynamicOutlierFilter { return b.outlier }

// SetOutlierPolicy installs or, with nil, removes the dynamic outlier
// filter.
func (b *Base) SetOutlierPolicy(f *DynamicOutlierFilter) { b.outlier = f }

// AddModifier appends m; its drivers become measurement parameters.
func (b *Base) AddModifier(m Modifier) {
	b.modifiers = append(b.modifiers, m)
	b.drivers = append(b.drivers, m.Parameters()...)
}

func (b *Base) Parameters() []*param.Driver { return b.drivers }

// finish builds the estimated measurement for m and applies modifiers.
func (b *Base) finish(m ObservedMeasurement, iteration, count int, states []*orbit.State,
	value []float64, participants []PV) *EstimatedMeasurement {
	e := &EstimatedMeasurement{
		Observed:     m,
		Iteration:    iteration,
		Count:        count,
		States:       states,
		Participants: participants,
		Value:        value,
	}
	for _, mod := range b.modifiers {
		mod.Modify(e)
		e.Applied = append(e.Applied, mod.Name())
	}
	return e
}

func oneState(states []*orbit.State) (*orbit.State, error) {
	if len(states) != 1 {
		return nil, errors.Errorf("%d states, want 1", len(states))
	}
	return states[0], nil
}

// SortChronologically sorts by date, keeping the order of equal dates.
func SortChronologically(ms []ObservedMeasurement) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].Date().Before(ms[j].Date())
	})
}
