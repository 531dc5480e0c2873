// Public domain.

// Package dsst is a semi-analytical propagator: mean equinoctial elements
// are integrated with the averaged rates of a set of force models, and
// osculating elements are recovered by adding short-period terms.
package dsst

import (
	"math"

	"github.com/pkg/errors"
	"github.com/soniakeys/coord"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// PropagationType tells whether an orbit holds mean or osculating elements.
type PropagationType int

const (
	Mean PropagationType = iota
	Osculating
)

func (t PropagationType) String() string {
	if t == Osculating {
		return "OSCULATING"
	}
	return "MEAN"
}

// Elements are mean equinoctial elements with mean longitude, the element
// set of the propagator.
const (
	ElementType  = orbit.Equinoctial
	ElementAngle = orbit.Mean
)

// ShortPeriodTerms evaluates the periodic corrections of one force model.
// Value must not modify the terms; it may be called concurrently.
// Update recomputes the coefficients about a new mean state.
type ShortPeriodTerms interface {
	Value(mean *orbit.State) ([6]float64, error)
	Update(mean *orbit.State)
}

// ForceModel is a perturbation expressed by averaged element rates and
// short-period terms.
type ForceModel interface {
	Name() string
	// Parameters returns the model's drivers.  The same drivers are
	// returned on every call.
	Parameters() []*param.Driver
	// InitializeShortPeriodTerms returns new terms with coefficients
	// computed about mean.  The terms belong to the caller.
	InitializeShortPeriodTerms(mean *orbit.State) ShortPeriodTerms
	// MeanElementRates returns d/dt of the mean elements, excluding the
	// Keplerian mean motion.
	MeanElementRates(mean *orbit.State) ([6]float64, error)
}

// zeroTerms is the short-period contribution of purely secular models.
type zeroTerms struct{}

func (zeroTerms) Value(*orbit.State) ([6]float64, error) { return [6]float64{}, nil }
func (zeroTerms) Update(*orbit.State) {}

// aux are auxiliary quantities of a mean orbit.
type aux struct {
	eq   []float64 // a, ex, ey, hx, hy, L
	a, e float64
	n    float64 // Keplerian mean motion
	eta  float64 // sqrt(1-e²)
	f, g coord.Cart
	w    coord.Cart
	mu   float64
}

func newAux(o *orbit.Orbit) (*aux, error) {
	eq, err := ElementType.MapOrbitToArray(o, ElementAngle)
	if err != nil {
		return nil, err
	}
	x := &aux{eq: eq, a: eq[0], mu: o.Mu()}
	x.e = math.Hypot(eq[1], eq[2])
	if x.e >= 1 {
		return nil, errors.Wrapf(orbit.ErrInvalidOrbitState, "e = %g", x.e)
	}
	x.eta = math.Sqrt(1 - x.e*x.e)
	x.n = math.Sqrt(x.mu / (x.a * x.a * x.a))
	x.f, x.g = equinoctialBasis(eq[3], eq[4])
	x.w.Cross(&x.f, &x.g)
	return x, nil
}

// equinoctialBasis returns the in-plane unit vectors f and g, for which
// ex = e·f and ey = e·g.
func equinoctialBasis(hx, hy float64) (f, g coord.Cart) {
	d := 1 / (1 + hx*hx + hy*hy)
	f = coord.Cart{
		X: (1 - hy*hy + hx*hx) * d,
		Y: 2 * hx * hy * d,
		Z: -2 * hy * d,
	}
	g = coord.Cart{
		X: 2 * hx * hy * d,
		Y: (1 + hy*hy - hx*hx) * d,
		Z: 2 * hx * d,
	}
	return
}
