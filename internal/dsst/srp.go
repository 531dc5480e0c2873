// Public domain.

package dsst

import (
	"math"

	"github.com/pkg/errors"
	"github.com/soniakeys/astro"
	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/julian"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// ReflectionCoefficient is the name of the radiation pressure driver.
const ReflectionCoefficient = "reflection coefficient"

// SolarPressure is the radiation pressure at 1 AU, N/m².
const SolarPressure = 4.56e-6

// SolarRadiationPressure is a cannonball radiation pressure model without
// eclipses.  Only the averaged drift of the eccentricity vector is kept.
type SolarRadiationPressure struct {
	area float64
	cr   *param.Driver
}

// NewSolarRadiationPressure returns a model with an unselected reflection
// coefficient driver.
func NewSolarRadiationPressure(cr, area float64) (*SolarRadiationPressure, error) {
	if !(area > 0) {
		return nil, errors.Errorf("radiation pressure: area %g", area)
	}
	d, err := param.NewDriver(ReflectionCoefficient, cr, 1./8, 0, math.Inf(1))
	if err != nil {
		return nil, err
	}
	return &SolarRadiationPressure{area: area, cr: d}, nil
}

func (s *SolarRadiationPressure) Name() string { return "solar radiation pressure" }

func (s *SolarRadiationPressure) Parameters() []*param.Driver { return []*param.Driver{s.cr} }

// Acceleration returns the inertial radiation pressure acceleration at
// the date of st, m/s².
func (s *SolarRadiationPressure) Acceleration(st *orbit.State) coord.Cart {
	mjd := julian.TimeToJD(st.Date()) - 2400000.5
	sun, _, _ := astro.Se2000(mjd)
	r := math.Sqrt(sun.Square()) // AU
	k := -SolarPressure / (r * r) * s.cr.Value() * s.area / st.Mass() / r
	var f coord.Cart
	f.MulScalar(&sun, k)
	return f
}

func (s *SolarRadiationPressure) MeanElementRates(mean *orbit.State) (r [6]float64, err error) {
	x, err := newAux(mean.Orbit())
	if err != nil {
		return
	}
	f := s.Acceleration(mean)
	var de coord.Cart
	de.Cross(&f, &x.w)
	de.MulScalar(&de, 1.5*x.eta/(x.n*x.a))
	r[1] = de.Dot(&x.f)
	r[2] = de.Dot(&x.g)
	return
}

func (s *SolarRadiationPressure) InitializeShortPeriodTerms(*orbit.State) ShortPeriodTerms {
	return zeroTerms{}
}
