// Public domain.

package dsst

import (
	"math"

	"github.com/pkg/errors"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// DragCoefficient is the name of the drag coefficient driver.
const DragCoefficient = "drag coefficient"

// AtmosphericDrag is the averaged decay of a near circular orbit in an
// exponential atmosphere.  The atmosphere does not rotate.
type AtmosphericDrag struct {
	area        float64 // m²
	rho0, h0, H float64 // kg/m³ at altitude h0 m, scale height H m
	cd          *param.Driver
}

// NewAtmosphericDrag returns a drag model with an unselected drag
// coefficient driver.
func NewAtmosphericDrag(cd, area, rho0, h0, scaleHeight float64) (*AtmosphericDrag, error) {
	if !(area > 0) || !(rho0 >= 0) || !(scaleHeight > 0) {
		return nil, errors.Errorf("drag: area %g, density %g, scale height %g", area, rho0, scaleHeight)
	}
	d, err := param.NewDriver(DragCoefficient, cd, 1./8, 0, math.Inf(1))
	if err != nil {
		return nil, err
	}
	return &AtmosphericDrag{area: area, rho0: rho0, h0: h0, H: scaleHeight, cd: d}, nil
}

func (d *AtmosphericDrag) Name() string { return "drag" }

func (d *AtmosphericDrag) Parameters() []*param.Driver { return []*param.Driver{d.cd} }

// Density returns the atmospheric density at altitude h, m.
func (d *AtmosphericDrag) Density(h float64) float64 {
	return d.rho0 * math.Exp(-(h-d.h0)/d.H)
}

func (d *AtmosphericDrag) MeanElementRates(mean *orbit.State) (r [6]float64, err error) {
	x, err := newAux(mean.Orbit())
	if err != nil {
		return
	}
	rho := d.Density(x.a - orbit.EarthRadius)
	b := d.cd.Value() * d.area / mean.Mass()
	r[0] = -rho * b * math.Sqrt(x.mu*x.a)
	return
}

func (d *AtmosphericDrag) InitializeShortPeriodTerms(*orbit.State) ShortPeriodTerms {
	return zeroTerms{}
}
