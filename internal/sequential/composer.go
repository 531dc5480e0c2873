// Public domain.

package sequential

import (
	"time"

	"github.com/pkg/errors"

	"github.com/soniakeys/saukf/internal/orbit"
)

// Composer rebuilds osculating states from the nominal mean elements, the
// filter correction and the short-period terms:
//
//	osculating = mean + correction + short-period terms
//
// component by component, in one element set.
type Composer struct {
	Type  orbit.Type
	Angle orbit.PositionAngle
	Mu    float64
	Frame orbit.Frame
	// Orbital gives, for each orbital column of the correction, the index
	// of its element.  Elements without a column get no correction.
	Orbital []int
}

// Compose returns the osculating state at date.  nominal supplies mass
// and additional states.  Only the first len(c.Orbital) entries of
// correction are read.
func (c *Composer) Compose(nominal *orbit.State, mean []float64, correction []float64, spt [6]float64,
	date time.Time) (*orbit.State, error) {
	if len(mean) != 6 {
		return nil, errors.Wrapf(orbit.ErrInvalidOrbitState, "%d mean elements", len(mean))
	}
	if len(correction) < len(c.Orbital) {
		return nil, errors.Errorf("correction of %d, want at least %d", len(correction), len(c.Orbital))
	}
	var arr [6]float64
	copy(arr[:], mean)
	for k, i := range c.Orbital {
		arr[i] += correction[k]
	}
	for i := range arr {
		arr[i] += spt[i]
	}
	o, err := c.Type.MapArrayToOrbit(arr[:], c.Angle, date, c.Mu, c.Frame)
	if err != nil {
		return nil, err
	}
	return nominal.WithOrbit(o), nil
}
