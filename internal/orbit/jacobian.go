// Public domain.

package orbit

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// relative step of the central differences
const jacobianStep = 1e-6

// JacobianWrtCartesian returns d(elements)/d(x, y, z, vx, vy, vz) at o,
// for element type t with anomaly convention a.  Derivatives come from
// central differences; differences of angles are wrapped.
func (t Type) JacobianWrtCartesian(o *Orbit, a PositionAngle) (*mat.Dense, error) {
	j := mat.NewDense(6, 6, nil)
	if t == Cartesian {
		for i := 0; i < 6; i++ {
			j.Set(i, i, 1)
		}
		return j, nil
	}
	pv, err := Cartesian.MapOrbitToArray(o, a)
	if err != nil {
		return nil, err
	}
	hp := jacobianStep * math.Sqrt(o.pos.Square())
	hv := jacobianStep * math.Sqrt(o.vel.Square())
	ang := t.angular()
	plus := make([]float64, 6)
	minus := make([]float64, 6)
	for c := 0; c < 6; c++ {
		h := hp
		if c >= 3 {
			h = hv
		}
		copy(plus, pv)
		copy(minus, pv)
		plus[c] += h
		minus[c] -= h
		op, err := Cartesian.MapArrayToOrbit(plus, a, o.epoch, o.mu, o.frame)
		if err != nil {
			return nil, err
		}
		om, err := Cartesian.MapArrayToOrbit(minus, a, o.epoch, o.mu, o.frame)
		if err != nil {
			return nil, err
		}
		ep, err := t.MapOrbitToArray(op, a)
		if err != nil {
			return nil, err
		}
		em, err := t.MapOrbitToArray(om, a)
		if err != nil {
			return nil, err
		}
		for r := 0; r < 6; r++ {
			d := ep[r] - em[r]
			if ang[r] {
				d = wrap(d)
			}
			j.Set(r, c, d/(2*h))
		}
	}
	return j, nil
}
