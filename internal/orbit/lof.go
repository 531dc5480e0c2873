// Public domain.

package orbit

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/soniakeys/coord"
	"gonum.org/v1/gonum/mat"
)

// LOFType is a local orbital frame.
type LOFType int

const (
	// TNW: T along velocity, W along angular momentum, N = W × T.
	TNW LOFType = iota
	// QSW: Q radial outward, W along angular momentum, S = W × Q.
	QSW
)

func (l LOFType) String() string {
	switch l {
	case TNW:
		return "TNW"
	case QSW:
		return "QSW"
	}
	return fmt.Sprintf("LOFType(%d)", int(l))
}

// ParseLOFType accepts "TNW" or "QSW" in any case.
func ParseLOFType(s string) (LOFType, error) {
	switch strings.ToUpper(s) {
	case "TNW":
		return TNW, nil
	case "QSW", "RSW", "RTN":
		return QSW, nil
	}
	return 0, errors.Errorf("unknown local orbital frame %q", s)
}

// RotationToInertial returns the 3×3 matrix whose columns are the LOF axes
// expressed in the inertial frame of o.
func (l LOFType) RotationToInertial(o *Orbit) *mat.Dense {
	var w coord.Cart
	w.Cross(&o.pos, &o.vel)
	unitize(&w)
	var x coord.Cart
	switch l {
	case TNW:
		x = o.vel
	default:
		x = o.pos
	}
	unitize(&x)
	var y coord.Cart
	y.Cross(&w, &x)
	return mat.NewDense(3, 3, []float64{
		x.X, y.X, w.X,
		x.Y, y.Y, w.Y,
		x.Z, y.Z, w.Z,
	})
}

func unitize(v *coord.Cart) {
	v.MulScalar(v, 1/math.Sqrt(v.Square()))
}
