// Public domain.

package noise

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/orbit"
)

// Func is a standard deviation as a function of elapsed time, s.
type Func interface {
	Value(dt float64) float64
}

// Polynomial is c[0] + c[1]·t + c[2]·t² + ...
type Polynomial []float64

func (p Polynomial) Value(t float64) (v float64) {
	for i := len(p) - 1; i >= 0; i-- {
		v = v*t + p[i]
	}
	return
}

// UnivariateProcessNoise grows the process noise with the time elapsed
// between the previous and current states.
//
// Orbital noise is given as six standard deviations of position and
// velocity in a local orbital frame.  The LOF covariance is rotated to the
// inertial frame and mapped to the orbital elements of the filter.
// Propagation and measurement parameters get independent noise.
type UnivariateProcessNoise struct {
	initial *mat.SymDense
	lof     orbit.LOFType
	typ     orbit.Type
	angle   orbit.PositionAngle
	orbital [6]Func
	prop    []Func
	meas    []Func
}

// NewUnivariateProcessNoise checks that initial has one row per function.
func NewUnivariateProcessNoise(initial *mat.SymDense, lof orbit.LOFType, typ orbit.Type, angle orbit.PositionAngle,
	lofOrbital []Func, propagation []Func, measurement []Func) (*UnivariateProcessNoise, error) {
	if len(lofOrbital) != 6 {
		return nil, errors.Errorf("%d LOF orbital noise functions, want 6", len(lofOrbital))
	}
	n := 6 + len(propagation) + len(measurement)
	if initial == nil || initial.SymmetricDim() != n {
		d := 0
		if initial != nil {
			d = initial.SymmetricDim()
		}
		return nil, errors.Errorf("initial covariance dimension %d, want %d", d, n)
	}
	u := &UnivariateProcessNoise{
		initial: initial,
		lof:     lof,
		typ:     typ,
		angle:   angle,
		prop:    propagation,
		meas:    measurement,
	}
	copy(u.orbital[:], lofOrbital)
	return u, nil
}

func (u *UnivariateProcessNoise) InitialCovarianceMatrix(*orbit.State) (*mat.SymDense, error) {
	return copySym(u.initial), nil
}

// ProcessNoiseMatrix evaluates the functions at the time from previous to
// current, about the orbit of current.
func (u *UnivariateProcessNoise) ProcessNoiseMatrix(previous, current *orbit.State) (*mat.SymDense, error) {
	dt := current.Date().Sub(previous.Date()).Seconds()
	o := current.Orbit()

	lofCov := mat.NewDiagDense(6, nil)
	for i, f := range u.orbital {
		s := f.Value(dt)
		lofCov.SetDiag(i, s*s)
	}

	// LOF to inertial, for position and velocity
	r := u.lof.RotationToInertial(o)
	rot := mat.NewDense(6, 6, nil)
	rot.Slice(0, 3, 0, 3).(*mat.Dense).Copy(r)
	rot.Slice(3, 6, 3, 6).(*mat.Dense).Copy(r)

	j, err := u.typ.JacobianWrtCartesian(o, u.angle)
	if err != nil {
		return nil, err
	}
	var t mat.Dense
	t.Mul(j, rot)
	var orbital mat.Dense
	orbital.Product(&t, lofCov, t.T())

	n := 6 + len(u.prop) + len(u.meas)
	q := mat.NewSymDense(n, nil)
	for i := 0; i < 6; i++ {
		for k := i; k < 6; k++ {
			v := (orbital.At(i, k) + orbital.At(k, i)) / 2
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Errorf("non-finite orbital process noise at dt = %g s", dt)
			}
			q.SetSym(i, k, v)
		}
	}
	for i, f := range append(append([]Func(nil), u.prop...), u.meas...) {
		s := f.Value(dt)
		q.SetSym(6+i, 6+i, s*s)
	}
	return q, nil
}
