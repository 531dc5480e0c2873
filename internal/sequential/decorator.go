// Public domain.

package sequential

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/measure"
)

// Decorator adapts an observed measurement to the filter: continuous time
// from a reference date and a diagonal noise covariance from the
// theoretical sigmas.
type Decorator struct {
	observed measure.ObservedMeasurement
	t        float64
	r        *mat.SymDense
}

// Decorate wraps m with time counted from ref.
func Decorate(m measure.ObservedMeasurement, ref time.Time) *Decorator {
	sigma := m.Sigma()
	r := mat.NewSymDense(len(sigma), nil)
	for i, s := range sigma {
		r.SetSym(i, i, s*s)
	}
	return &Decorator{observed: m, t: m.Date().Sub(ref).Seconds(), r: r}
}

func (d *Decorator) Observed() measure.ObservedMeasurement { return d.observed }
func (d *Decorator) Time() float64 { return d.t }
func (d *Decorator) Covariance() mat.Symmetric { return d.r }
