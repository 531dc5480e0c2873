// Public domain.

// Package ukf is an unscented Kalman filter driven by a process that
// evolves sigma points and computes innovations.
//
// The filter knows nothing of orbits: each step it asks the process for
// the evolved sigma points, their predicted measurements and the process
// noise, then for the innovation of the combined prediction.  A nil
// innovation rejects the measurement and leaves the estimate as it was.
package ukf

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Measurement is what the filter needs of an observation.
type Measurement interface {
	// Time is continuous time, s.
	Time() float64
	// Covariance is the measurement noise R.
	Covariance() mat.Symmetric
}

// Evolution is the output of Process.Evolution.
type Evolution struct {
	Time                  float64
	SigmaPoints           []*mat.VecDense
	PredictedMeasurements []*mat.VecDense
	ProcessNoise          mat.Symmetric
}

// Process supplies the model side of each filter step.
type Process[M Measurement] interface {
	Evolution(previousTime float64, sigmaPoints []*mat.VecDense, m M) (*Evolution, error)
	// Innovation returns observed minus predicted, or nil to reject m.
	Innovation(m M, predictedMeasurement, predictedState *mat.VecDense, innovationCovariance mat.Symmetric) (*mat.VecDense, error)
}

// ProcessEstimate is the filter state after a step.  Innovation
// covariance and gain are nil for the initial estimate.
type ProcessEstimate struct {
	Time                 float64
	State                *mat.VecDense
	Covariance           *mat.SymDense
	InnovationCovariance *mat.SymDense
	KalmanGain           *mat.Dense
}

// Filter is an unscented Kalman filter.  It is not safe for concurrent
// use.
type Filter[M Measurement] struct {
	process   Process[M]
	ut        UnscentedTransform
	corrected *ProcessEstimate
}

// NewFilter starts from the initial estimate.
func NewFilter[M Measurement](process Process[M], ut UnscentedTransform, initial *ProcessEstimate) *Filter[M] {
	return &Filter[M]{process: process, ut: ut, corrected: initial}
}

// Corrected returns the current estimate.
func (f *Filter[M]) Corrected() *ProcessEstimate { return f.corrected }

// EstimationStep processes one measurement.  It returns the corrected
// estimate and whether the measurement was used; when it was rejected the
// estimate is the previous one, unchanged.
func (f *Filter[M]) EstimationStep(m M) (*ProcessEstimate, bool, error) {
	prev := f.corrected
	sigma, err := f.ut.SigmaPoints(prev.State, prev.Covariance)
	if err != nil {
		return nil, false, err
	}
	ev, err := f.process.Evolution(prev.Time, sigma, m)
	if err != nil {
		return nil, false, err
	}
	if len(ev.SigmaPoints) != len(sigma) || len(ev.PredictedMeasurements) != len(sigma) {
		return nil, false, errors.Errorf("evolution returned %d points and %d measurements, want %d",
			len(ev.SigmaPoints), len(ev.PredictedMeasurements), len(sigma))
	}
	n := prev.State.Len()
	if ev.ProcessNoise.SymmetricDim() != n {
		return nil, false, errors.Errorf("process noise dimension %d, state %d",
			ev.ProcessNoise.SymmetricDim(), n)
	}
	wm, wc := f.ut.Weights()

	// prediction
	x := Mean(ev.SigmaPoints, wm)
	p := Covariance(ev.SigmaPoints, x, wc, ev.ProcessNoise)

	z := Mean(ev.PredictedMeasurements, wm)
	r := m.Covariance()
	if r.SymmetricDim() != z.Len() {
		return nil, false, errors.Errorf("measurement covariance dimension %d, measurement %d",
			r.SymmetricDim(), z.Len())
	}
	s := Covariance(ev.PredictedMeasurements, z, wc, r)
	pxz := CrossCovariance(ev.SigmaPoints, x, ev.PredictedMeasurements, z, wc)

	nu, err := f.process.Innovation(m, z, x, s)
	if err != nil {
		return nil, false, err
	}
	if nu == nil {
		return prev, false, nil
	}

	// K = Pxz S⁻¹, from S Kᵀ = Pxzᵀ
	var kt mat.Dense
	var ch mat.Cholesky
	if ch.Factorize(s) {
		err = ch.SolveTo(&kt, pxz.T())
	} else {
		err = kt.Solve(s, pxz.T())
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "innovation covariance")
	}
	k := mat.DenseCopyOf(kt.T())

	state := mat.NewVecDense(n, nil)
	state.MulVec(k, nu)
	state.AddVec(x, state)

	var ksk mat.Dense
	ksk.Product(k, s, k.T())
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, p.At(i, j)-(ksk.At(i, j)+ksk.At(j, i))/2)
		}
	}
	f.corrected = &ProcessEstimate{
		Time:                 ev.Time,
		State:                state,
		Covariance:           cov,
		InnovationCovariance: s,
		KalmanGain:           k,
	}
	return f.corrected, true, nil
}
