// Public domain.

// Package noise provides covariance matrices for the filter: the initial
// covariance and the process noise added between two nominal states.
package noise

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/orbit"
)

// CovarianceMatrixProvider supplies the initial covariance and the process
// noise between two states.  Returned matrices are symmetric positive
// semi-definite and owned by the caller.
type CovarianceMatrixProvider interface {
	InitialCovarianceMatrix(initial *orbit.State) (*mat.SymDense, error)
	ProcessNoiseMatrix(previous, current *orbit.State) (*mat.SymDense, error)
}

// ConstantProcessNoise returns the same matrices at every step.
type ConstantProcessNoise struct {
	initial, process *mat.SymDense
}

// NewConstantProcessNoise returns a provider of fixed matrices.  A nil
// process matrix means the initial matrix is used for both.
func NewConstantProcessNoise(initial, process *mat.SymDense) (*ConstantProcessNoise, error) {
	if initial == nil {
		return nil, errors.New("nil initial covariance")
	}
	if process == nil {
		process = initial
	}
	if initial.SymmetricDim() != process.SymmetricDim() {
		return nil, errors.Errorf("initial covariance dimension %d, process noise dimension %d",
			initial.SymmetricDim(), process.SymmetricDim())
	}
	return &ConstantProcessNoise{initial: initial, process: process}, nil
}

func (c *ConstantProcessNoise) InitialCovarianceMatrix(*orbit.State) (*mat.SymDense, error) {
	return copySym(c.initial), nil
}

func (c *ConstantProcessNoise) ProcessNoiseMatrix(_, _ *orbit.State) (*mat.SymDense, error) {
	return copySym(c.process), nil
}

func copySym(m *mat.SymDense) *mat.SymDense {
	c := mat.NewSymDense(m.SymmetricDim(), nil)
	c.CopySym(m)
	return c
}

// Diagonal returns a diagonal matrix.
func Diagonal(d ...float64) *mat.SymDense {
	m := mat.NewSymDense(len(d), nil)
	for i, x := range d {
		m.SetSym(i, i, x)
	}
	return m
}
