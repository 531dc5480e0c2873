// Public domain.

package ukf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// UnscentedTransform generates sigma points and their weights.
type UnscentedTransform interface {
	// SigmaPoints returns 2n+1 points for mean x and covariance p.
	SigmaPoints(x *mat.VecDense, p mat.Symmetric) ([]*mat.VecDense, error)
	// Weights returns the mean and covariance weights of the points.
	Weights() (wm, wc []float64)
}

// MerweUnscentedTransform is the scaled unscented transform of van der
// Merwe.
type MerweUnscentedTransform struct {
	n      int
	lambda float64
	wm, wc []float64
}

// NewMerweUnscentedTransform returns the transform for state dimension n.
func NewMerweUnscentedTransform(n int, alpha, beta, kappa float64) (*MerweUnscentedTransform, error) {
	if n < 1 {
		return nil, errors.Errorf("state dimension %d", n)
	}
	lambda := alpha*alpha*(float64(n)+kappa) - float64(n)
	if !(float64(n)+lambda > 0) {
		return nil, errors.Errorf("unscented transform: n + λ = %g", float64(n)+lambda)
	}
	t := &MerweUnscentedTransform{
		n:      n,
		lambda: lambda,
		wm:     make([]float64, 2*n+1),
		wc:     make([]float64, 2*n+1),
	}
	w := 1 / (2 * (float64(n) + lambda))
	for i := range t.wm {
		t.wm[i] = w
		t.wc[i] = w
	}
	t.wm[0] = lambda / (float64(n) + lambda)
	t.wc[0] = t.wm[0] + 1 - alpha*alpha + beta
	return t, nil
}

// DefaultMerwe returns the transform with α = 0.5, β = 2 and κ = 3 - n.
func DefaultMerwe(n int) (*MerweUnscentedTransform, error) {
	return NewMerweUnscentedTransform(n, 0.5, 2, 3-float64(n))
}

func (t *MerweUnscentedTransform) Weights() (wm, wc []float64) { return t.wm, t.wc }

func (t *MerweUnscentedTransform) SigmaPoints(x *mat.VecDense, p mat.Symmetric) ([]*mat.VecDense, error) {
	if x.Len() != t.n || p.SymmetricDim() != t.n {
		return nil, errors.Errorf("sigma points: state %d, covariance %d, transform %d",
			x.Len(), p.SymmetricDim(), t.n)
	}
	var scaled mat.SymDense
	scaled.ScaleSym(float64(t.n)+t.lambda, p)
	l, err := sqrtm(&scaled)
	if err != nil {
		return nil, err
	}
	pts := make([]*mat.VecDense, 2*t.n+1)
	pts[0] = mat.VecDenseCopyOf(x)
	for j := 0; j < t.n; j++ {
		col := l.ColView(j)
		plus := mat.NewVecDense(t.n, nil)
		plus.AddVec(x, col)
		minus := mat.NewVecDense(t.n, nil)
		minus.SubVec(x, col)
		pts[1+j] = plus
		pts[1+t.n+j] = minus
	}
	return pts, nil
}

// sqrtm returns L with L·Lᵀ = m, by Cholesky when m is positive
// definite, otherwise from the eigen decomposition with negative
// eigenvalues clamped to zero.
func sqrtm(m *mat.SymDense) (*mat.Dense, error) {
	n := m.SymmetricDim()
	var ch mat.Cholesky
	if ch.Factorize(m) {
		var l mat.TriDense
		ch.LTo(&l)
		return mat.DenseCopyOf(&l), nil
	}
	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return nil, errors.New("covariance square root: eigen decomposition failed")
	}
	var v mat.Dense
	eig.VectorsTo(&v)
	vals := eig.Values(nil)
	for j, e := range vals {
		s := math.Sqrt(math.Max(e, 0))
		for i := 0; i < n; i++ {
			v.Set(i, j, v.At(i, j)*s)
		}
	}
	return &v, nil
}

// Mean returns the weighted mean of points.
func Mean(points []*mat.VecDense, wm []float64) *mat.VecDense {
	m := mat.NewVecDense(points[0].Len(), nil)
	for i, p := range points {
		m.AddScaledVec(m, wm[i], p)
	}
	return m
}

// CrossCovariance returns Σ wc (a-ma)(b-mb)ᵀ.
func CrossCovariance(a []*mat.VecDense, ma *mat.VecDense, b []*mat.VecDense, mb *mat.VecDense, wc []float64) *mat.Dense {
	c := mat.NewDense(ma.Len(), mb.Len(), nil)
	da := mat.NewVecDense(ma.Len(), nil)
	db := mat.NewVecDense(mb.Len(), nil)
	for i := range a {
		da.SubVec(a[i], ma)
		db.SubVec(b[i], mb)
		c.RankOne(c, wc[i], da, db)
	}
	return c
}

// Covariance returns Σ wc (p-m)(p-m)ᵀ + add, symmetrized.  add may be nil.
func Covariance(points []*mat.VecDense, m *mat.VecDense, wc []float64, add mat.Symmetric) *mat.SymDense {
	c := CrossCovariance(points, m, points, m, wc)
	n := m.Len()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (c.At(i, j) + c.At(j, i)) / 2
			if add != nil {
				v += add.At(i, j)
			}
			s.SetSym(i, j, v)
		}
	}
	return s
}
