// Public domain.

package measure

import (
	"math"

	"github.com/pkg/errors"

	"github.com/soniakeys/saukf/internal/param"
)

// Modifier corrects an estimated value or sets its status.
type Modifier interface {
	Name() string
	Parameters() []*param.Driver
	Modify(e *EstimatedMeasurement)
}

// Bias adds one driver value per component.
type Bias struct {
	drivers []*param.Driver
}

// NewBias returns a bias with drivers named names[i], initially zero.
func NewBias(names []string, scale, min, max float64) (*Bias, error) {
	b := &Bias{}
	for _, n := range names {
		d, err := param.NewDriver(n, 0, scale, min, max)
		if err != nil {
			return nil, err
		}
		b.drivers = append(b.drivers, d)
	}
	return b, nil
}

func (b *Bias) Name() string { return "bias" }
func (b *Bias) Parameters() []*param.Driver { return b.drivers }

func (b *Bias) Modify(e *EstimatedMeasurement) {
	for i, d := range b.drivers {
		if i < len(e.Value) {
			e.Value[i] += d.Value()
		}
	}
}

// OutlierFilter rejects a measurement when a residual exceeds maxSigma
// times the theoretical sigma.  The first warmup iterations are never
// rejected.
type OutlierFilter struct {
	warmup   int
	maxSigma float64
}

func NewOutlierFilter(warmup int, maxSigma float64) (*OutlierFilter, error) {
	if warmup < 0 || !(maxSigma > 0) {
		return nil, errors.Errorf("outlier filter: warmup %d, max sigma %g", warmup, maxSigma)
	}
	return &OutlierFilter{warmup: warmup, maxSigma: maxSigma}, nil
}

func (f *OutlierFilter) Name() string { return "outlier filter" }
func (f *OutlierFilter) Parameters() []*param.Driver { return nil }

func (f *OutlierFilter) Modify(e *EstimatedMeasurement) {
	reject(e, f.warmup, f.maxSigma, e.Observed.Sigma())
}

func reject(e *EstimatedMeasurement, warmup int, maxSigma float64, sigma []float64) {
	if e.Iteration <= warmup {
		return
	}
	obs := e.Observed.Observed()
	for i := range obs {
		if math.Abs(obs[i]-e.Value[i]) > maxSigma*sigma[i] {
			e.SetStatus(Rejected)
			return
		}
	}
}

// DynamicOutlierFilter is an outlier filter whose sigma is supplied just
// before use, from the innovation covariance of the filter.  Without a
// sigma it does nothing.
type DynamicOutlierFilter struct {
	warmup   int
	maxSigma float64
	sigma    []float64
}

func NewDynamicOutlierFilter(warmup int, maxSigma float64) (*DynamicOutlierFilter, error) {
	if warmup < 0 || !(maxSigma > 0) {
		return nil, errors.Errorf("dynamic outlier filter: warmup %d, max sigma %g", warmup, maxSigma)
	}
	return &DynamicOutlierFilter{warmup: warmup, maxSigma: maxSigma}, nil
}

func (f *DynamicOutlierFilter) Name() string { return "dynamic outlier filter" }

// Sigma returns the current sigma, nil when unset.
func (f *DynamicOutlierFilter) Sigma() []float64 { return f.sigma }

// SetSigma sets, or with nil clears, the sigma.
func (f *DynamicOutlierFilter) SetSigma(s []float64) { f.sigma = s }

func (f *DynamicOutlierFilter) Modify(e *EstimatedMeasurement) {
	if f.sigma == nil {
		return
	}
	reject(e, f.warmup, f.maxSigma, f.sigma)
	e.Applied = append(e.Applied, f.Name())
}
