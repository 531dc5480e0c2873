// Public domain.

package sequential

import (
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// Progress is the read-only view of the estimation offered to observers.
// Matrices are in physical units and must not be modified.
type Progress interface {
	CurrentDate() time.Time
	CurrentMeasurementNumber() int
	PredictedMeasurement() *measure.EstimatedMeasurement
	CorrectedMeasurement() *measure.EstimatedMeasurement
	PredictedStates() []*orbit.State
	CorrectedStates() []*orbit.State
	PhysicalEstimatedState() *mat.VecDense
	PhysicalEstimatedCovariance() *mat.SymDense
	PhysicalInnovationCovariance() *mat.SymDense
	PhysicalKalmanGain() *mat.Dense
	EstimatedOrbitalParameters() *param.List
	EstimatedPropagationParameters() *param.List
	EstimatedMeasurementParameters() *param.List
}

// Observer is notified after each measurement, accepted or rejected.
type Observer interface {
	EvaluationPerformed(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

func (f ObserverFunc) EvaluationPerformed(p Progress) { f(p) }

// LoggingObserver writes one Info line per measurement.
type LoggingObserver struct {
	Log *zap.Logger
}

func (o LoggingObserver) EvaluationPerformed(p Progress) {
	e := p.CorrectedMeasurement()
	fields := []zap.Field{
		zap.Int("n", p.CurrentMeasurementNumber()),
		zap.Time("date", p.CurrentDate()),
	}
	if e != nil {
		fields = append(fields,
			zap.Stringer("measurement", e.Observed),
			zap.Stringer("status", e.Status()),
			zap.Float64s("residual", e.Residual()))
	}
	if cov := p.PhysicalEstimatedCovariance(); cov != nil {
		fields = append(fields, zap.Float64("trace", mat.Trace(cov)))
	}
	o.Log.Info("evaluation", fields...)
}
