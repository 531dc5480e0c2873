// Public domain.

package sequential

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/noise"
	"github.com/soniakeys/saukf/internal/param"
	"github.com/soniakeys/saukf/internal/ukf"
)

// Estimator runs the unscented filter over batches of measurements.
type Estimator struct {
	model    *Model
	filter   *ukf.Filter[*Decorator]
	observer Observer
	log      *zap.Logger
}

type config struct {
	log         *zap.Logger
	observer    Observer
	measurement *param.List
	measNoise   noise.CovarianceMatrixProvider
	ut          ukf.UnscentedTransform
	workers     int
}

// Option configures an Estimator.
type Option func(*config)

// WithLogger sets the logger.  The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithObserver sets the observer notified after each measurement.
func WithObserver(o Observer) Option {
	return func(c *config) { c.observer = o }
}

// WithMeasurementParameters estimates the selected drivers of l, with
// covariance from p.  The drivers must be those of the measurements
// processed.
func WithMeasurementParameters(l *param.List, p noise.CovarianceMatrixProvider) Option {
	return func(c *config) {
		c.measurement = l
		c.measNoise = p
	}
}

// WithUnscentedTransform replaces the default Merwe transform.
func WithUnscentedTransform(ut ukf.UnscentedTransform) Option {
	return func(c *config) { c.ut = ut }
}

// WithParallel evaluates sigma points on n goroutines.
func WithParallel(n int) Option {
	return func(c *config) { c.workers = n }
}

// NewEstimator builds the process model and filter for b.  dynamic
// covers the orbital and propagation columns.
func NewEstimator(b *dsst.Builder, dynamic noise.CovarianceMatrixProvider, opts ...Option) (*Estimator, error) {
	c := config{log: zap.NewNop()}
	for _, o := range opts {
		o(&c)
	}
	m, err := NewModel(b, dynamic, c.measurement, c.measNoise,
		WithModelLogger(c.log), WithWorkers(c.workers))
	if err != nil {
		return nil, err
	}
	ut := c.ut
	if ut == nil {
		if ut, err = ukf.DefaultMerwe(m.Len()); err != nil {
			return nil, err
		}
	}
	return &Estimator{
		model:    m,
		filter:   ukf.NewFilter[*Decorator](m, ut, m.Estimate()),
		observer: c.observer,
		log:      c.log,
	}, nil
}

// Model returns the process model.
func (e *Estimator) Model() *Model { return e.model }

// ProcessMeasurements sorts ms by date and filters them in order.  It
// returns a propagator built from the estimated parameters.  Rejected
// measurements are reported to the observer and skipped.  Any other
// failure stops the batch with a StepError.
func (e *Estimator) ProcessMeasurements(ms []measure.ObservedMeasurement) (*dsst.Propagator, error) {
	sorted := append([]measure.ObservedMeasurement(nil), ms...)
	measure.SortChronologically(sorted)
	epoch := e.model.refDate
	for i, m := range sorted {
		if m.Date().Before(epoch) {
			return nil, &StepError{Index: i, Date: m.Date(), Err: ErrMeasurementBeforeEpoch}
		}
	}
	rejected := 0
	for i, m := range sorted {
		accepted, err := e.step(m)
		if err != nil {
			return nil, &StepError{Index: i, Date: m.Date(), Err: err}
		}
		if !accepted {
			rejected++
		}
		if e.observer != nil {
			e.observer.EvaluationPerformed(e.model)
		}
		if ce := e.log.Check(zap.DebugLevel, "measurement"); ce != nil {
			cm := e.model.CorrectedMeasurement()
			ce.Write(
				zap.Int("index", i),
				zap.Time("date", m.Date()),
				zap.Stringer("status", cm.Status()),
				zap.Float64s("residual", cm.Residual()))
		}
	}
	e.model.FinalizeOperationsObservationGrid()
	e.log.Info("batch processed",
		zap.Int("measurements", len(sorted)),
		zap.Int("rejected", rejected),
		zap.Float64s("state", e.model.PhysicalEstimatedState().RawVector().Data))
	return e.model.EstimatedPropagator()
}

// step re-linearizes about the reference trajectory at the date of m and
// runs one filter step.
func (e *Estimator) step(m measure.ObservedMeasurement) (bool, error) {
	nominal, err := e.model.ReferencePropagator().Propagate(m.Date())
	if err != nil {
		return false, errors.Wrap(err, "reference trajectory")
	}
	if err := e.model.Relinearize(nominal); err != nil {
		return false, errors.Wrap(err, "re-linearization")
	}
	est, accepted, err := e.filter.EstimationStep(Decorate(m, e.model.refDate))
	if err != nil {
		return false, err
	}
	if !accepted {
		e.model.FinalizeRejected()
		return false, nil
	}
	return true, e.model.FinalizeEstimation(m, est)
}
