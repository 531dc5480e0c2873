// Public domain.

package sequential

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMeasurementBeforeEpoch is returned when a measurement precedes the
// initial orbit date.
var ErrMeasurementBeforeEpoch = errors.New("measurement before initial orbit date")

// DimensionError reports a covariance block whose size disagrees with the
// number of selected parameters.
type DimensionError struct {
	Block      string
	Requested  int
	Expected   int
	Parameters []string
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s covariance block is %d×%d, want %d×%d for parameters [%s]",
		e.Block, e.Requested, e.Requested, e.Expected, e.Expected, strings.Join(e.Parameters, ", "))
}

// StepError wraps a fatal error raised while processing one measurement.
type StepError struct {
	Index int // position in the sorted batch, from 0
	Date  time.Time
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("measurement %d at %s: %v", e.Index, e.Date.Format(time.RFC3339Nano), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
