// Public domain.

// Package param holds the named, scaled scalar parameters that the filter
// estimates, and the ordered column lists built from them.
package param

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidScale is returned for a zero or non-finite scale.
	ErrInvalidScale = errors.New("invalid parameter scale")
	// ErrReferenceDateUnset is returned when a driver's reference date is
	// needed before it has been set.
	ErrReferenceDateUnset = errors.New("parameter reference date not set")
)

// Driver is a single physical parameter.  The value is always kept within
// [Min, Max]; callers never clip.
type Driver struct {
	name           string
	referenceValue float64
	scale          float64
	min, max       float64
	value          float64
	refDate        time.Time
	hasRefDate     bool
	selected       bool
}

// NewDriver creates an unselected driver with value set to the reference
// value, clipped to bounds.
func NewDriver(name string, referenceValue, scale, min, max float64) (*Driver, error) {
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, errors.Wrapf(ErrInvalidScale, "driver %q, scale %g", name, scale)
	}
	if min > max {
		return nil, errors.Errorf("driver %q: min %g > max %g", name, min, max)
	}
	d := &Driver{
		name:           name,
		referenceValue: referenceValue,
		scale:          scale,
		min:            min,
		max:            max,
	}
	d.SetValue(referenceValue)
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return d.name }

// Value returns the physical value.
func (d *Driver) Value() float64 { return d.value }

// SetValue stores v clipped to [Min, Max].
func (d *Driver) SetValue(v float64) {
	d.value = math.Max(d.min, math.Min(d.max, v))
}

func (d *Driver) ReferenceValue() float64 { return d.referenceValue }

// SetReferenceValue changes the reference value.  The current value is
// left alone.
func (d *Driver) SetReferenceValue(v float64) { d.referenceValue = v }

func (d *Driver) Scale() float64 { return d.scale }
func (d *Driver) Min() float64 { return d.min }
func (d *Driver) Max() float64 { return d.max }

// SetMin changes the lower bound and re-clips the value.
func (d *Driver) SetMin(min float64) {
	d.min = min
	d.SetValue(d.value)
}

// SetMax changes the upper bound and re-clips the value.
func (d *Driver) SetMax(max float64) {
	d.max = max
	d.SetValue(d.value)
}

// NormalizedValue is (value - reference) / scale.
func (d *Driver) NormalizedValue() float64 {
	return (d.value - d.referenceValue) / d.scale
}

// SetNormalizedValue sets the value from a normalized one.
func (d *Driver) SetNormalizedValue(n float64) {
	d.SetValue(d.referenceValue + d.scale*n)
}

// ReferenceDate returns the reference date and whether one is set.
func (d *Driver) ReferenceDate() (time.Time, bool) {
	return d.refDate, d.hasRefDate
}

// RequireReferenceDate returns the reference date or ErrReferenceDateUnset.
func (d *Driver) RequireReferenceDate() (time.Time, error) {
	if !d.hasRefDate {
		return time.Time{}, errors.Wrapf(ErrReferenceDateUnset, "driver %q", d.name)
	}
	return d.refDate, nil
}

// SetReferenceDate sets the reference date.
func (d *Driver) SetReferenceDate(t time.Time) {
	d.refDate = t
	d.hasRefDate = true
}

// DefaultReferenceDate sets the reference date to t only if none is set.
// It reports whether the date was assigned.
func (d *Driver) DefaultReferenceDate(t time.Time) bool {
	if d.hasRefDate {
		return false
	}
	d.SetReferenceDate(t)
	return true
}

func (d *Driver) IsSelected() bool { return d.selected }
func (d *Driver) SetSelected(sel bool) { d.selected = sel }

func (d *Driver) String() string {
	return fmt.Sprintf("%s = %g", d.name, d.value)
}
