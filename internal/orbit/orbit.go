// Public domain.

// Package orbit defines orbit representations, the conversions between
// element sets, and immutable spacecraft state snapshots.
//
// Units are SI: meters, meters per second, m³/s² for mu.  Angles in element
// arrays are radians.
package orbit

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/coord"
)

// Earth constants shared by the packages that model near Earth orbits.
const (
	EarthMu     = 3.986004415e14 // m³/s²
	EarthRadius = 6378136.3      // m, equatorial
	EarthJ2     = 1.082626683e-3 // unnormalized
	EarthOmega  = 7.292115146e-5 // rad/s
)

var (
	// ErrInvalidOrbitState is wrapped by every failed conversion of an
	// element array or Cartesian state to an orbit.
	ErrInvalidOrbitState = errors.New("invalid orbit state")
	// ErrFrameUnset is returned when an orbit is built without a frame.
	ErrFrameUnset = errors.New("reference frame not set")
	// ErrInvalidMu is returned for a non-positive gravitational parameter.
	ErrInvalidMu = errors.New("invalid gravitational parameter")
)

// Frame names an inertial reference frame.  The zero Frame is unset.
type Frame struct {
	Name string
}

// EME2000 is the default inertial frame.
var EME2000 = Frame{"EME2000"}

func (f Frame) IsZero() bool { return f.Name == "" }
func (f Frame) String() string { return f.Name }

// Orbit is an immutable osculating orbit, stored as Cartesian position and
// velocity.
type Orbit struct {
	epoch time.Time
	frame Frame
	mu    float64
	pos   coord.Cart
	vel   coord.Cart
	elems *elements // set when built from an element array
}

// elements remembers the array an orbit was built from, so that mapping
// back with the same type and angle is exact.
type elements struct {
	typ   Type
	angle PositionAngle
	arr   [6]float64
}

// NewCartesianOrbit validates frame and mu and builds an orbit.
func NewCartesianOrbit(pos, vel coord.Cart, frame Frame, epoch time.Time, mu float64) (*Orbit, error) {
	if frame.IsZero() {
		return nil, ErrFrameUnset
	}
	if !(mu > 0) || math.IsInf(mu, 0) {
		return nil, errors.Wrapf(ErrInvalidMu, "mu = %g", mu)
	}
	for _, x := range []float64{pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.Wrapf(ErrInvalidOrbitState, "non-finite PV %v %v", pos, vel)
		}
	}
	if pos.Square() == 0 {
		return nil, errors.Wrap(ErrInvalidOrbitState, "zero position")
	}
	return &Orbit{epoch: epoch, frame: frame, mu: mu, pos: pos, vel: vel}, nil
}

func (o *Orbit) Epoch() time.Time { return o.epoch }
func (o *Orbit) Frame() Frame { return o.frame }
func (o *Orbit) Mu() float64 { return o.mu }
func (o *Orbit) Position() coord.Cart { return o.pos }
func (o *Orbit) Velocity() coord.Cart { return o.vel }

// A returns the semi-major axis from the vis-viva energy.
func (o *Orbit) A() float64 {
	r := math.Sqrt(o.pos.Square())
	return 1 / (2/r - o.vel.Square()/o.mu)
}

// KeplerianMeanMotion is sqrt(mu/a³), rad/s.
func (o *Orbit) KeplerianMeanMotion() float64 {
	a := math.Abs(o.A())
	return math.Sqrt(o.mu / (a * a * a))
}

// KeplerianPeriod is the two-body period in seconds.
func (o *Orbit) KeplerianPeriod() float64 {
	return 2 * math.Pi / o.KeplerianMeanMotion()
}

// Shifted returns the two-body orbit dt seconds later.
func (o *Orbit) Shifted(dt float64) (*Orbit, error) {
	k, err := fromCartesian(&o.pos, &o.vel, o.mu)
	if err != nil {
		return nil, err
	}
	m := eccentricToMean(trueToEccentric(k.v, k.e), k.e)
	m += o.KeplerianMeanMotion() * dt
	ecc, err := meanToEccentric(m, k.e)
	if err != nil {
		return nil, err
	}
	k.v = eccentricToTrue(ecc, k.e)
	pos, vel := k.toCartesian(o.mu)
	epoch := o.epoch.Add(time.Duration(dt * float64(time.Second)))
	return NewCartesianOrbit(pos, vel, o.frame, epoch, o.mu)
}

// WithEpoch returns the same PV labeled with another epoch.
func (o *Orbit) WithEpoch(t time.Time) *Orbit {
	c := *o
	c.epoch = t
	return &c
}
