// Public domain.

package orbit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/kepler"
	"github.com/soniakeys/unit"
)

// Type is an orbital element set.
type Type int

const (
	Cartesian Type = iota
	Keplerian
	Circular
	Equinoctial
)

var typeNames = [...]string{"CARTESIAN", "KEPLERIAN", "CIRCULAR", "EQUINOCTIAL"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType accepts a type name in any case.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if strings.EqualFold(s, n) {
			return Type(i), nil
		}
	}
	return 0, errors.Errorf("unknown orbit type %q", s)
}

// PositionAngle is the anomaly convention of the last element.
type PositionAngle int

const (
	Mean PositionAngle = iota
	Eccentric
	True
)

var angleNames = [...]string{"MEAN", "ECCENTRIC", "TRUE"}

func (a PositionAngle) String() string {
	if a < 0 || int(a) >= len(angleNames) {
		return fmt.Sprintf("PositionAngle(%d)", int(a))
	}
	return angleNames[a]
}

// ParsePositionAngle accepts a convention name in any case.
func ParsePositionAngle(s string) (PositionAngle, error) {
	for i, n := range angleNames {
		if strings.EqualFold(s, n) {
			return PositionAngle(i), nil
		}
	}
	return 0, errors.Errorf("unknown position angle %q", s)
}

// Names returns the conventional parameter names of the six elements.
func (t Type) Names(a PositionAngle) [6]string {
	suffix := [...]string{"M", "E", "v"}[a]
	switch t {
	case Keplerian:
		return [6]string{"a", "e", "i", "ω", "Ω", suffix}
	case Circular:
		return [6]string{"a", "ex", "ey", "i", "Ω", "α" + suffix}
	case Equinoctial:
		return [6]string{"a", "ex", "ey", "hx", "hy", "L" + suffix}
	}
	return [6]string{"x", "y", "z", "vx", "vy", "vz"}
}

// angular reports which elements of the set are angles that wrap.
func (t Type) angular() [6]bool {
	switch t {
	case Keplerian:
		return [6]bool{false, false, false, true, true, true}
	case Circular:
		return [6]bool{false, false, false, false, true, true}
	case Equinoctial:
		return [6]bool{false, false, false, false, false, true}
	}
	return [6]bool{}
}

// keplerian elements with true anomaly, radians.
type keplerian struct {
	a, e, i, pa, raan, v float64
}

func (k *keplerian) toCartesian(mu float64) (pos, vel coord.Cart) {
	sO, cO := math.Sincos(k.raan)
	sw, cw := math.Sincos(k.pa)
	si, ci := math.Sincos(k.i)
	p := coord.Cart{
		X: cO*cw - sO*sw*ci,
		Y: sO*cw + cO*sw*ci,
		Z: sw * si,
	}
	q := coord.Cart{
		X: -cO*sw - sO*cw*ci,
		Y: -sO*sw + cO*cw*ci,
		Z: cw * si,
	}
	sl := k.a * (1 - k.e*k.e)
	sv, cv := math.Sincos(k.v)
	r := sl / (1 + k.e*cv)
	pos = coord.Cart{
		X: r * (cv*p.X + sv*q.X),
		Y: r * (cv*p.Y + sv*q.Y),
		Z: r * (cv*p.Z + sv*q.Z),
	}
	f := math.Sqrt(mu / sl)
	vel = coord.Cart{
		X: f * (-sv*p.X + (k.e+cv)*q.X),
		Y: f * (-sv*p.Y + (k.e+cv)*q.Y),
		Z: f * (-sv*p.Z + (k.e+cv)*q.Z),
	}
	return
}

// thresholds below which node and perigee are undefined
const (
	circularLimit   = 1e-12
	equatorialLimit = 1e-12
)

func fromCartesian(pos, vel *coord.Cart, mu float64) (k keplerian, err error) {
	r := math.Sqrt(pos.Square())
	v2 := vel.Square()
	k.a = 1 / (2/r - v2/mu)
	if !(k.a > 0) || math.IsInf(k.a, 0) {
		return k, errors.Wrapf(ErrInvalidOrbitState, "non elliptic orbit, a = %g", k.a)
	}
	var h coord.Cart
	h.Cross(pos, vel)
	hm := math.Sqrt(h.Square())
	if hm == 0 {
		return k, errors.Wrap(ErrInvalidOrbitState, "rectilinear orbit")
	}

	// eccentricity vector
	rv := pos.Dot(vel)
	var ev, t coord.Cart
	ev.MulScalar(pos, v2-mu/r)
	t.MulScalar(vel, rv)
	ev.Sub(&ev, &t)
	ev.MulScalar(&ev, 1/mu)
	k.e = math.Sqrt(ev.Square())
	if k.e >= 1 {
		return k, errors.Wrapf(ErrInvalidOrbitState, "non elliptic orbit, e = %g", k.e)
	}
	k.i = math.Atan2(math.Hypot(h.X, h.Y), h.Z)

	// node line n, and m completing the in-plane basis
	n := coord.Cart{X: 1}
	if nm := math.Hypot(h.X, h.Y); nm > equatorialLimit*hm {
		k.raan = math.Atan2(h.X, -h.Y)
		n = coord.Cart{X: -h.Y / nm, Y: h.X / nm}
	}
	var w, m coord.Cart
	w.MulScalar(&h, 1/hm)
	m.Cross(&w, &n)

	u := math.Atan2(pos.Dot(&m), pos.Dot(&n))
	if k.e > circularLimit {
		k.pa = math.Atan2(ev.Dot(&m), ev.Dot(&n))
	}
	k.raan = unit.PMod(k.raan, 2*math.Pi)
	k.pa = unit.PMod(k.pa, 2*math.Pi)
	k.v = unit.PMod(u-k.pa, 2*math.Pi)
	return k, nil
}

func trueToEccentric(v, e float64) float64 {
	sv, cv := math.Sincos(v)
	return math.Atan2(math.Sqrt(1-e*e)*sv, e+cv)
}

func eccentricToMean(ecc, e float64) float64 {
	return ecc - e*math.Sin(ecc)
}

func meanToEccentric(m, e float64) (float64, error) {
	ecc, err := kepler.Kepler2(e, unit.Angle(m), 12)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidOrbitState, "Kepler equation, e = %g, M = %g: %v", e, m, err)
	}
	return ecc.Rad(), nil
}

func eccentricToTrue(ecc, e float64) float64 {
	return kepler.True(unit.Angle(ecc), e).Rad()
}

// anomalyToTrue converts an anomaly of convention a to true anomaly.
func anomalyToTrue(x, e float64, a PositionAngle) (float64, error) {
	switch a {
	case Mean:
		ecc, err := meanToEccentric(x, e)
		if err != nil {
			return 0, err
		}
		return eccentricToTrue(ecc, e), nil
	case Eccentric:
		return eccentricToTrue(x, e), nil
	}
	return x, nil
}

// trueToAnomaly converts true anomaly v to convention a.
func trueToAnomaly(v, e float64, a PositionAngle) float64 {
	switch a {
	case Mean:
		return eccentricToMean(trueToEccentric(v, e), e)
	case Eccentric:
		return trueToEccentric(v, e)
	}
	return v
}

// MapArrayToOrbit builds an orbit from six elements of type t, with the
// anomaly-like element in convention a.
func (t Type) MapArrayToOrbit(arr []float64, a PositionAngle, epoch time.Time, mu float64, frame Frame) (*Orbit, error) {
	if len(arr) != 6 {
		return nil, errors.Wrapf(ErrInvalidOrbitState, "%d elements, want 6", len(arr))
	}
	for _, x := range arr {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.Wrapf(ErrInvalidOrbitState, "non-finite %v elements %v", t, arr)
		}
	}
	if t == Cartesian {
		return NewCartesianOrbit(
			coord.Cart{X: arr[0], Y: arr[1], Z: arr[2]},
			coord.Cart{X: arr[3], Y: arr[4], Z: arr[5]},
			frame, epoch, mu)
	}
	var k keplerian
	var anomaly float64
	switch t {
	case Keplerian:
		k = keplerian{a: arr[0], e: arr[1], i: arr[2], pa: arr[3], raan: arr[4]}
		anomaly = arr[5]
	case Circular:
		k = keplerian{a: arr[0], e: math.Hypot(arr[1], arr[2]), i: arr[3], raan: arr[4]}
		k.pa = math.Atan2(arr[2], arr[1])
		anomaly = arr[5] - k.pa
	case Equinoctial:
		k.a = arr[0]
		k.e = math.Hypot(arr[1], arr[2])
		k.i = 2 * math.Atan(math.Hypot(arr[3], arr[4]))
		k.raan = math.Atan2(arr[4], arr[3])
		lp := math.Atan2(arr[2], arr[1])
		k.pa = lp - k.raan
		anomaly = arr[5] - lp
	default:
		return nil, errors.Errorf("unknown orbit type %v", t)
	}
	if !(k.a > 0) || k.e < 0 || k.e >= 1 {
		return nil, errors.Wrapf(ErrInvalidOrbitState, "non elliptic %v elements %v", t, arr)
	}
	if t == Keplerian && (k.i < 0 || k.i > math.Pi) {
		return nil, errors.Wrapf(ErrInvalidOrbitState, "inclination %g out of range", k.i)
	}
	v, err := anomalyToTrue(anomaly, k.e, a)
	if err != nil {
		return nil, err
	}
	k.v = v
	pos, vel := k.toCartesian(mu)
	o, err := NewCartesianOrbit(pos, vel, frame, epoch, mu)
	if err != nil {
		return nil, err
	}
	o.elems = &elements{typ: t, angle: a}
	copy(o.elems.arr[:], arr)
	return o, nil
}

// MapOrbitToArray returns the six elements of type t of orbit o, with the
// anomaly-like element in convention a.
func (t Type) MapOrbitToArray(o *Orbit, a PositionAngle) ([]float64, error) {
	if e := o.elems; e != nil && e.typ == t && e.angle == a {
		return append([]float64(nil), e.arr[:]...), nil
	}
	if t == Cartesian {
		return []float64{o.pos.X, o.pos.Y, o.pos.Z, o.vel.X, o.vel.Y, o.vel.Z}, nil
	}
	k, err := fromCartesian(&o.pos, &o.vel, o.mu)
	if err != nil {
		return nil, err
	}
	anomaly := trueToAnomaly(k.v, k.e, a)
	switch t {
	case Keplerian:
		return []float64{k.a, k.e, k.i, k.pa, k.raan, unit.PMod(anomaly, 2*math.Pi)}, nil
	case Circular:
		se, ce := math.Sincos(k.pa)
		return []float64{k.a, k.e * ce, k.e * se, k.i, k.raan,
			unit.PMod(k.pa+anomaly, 2*math.Pi)}, nil
	case Equinoctial:
		lp := k.pa + k.raan
		sl, cl := math.Sincos(lp)
		so, co := math.Sincos(k.raan)
		th := math.Tan(k.i / 2)
		return []float64{k.a, k.e * cl, k.e * sl, th * co, th * so,
			unit.PMod(lp+anomaly, 2*math.Pi)}, nil
	}
	return nil, errors.Errorf("unknown orbit type %v", t)
}

// wrap returns x reduced to (-π, π].
func wrap(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	switch {
	case x > math.Pi:
		x -= 2 * math.Pi
	case x <= -math.Pi:
		x += 2 * math.Pi
	}
	return x
}

// Normalize returns x shifted by whole turns into (ref-π, ref+π].
func Normalize(x, ref float64) float64 {
	return ref + wrap(x-ref)
}
