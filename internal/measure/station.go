// Public domain.

package measure

import (
	"math"
	"time"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/saukf/internal/orbit"
)

// GroundStation is a tracking station fixed on the rotating Earth.
//
// The inertial position rotates the station by Greenwich mean sidereal
// time only; precession, nutation and polar motion are ignored.
type GroundStation struct {
	Name     string
	Lat, Lon unit.Angle
	Height   float64 // m above the ellipsoid

	rhoSin, rhoCos float64 // m
}

// NewGroundStation computes the geocentric parallax constants of the
// station on the IAU 1976 ellipsoid.
func NewGroundStation(name string, lat, lon unit.Angle, height float64) *GroundStation {
	s, c := globe.Earth76.ParallaxConstants(lat, height)
	er := globe.Earth76.Er * 1000
	return &GroundStation{
		Name:   name,
		Lat:    lat,
		Lon:    lon,
		Height: height,
		rhoSin: s * er,
		rhoCos: c * er,
	}
}

// LocalSiderealAngle is GMST plus east longitude, radians.
func (g *GroundStation) LocalSiderealAngle(t time.Time) float64 {
	gmst := float64(sidereal.Mean(julian.TimeToJD(t))) / 86400 * 2 * math.Pi
	return gmst + g.Lon.Rad()
}

// PV returns the inertial position and velocity of the station at t.
func (g *GroundStation) PV(t time.Time) PV {
	st, ct := math.Sincos(g.LocalSiderealAngle(t))
	p := coord.Cart{X: g.rhoCos * ct, Y: g.rhoCos * st, Z: g.rhoSin}
	return PV{
		P: p,
		V: coord.Cart{X: -orbit.EarthOmega * p.Y, Y: orbit.EarthOmega * p.X},
	}
}

// Elevation of the point p, inertial, seen from the station at t.
func (g *GroundStation) Elevation(t time.Time, p coord.Cart) unit.Angle {
	s := g.PV(t)
	var d coord.Cart
	d.Sub(&p, &s.P)
	// local zenith of the geocentric direction is close enough for masks
	up := s.P
	up.MulScalar(&up, 1/math.Sqrt(up.Square()))
	return unit.Angle(math.Asin(d.Dot(&up) / math.Sqrt(d.Square())))
}
