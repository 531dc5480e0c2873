// Public domain.

package dsst

import (
	"math"
	"sync"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// CentralAttraction is the name of the gravitational parameter driver.
const CentralAttraction = "central attraction coefficient"

// ZonalJ2 is the Earth oblateness perturbation to first order in J2.
type ZonalJ2 struct {
	j2, re float64
	mu     *param.Driver
}

// NewZonalJ2 returns the J2 model with an unselected mu driver.
func NewZonalJ2(mu, j2, re float64) (*ZonalJ2, error) {
	d, err := param.NewDriver(CentralAttraction, mu, math.Ldexp(1, 32), 0, math.Inf(1))
	if err != nil {
		return nil, err
	}
	return &ZonalJ2{j2: j2, re: re, mu: d}, nil
}

func (z *ZonalJ2) Name() string { return "J2" }

func (z *ZonalJ2) Parameters() []*param.Driver { return []*param.Driver{z.mu} }

// MeanElementRates returns the secular drift of node, perigee and mean
// anomaly.
func (z *ZonalJ2) MeanElementRates(mean *orbit.State) (r [6]float64, err error) {
	x, err := newAux(mean.Orbit())
	if err != nil {
		return
	}
	n := math.Sqrt(z.mu.Value() / (x.a * x.a * x.a))
	p := x.a * x.eta * x.eta
	k := 1.5 * z.j2 * (z.re / p) * (z.re / p) * n
	t2 := x.eq[3]*x.eq[3] + x.eq[4]*x.eq[4] // tan²(i/2)
	ci := (1 - t2) / (1 + t2)
	s2i := 1 - ci*ci

	dRaan := -k * ci
	dPa := k * (2 - 2.5*s2i)
	dM := k * x.eta * (1 - 1.5*s2i)
	dLp := dPa + dRaan

	r[1] = -x.eq[2] * dLp
	r[2] = x.eq[1] * dLp
	r[3] = -x.eq[4] * dRaan
	r[4] = x.eq[3] * dRaan
	r[5] = dM + dLp
	return
}

// InitializeShortPeriodTerms returns the semi-major axis terms with
// coefficients frozen at mean.
func (z *ZonalJ2) InitializeShortPeriodTerms(mean *orbit.State) ShortPeriodTerms {
	t := &j2Terms{z: z}
	t.Update(mean)
	return t
}

// j2Terms is the Brouwer short-period variation of the semi-major axis.
type j2Terms struct {
	z      *ZonalJ2
	lock   sync.RWMutex
	ok     bool
	gamma  float64 // J2 Re² / 2a
	c0, c2 float64 // 3cos²i - 1, 3sin²i
	eta3   float64 // η⁻³
}

func (t *j2Terms) Update(mean *orbit.State) {
	z := t.z
	x, err := newAux(mean.Orbit())
	t.lock.Lock()
	defer t.lock.Unlock()
	if err != nil {
		t.ok = false
		return
	}
	t2 := x.eq[3]*x.eq[3] + x.eq[4]*x.eq[4]
	ci := (1 - t2) / (1 + t2)
	t.gamma = z.j2 * z.re * z.re / (2 * x.a)
	t.c0 = 3*ci*ci - 1
	t.c2 = 3 * (1 - ci*ci)
	t.eta3 = 1 / (x.eta * x.eta * x.eta)
	t.ok = true
}

func (t *j2Terms) Value(mean *orbit.State) (v [6]float64, err error) {
	k, err := orbit.Keplerian.MapOrbitToArray(mean.Orbit(), orbit.True)
	if err != nil {
		return
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	if !t.ok {
		return
	}
	a, e, anom := k[0], k[1], k[5]
	r := a * (1 - e*e) / (1 + e*math.Cos(anom))
	ar3 := (a / r) * (a / r) * (a / r)
	u := k[3] + anom
	v[0] = t.gamma * (t.c0*(ar3-t.eta3) + t.c2*ar3*math.Cos(2*u))
	return
}
