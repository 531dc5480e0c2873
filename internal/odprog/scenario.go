// Public domain.

package odprog

import (
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/soniakeys/unit"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/soniakeys/saukf/internal/dsst"
	"github.com/soniakeys/saukf/internal/measure"
	"github.com/soniakeys/saukf/internal/orbit"
)

// degrees is an angle written in degrees in the scenario file.
type degrees unit.Angle

func (d *degrees) UnmarshalYAML(n *yaml.Node) error {
	var f float64
	if err := n.Decode(&f); err != nil {
		return err
	}
	*d = degrees(unit.AngleFromDeg(f))
	return nil
}

func (d degrees) Angle() unit.Angle { return unit.Angle(d) }

// arcsec is an angle written in arc seconds.
type arcsec unit.Angle

func (s *arcsec) UnmarshalYAML(n *yaml.Node) error {
	var f float64
	if err := n.Decode(&f); err != nil {
		return err
	}
	*s = arcsec(unit.AngleFromSec(f))
	return nil
}

func (s arcsec) Angle() unit.Angle { return unit.Angle(s) }

// Elements are Keplerian elements, km and degrees, anomaly mean.
type Elements struct {
	A       float64 `yaml:"a"`
	E       float64 `yaml:"e"`
	I       degrees `yaml:"i"`
	PA      degrees `yaml:"pa"`
	RAAN    degrees `yaml:"raan"`
	Anomaly degrees `yaml:"anomaly"`
}

func (e Elements) array() []float64 {
	return []float64{e.A * 1000, e.E, e.I.Angle().Rad(), e.PA.Angle().Rad(),
		e.RAAN.Angle().Rad(), e.Anomaly.Angle().Rad()}
}

// Drag configures the atmospheric drag model.
type Drag struct {
	Cd          float64 `yaml:"cd"`
	Area        float64 `yaml:"area"`
	Rho0        float64 `yaml:"rho0"`
	H0          float64 `yaml:"h0"`           // km
	ScaleHeight float64 `yaml:"scale_height"` // km
	Estimate    bool    `yaml:"estimate"`
}

// SRP configures solar radiation pressure.
type SRP struct {
	Cr       float64 `yaml:"cr"`
	Area     float64 `yaml:"area"`
	Estimate bool    `yaml:"estimate"`
}

type Forces struct {
	J2   bool  `yaml:"j2"`
	Drag *Drag `yaml:"drag"`
	SRP  *SRP  `yaml:"srp"`
}

type Station struct {
	Name string  `yaml:"name"`
	Lat  degrees `yaml:"lat"`
	Lon  degrees `yaml:"lon"`
	Alt  float64 `yaml:"alt"` // m
}

// Sigmas are the theoretical measurement standard deviations.
type Sigmas struct {
	Range     float64 `yaml:"range"`      // m
	RangeRate float64 `yaml:"range_rate"` // m/s
	Angle     arcsec  `yaml:"angle"`
	Position  float64 `yaml:"position"` // m
}

// Bias is a range bias, common to every station.
type Bias struct {
	Value    float64 `yaml:"value"` // m, applied by the simulator
	Sigma    float64 `yaml:"sigma"` // m, initial uncertainty
	Estimate bool    `yaml:"estimate"`
}

// Measurement type names accepted in the schedule.
const (
	TypeRange     = "range"
	TypeRangeRate = "range_rate"
	TypeRaDec     = "radec"
	TypePosition  = "position"
)

type Schedule struct {
	Count        int           `yaml:"count"`
	Spacing      time.Duration `yaml:"spacing"`
	MinElevation degrees       `yaml:"min_elevation"`
	Types        []string      `yaml:"types"`
	Sigma        Sigmas        `yaml:"sigma"`
	Noise        bool          `yaml:"noise"`
	RangeBias    *Bias         `yaml:"range_bias"`
}

type Merwe struct {
	Alpha float64  `yaml:"alpha"`
	Beta  float64  `yaml:"beta"`
	Kappa *float64 `yaml:"kappa"` // default 3 - n
}

// ProcessNoise gives LOF standard deviations as polynomials of the time
// between measurements, s.
type ProcessNoise struct {
	LOF         string    `yaml:"lof"`
	Position    []float64 `yaml:"position"`    // m
	Velocity    []float64 `yaml:"velocity"`    // m/s
	Propagation []float64 `yaml:"propagation"` // fraction of the driver scale
}

type Filter struct {
	PositionScale float64       `yaml:"position_scale"` // m
	InitialSigma  float64       `yaml:"initial_sigma"`  // multiple of the driver scales
	ProcessNoise  *ProcessNoise `yaml:"process_noise"`
	Merwe         *Merwe        `yaml:"merwe"`
	Parallel      int           `yaml:"parallel"`
}

type Outlier struct {
	Enabled  bool    `yaml:"enabled"`
	Dynamic  bool    `yaml:"dynamic"`
	Warmup   int     `yaml:"warmup"`
	MaxSigma float64 `yaml:"max_sigma"`
}

// Scenario is a complete simulation and estimation run.
type Scenario struct {
	Epoch       time.Time `yaml:"epoch"`
	Orbit       Elements  `yaml:"orbit"`
	Osculating  bool      `yaml:"osculating"`
	Mass        float64   `yaml:"mass"`
	TruthOffset Elements  `yaml:"truth_offset"`
	Forces      Forces    `yaml:"forces"`
	Stations    []Station `yaml:"stations"`
	Schedule    Schedule  `yaml:"measurements"`
	Filter      Filter    `yaml:"filter"`
	Outlier     Outlier   `yaml:"outlier"`
}

// DefaultScenario is used without -c: three stations, ranges and angles of
// a LEO orbit with J2 and drag.
const DefaultScenario = `
epoch: 2024-03-01T12:00:00Z
orbit: {a: 6878.137, e: 0.001, i: 51.6, pa: 30, raan: 60, anomaly: 0}
truth_offset: {a: 0.05, anomaly: 0.001}
forces:
  j2: true
  drag: {cd: 2.2, area: 4, rho0: 2.8e-12, h0: 400, scale_height: 58, estimate: true}
stations:
  - {name: toulouse, lat: 43.56, lon: 1.48, alt: 150}
  - {name: kourou, lat: 5.25, lon: -52.8, alt: 15}
  - {name: svalbard, lat: 78.23, lon: 15.4, alt: 500}
measurements:
  count: 360
  spacing: 30s
  min_elevation: 5
  types: [range, radec]
  sigma: {range: 10, range_rate: 0.01, angle: 5, position: 10}
  noise: true
  range_bias: {value: 15, sigma: 20, estimate: true}
filter:
  position_scale: 10
  initial_sigma: 100
  process_noise: {lof: QSW, position: [0, 1e-4], velocity: [0, 1e-7], propagation: [1e-3]}
outlier: {enabled: true, dynamic: true, warmup: 10, max_sigma: 5}
`

// ParseScenario decodes and validates a scenario, applying defaults.
func ParseScenario(r io.Reader) (*Scenario, error) {
	s := &Scenario{Mass: orbit.DefaultMass}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, errors.Wrap(err, "scenario")
	}
	s.defaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadScenario reads the scenario file fn, or the default scenario when
// fn is empty.
func ReadScenario(fn string) (*Scenario, error) {
	if fn == "" {
		return ParseScenario(strings.NewReader(DefaultScenario))
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ParseScenario(f)
	return s, errors.Wrap(err, fn)
}

func (s *Scenario) defaults() {
	if s.Filter.PositionScale == 0 {
		s.Filter.PositionScale = 10
	}
	if s.Filter.InitialSigma == 0 {
		s.Filter.InitialSigma = 1
	}
	if s.Schedule.Spacing == 0 {
		s.Schedule.Spacing = time.Minute
	}
	if len(s.Schedule.Types) == 0 {
		s.Schedule.Types = []string{TypeRange, TypeRaDec}
	}
	if pn := s.Filter.ProcessNoise; pn != nil && pn.LOF == "" {
		pn.LOF = orbit.QSW.String()
	}
	if m := s.Filter.Merwe; m != nil {
		if m.Alpha == 0 {
			m.Alpha = 0.5
		}
		if m.Beta == 0 {
			m.Beta = 2
		}
	}
	if s.Outlier.MaxSigma == 0 {
		s.Outlier.MaxSigma = 5
	}
}

// Validate reports every problem found, not just the first.
func (s *Scenario) Validate() (err error) {
	add := func(format string, args ...interface{}) {
		err = multierr.Append(err, errors.Errorf(format, args...))
	}
	if s.Epoch.IsZero() {
		add("epoch not set")
	}
	if !(s.Orbit.A > 0) {
		add("orbit: semi-major axis %g km", s.Orbit.A)
	}
	if s.Orbit.E < 0 || s.Orbit.E >= 1 {
		add("orbit: eccentricity %g", s.Orbit.E)
	}
	if e := s.Orbit.E + s.TruthOffset.E; e < 0 || e >= 1 {
		add("truth offset: eccentricity %g", e)
	}
	if !(s.Mass > 0) {
		add("mass %g kg", s.Mass)
	}
	if d := s.Forces.Drag; d != nil && (!(d.Area > 0) || !(d.ScaleHeight > 0) || d.Rho0 < 0) {
		add("drag: area %g, density %g, scale height %g", d.Area, d.Rho0, d.ScaleHeight)
	}
	if p := s.Forces.SRP; p != nil && !(p.Area > 0) {
		add("srp: area %g", p.Area)
	}
	needStation := false
	for _, t := range s.Schedule.Types {
		switch t {
		case TypeRange, TypeRangeRate, TypeRaDec:
			needStation = true
		case TypePosition:
		default:
			add("measurements: unknown type %q", t)
		}
	}
	if needStation && len(s.Stations) == 0 {
		add("measurements: ground based types without stations")
	}
	names := map[string]bool{}
	for i, st := range s.Stations {
		if st.Name == "" {
			add("station %d: no name", i)
		} else if names[st.Name] {
			add("station %s: duplicate", st.Name)
		}
		names[st.Name] = true
		if math.Abs(st.Lat.Angle().Deg()) > 90 {
			add("station %s: latitude %g", st.Name, st.Lat.Angle().Deg())
		}
	}
	sc := s.Schedule
	if sc.Count <= 0 {
		add("measurements: count %d", sc.Count)
	}
	if sc.Spacing < 0 {
		add("measurements: negative spacing %v", sc.Spacing)
	}
	for _, t := range sc.Types {
		var sig float64
		switch t {
		case TypeRange:
			sig = sc.Sigma.Range
		case TypeRangeRate:
			sig = sc.Sigma.RangeRate
		case TypeRaDec:
			sig = sc.Sigma.Angle.Angle().Rad()
		case TypePosition:
			sig = sc.Sigma.Position
		default:
			continue
		}
		if !(sig > 0) {
			add("measurements: %s sigma %g", t, sig)
		}
	}
	if b := sc.RangeBias; b != nil && b.Estimate && !(b.Sigma > 0) {
		add("range bias: sigma %g", b.Sigma)
	}
	if !(s.Filter.PositionScale > 0) {
		add("filter: position scale %g", s.Filter.PositionScale)
	}
	if !(s.Filter.InitialSigma > 0) {
		add("filter: initial sigma %g", s.Filter.InitialSigma)
	}
	if pn := s.Filter.ProcessNoise; pn != nil {
		if _, e := orbit.ParseLOFType(pn.LOF); e != nil {
			add("filter: process noise: %v", e)
		}
	}
	if s.Outlier.Enabled && (s.Outlier.Warmup < 0 || !(s.Outlier.MaxSigma > 0)) {
		add("outlier: warmup %d, max sigma %g", s.Outlier.Warmup, s.Outlier.MaxSigma)
	}
	return
}

// Orbits returns the reference orbit of the filter and the offset truth
// orbit.
func (s *Scenario) Orbits() (ref, truth *orbit.State, err error) {
	arr := s.Orbit.array()
	o, err := orbit.Keplerian.MapArrayToOrbit(arr, orbit.Mean, s.Epoch, orbit.EarthMu, orbit.EME2000)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reference orbit")
	}
	off := s.TruthOffset.array()
	for i := range arr {
		arr[i] += off[i]
	}
	t, err := orbit.Keplerian.MapArrayToOrbit(arr, orbit.Mean, s.Epoch, orbit.EarthMu, orbit.EME2000)
	if err != nil {
		return nil, nil, errors.Wrap(err, "truth orbit")
	}
	return orbit.NewState(o).WithMass(s.Mass), orbit.NewState(t).WithMass(s.Mass), nil
}

// ForceModels builds a fresh set of force models.  Estimated drivers are
// selected.
func (s *Scenario) ForceModels() ([]dsst.ForceModel, error) {
	var fs []dsst.ForceModel
	if s.Forces.J2 {
		z, err := dsst.NewZonalJ2(orbit.EarthMu, orbit.EarthJ2, orbit.EarthRadius)
		if err != nil {
			return nil, err
		}
		fs = append(fs, z)
	}
	if d := s.Forces.Drag; d != nil {
		f, err := dsst.NewAtmosphericDrag(d.Cd, d.Area, d.Rho0, d.H0*1000, d.ScaleHeight*1000)
		if err != nil {
			return nil, err
		}
		for _, p := range f.Parameters() {
			p.SetSelected(d.Estimate)
		}
		fs = append(fs, f)
	}
	if p := s.Forces.SRP; p != nil {
		f, err := dsst.NewSolarRadiationPressure(p.Cr, p.Area)
		if err != nil {
			return nil, err
		}
		for _, d := range f.Parameters() {
			d.SetSelected(p.Estimate)
		}
		fs = append(fs, f)
	}
	return fs, nil
}

// PropagationType of the reference orbit.
func (s *Scenario) PropagationType() dsst.PropagationType {
	if s.Osculating {
		return dsst.Osculating
	}
	return dsst.Mean
}

// GroundStations builds the stations in file order.
func (s *Scenario) GroundStations() []*measure.GroundStation {
	gs := make([]*measure.GroundStation, len(s.Stations))
	for i, st := range s.Stations {
		gs[i] = measure.NewGroundStation(st.Name, st.Lat.Angle(), st.Lon.Angle(), st.Alt)
	}
	return gs
}
