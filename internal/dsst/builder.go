// Public domain.

package dsst

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/soniakeys/saukf/internal/orbit"
	"github.com/soniakeys/saukf/internal/param"
)

// Builder holds the reference orbit as six orbital drivers plus the
// drivers of its force models, and builds propagators from their current
// values.
type Builder struct {
	date    time.Time
	typ     PropagationType
	mu      float64
	frame   orbit.Frame
	mass    float64
	step    float64
	forces  []ForceModel
	orbital *param.List
	prop    *param.List
}

// NewBuilder returns a builder for initial, interpreted according to typ.
// Orbital driver scales are derived from positionScale, m.  Orbital
// drivers are selected, force model drivers keep their selection.
func NewBuilder(initial *orbit.State, typ PropagationType, positionScale float64, forces ...ForceModel) (*Builder, error) {
	if !(positionScale > 0) {
		return nil, errors.Errorf("position scale %g", positionScale)
	}
	o := initial.Orbit()
	arr, err := ElementType.MapOrbitToArray(o, ElementAngle)
	if err != nil {
		return nil, err
	}
	scales, err := elementScales(o, positionScale)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		date:    o.Epoch(),
		typ:     typ,
		mu:      o.Mu(),
		frame:   o.Frame(),
		mass:    initial.Mass(),
		step:    DefaultStep,
		forces:  forces,
		orbital: param.NewList(),
		prop:    param.NewList(),
	}
	bounds := [6][2]float64{
		{0, math.Inf(1)},
		{-1, 1},
		{-1, 1},
		{math.Inf(-1), math.Inf(1)},
		{math.Inf(-1), math.Inf(1)},
		{math.Inf(-1), math.Inf(1)},
	}
	for i, name := range ElementType.Names(ElementAngle) {
		d, err := param.NewDriver(name, arr[i], scales[i], bounds[i][0], bounds[i][1])
		if err != nil {
			return nil, err
		}
		d.SetSelected(true)
		d.SetReferenceDate(b.date)
		if err := b.orbital.Add(d); err != nil {
			return nil, err
		}
	}
	for _, f := range forces {
		if err := b.prop.AddAll(f.Parameters()...); err != nil {
			return nil, errors.Wrapf(err, "force model %s", f.Name())
		}
	}
	return b, nil
}

// elementScales maps a position scale, and the matching velocity scale,
// through the Jacobian of the elements.
func elementScales(o *orbit.Orbit, dp float64) ([6]float64, error) {
	var s [6]float64
	j, err := ElementType.JacobianWrtCartesian(o, ElementAngle)
	if err != nil {
		return s, err
	}
	pos, vel := o.Position(), o.Velocity()
	dv := dp * math.Sqrt(vel.Square()/pos.Square())
	for i := range s {
		var sum float64
		for c := 0; c < 6; c++ {
			d := dp
			if c >= 3 {
				d = dv
			}
			x := j.At(i, c) * d
			sum += x * x
		}
		s[i] = math.Sqrt(sum)
		if s[i] == 0 || math.IsNaN(s[i]) {
			s[i] = 1
		}
	}
	return s, nil
}

func (b *Builder) InitialOrbitDate() time.Time { return b.date }
func (b *Builder) Mu() float64 { return b.mu }
func (b *Builder) Frame() orbit.Frame { return b.frame }
func (b *Builder) OrbitType() orbit.Type { return ElementType }
func (b *Builder) PositionAngle() orbit.PositionAngle { return ElementAngle }
func (b *Builder) ForceModels() []ForceModel { return b.forces }

// OrbitalParameters returns the six orbital drivers in element order.
func (b *Builder) OrbitalParameters() *param.List { return b.orbital }

// PropagationParameters returns the force model drivers, merged by name.
func (b *Builder) PropagationParameters() *param.List { return b.prop }

// SetStep changes the integration step of built propagators.
func (b *Builder) SetStep(step float64) { b.step = step }

// ResetOrbit moves the reference orbit, and the initial date, to o.
func (b *Builder) ResetOrbit(o *orbit.Orbit, typ PropagationType) error {
	arr, err := ElementType.MapOrbitToArray(o, ElementAngle)
	if err != nil {
		return err
	}
	for i, c := range b.orbital.Columns() {
		c.SetValue(arr[i])
	}
	b.date = o.Epoch()
	b.typ = typ
	return nil
}

// Orbit returns the orbit described by the current orbital driver values.
func (b *Builder) Orbit() (*orbit.Orbit, error) {
	cols := b.orbital.Columns()
	arr := make([]float64, len(cols))
	for i, c := range cols {
		arr[i] = c.Value()
	}
	return ElementType.MapArrayToOrbit(arr, ElementAngle, b.date, b.mu, b.frame)
}

// BuildPropagator returns a propagator from the current driver values.
func (b *Builder) BuildPropagator() (*Propagator, error) {
	o, err := b.Orbit()
	if err != nil {
		return nil, err
	}
	s := orbit.NewState(o).WithMass(b.mass)
	return NewPropagator(s, b.typ, b.step, b.forces...)
}
