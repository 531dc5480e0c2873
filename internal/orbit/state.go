// Public domain.

package orbit

import "time"

// DefaultMass is the mass given to states built without one, kg.
const DefaultMass = 1000.

// State is an immutable spacecraft state: an orbit plus mass and named
// additional states.  The With methods return modified copies.
type State struct {
	orbit      *Orbit
	mass       float64
	additional map[string][]float64
}

// NewState wraps o with the default mass.
func NewState(o *Orbit) *State {
	return &State{orbit: o, mass: DefaultMass}
}

func (s *State) Orbit() *Orbit { return s.orbit }
func (s *State) Date() time.Time { return s.orbit.epoch }
func (s *State) Mass() float64 { return s.mass }

// Additional returns a copy of the named additional state.
func (s *State) Additional(name string) ([]float64, bool) {
	v, ok := s.additional[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), v...), true
}

// AdditionalNames lists additional state names, in no particular order.
func (s *State) AdditionalNames() []string {
	n := make([]string, 0, len(s.additional))
	for k := range s.additional {
		n = append(n, k)
	}
	return n
}

func (s *State) clone() *State {
	c := *s
	if s.additional != nil {
		c.additional = make(map[string][]float64, len(s.additional))
		for k, v := range s.additional {
			c.additional[k] = v
		}
	}
	return &c
}

func (s *State) WithMass(m float64) *State {
	c := s.clone()
	c.mass = m
	return c
}

// WithOrbit replaces the orbit, keeping mass and additional states.
func (s *State) WithOrbit(o *Orbit) *State {
	c := s.clone()
	c.orbit = o
	return c
}

// WithAdditional stores a copy of v under name.
func (s *State) WithAdditional(name string, v []float64) *State {
	c := s.clone()
	if c.additional == nil {
		c.additional = make(map[string][]float64)
	}
	c.additional[name] = append([]float64(nil), v...)
	return c
}
