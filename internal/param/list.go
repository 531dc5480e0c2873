// Public domain.

package param

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrSelectionConflict is returned when a driver is merged into a column
// of the same name but with a different selection state.
var ErrSelectionConflict = errors.New("parameter selection conflict")

// Column is one estimated scalar.  Several physical drivers sharing a name
// are sinks of the same column; a correction is written to all of them.
type Column struct {
	name  string
	sinks []*Driver
}

// Name returns the column name, shared by all sinks.
func (c *Column) Name() string { return c.name }

// Drivers returns the physical sinks in the order they were added.
func (c *Column) Drivers() []*Driver { return c.sinks }

// Value returns the value of the first sink.  Sinks are kept in sync by
// SetValue so any would do.
func (c *Column) Value() float64 { return c.sinks[0].Value() }

// SetValue writes v to every sink.  Each sink clips to its own bounds.
func (c *Column) SetValue(v float64) {
	for _, d := range c.sinks {
		d.SetValue(v)
	}
}

func (c *Column) Scale() float64 { return c.sinks[0].Scale() }
func (c *Column) IsSelected() bool { return c.sinks[0].IsSelected() }

// SetSelected changes the selection of every sink.
func (c *Column) SetSelected(sel bool) {
	for _, d := range c.sinks {
		d.SetSelected(sel)
	}
}

// DefaultReferenceDate sets t as reference date on every sink lacking one.
func (c *Column) DefaultReferenceDate(t time.Time) {
	for _, d := range c.sinks {
		d.DefaultReferenceDate(t)
	}
}

// List is an ordered collection of columns.  Insertion order is column
// order until Sort is called.
type List struct {
	columns []*Column
	index   map[string]int
}

// NewList returns an empty list.
func NewList() *List {
	return &List{index: make(map[string]int)}
}

// Add appends d as a new column, or as a sink of the existing column with
// the same name.  Merged drivers take the column's current value.
func (l *List) Add(d *Driver) error {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if x, ok := l.index[d.Name()]; ok {
		c := l.columns[x]
		for _, s := range c.sinks {
			if s == d {
				return nil
			}
		}
		if c.IsSelected() != d.IsSelected() {
			return errors.Wrapf(ErrSelectionConflict, "driver %q", d.Name())
		}
		d.SetValue(c.Value())
		c.sinks = append(c.sinks, d)
		return nil
	}
	l.index[d.Name()] = len(l.columns)
	l.columns = append(l.columns, &Column{name: d.Name(), sinks: []*Driver{d}})
	return nil
}

// AddAll adds every driver in turn, stopping at the first error.
func (l *List) AddAll(ds ...*Driver) error {
	for _, d := range ds {
		if err := l.Add(d); err != nil {
			return err
		}
	}
	return nil
}

// Columns returns the columns in order.
func (l *List) Columns() []*Column { return l.columns }

// Len is the number of columns, selected or not.
func (l *List) Len() int { return len(l.columns) }

// NbParams is the number of selected columns.
func (l *List) NbParams() (n int) {
	for _, c := range l.columns {
		if c.IsSelected() {
			n++
		}
	}
	return
}

// Find returns the column with the given name, or nil.
func (l *List) Find(name string) *Column {
	if x, ok := l.index[name]; ok {
		return l.columns[x]
	}
	return nil
}

// Selected returns a new list sharing the selected columns' drivers.
func (l *List) Selected() *List {
	s := NewList()
	for _, c := range l.columns {
		if c.IsSelected() {
			s.index[c.name] = len(s.columns)
			s.columns = append(s.columns, c)
		}
	}
	return s
}

// Sort orders columns lexicographically by name.
func (l *List) Sort() {
	sort.SliceStable(l.columns, func(i, j int) bool {
		return l.columns[i].name < l.columns[j].name
	})
	for i, c := range l.columns {
		l.index[c.name] = i
	}
}

// Names returns the column names in order.
func (l *List) Names() []string {
	n := make([]string, len(l.columns))
	for i, c := range l.columns {
		n[i] = c.name
	}
	return n
}

func (l *List) String() string {
	return "[" + strings.Join(l.Names(), ", ") + "]"
}
