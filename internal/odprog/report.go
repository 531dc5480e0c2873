// Public domain.

package odprog

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/soniakeys/unit"
)

// Residuals summarizes the corrected residuals of one measurement type.
type Residuals struct {
	Type        string
	N, Rejected int

	sumSq float64
	n     int // components
}

// RMS of accepted residual components, in the unit of the measurement.
func (r Residuals) RMS() float64 {
	if r.n == 0 {
		return 0
	}
	return math.Sqrt(r.sumSq / float64(r.n))
}

// Estimated is the final value of an estimated parameter and its
// standard deviation.
type Estimated struct {
	Name         string
	Value, Sigma float64
}

// Report is the outcome of a run.
type Report struct {
	Epoch         time.Time
	Elements      [6]float64 // mean Keplerian, SI and radians
	PositionError float64    // mean position against truth, m
	Parameters    []Estimated
	Residuals     []Residuals
	Trace         float64 // of the final covariance
}

// Rejected counts rejected measurements of all types.
func (r *Report) Rejected() (n int) {
	for _, s := range r.Residuals {
		n += s.Rejected
	}
	return
}

func (r *Report) Write(w io.Writer) error {
	pr := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}
	pr("Estimated mean orbit at %s\n", r.Epoch.Format(time.RFC3339))
	pr("   a    %14.3f km\n", r.Elements[0]/1000)
	pr("   e    %14.7f\n", r.Elements[1])
	for i, n := range []string{"i", "ω", "Ω", "M"} {
		pr("   %-4s %14.6f°\n", n, unit.Angle(r.Elements[2+i]).Deg())
	}
	pr("Position error %.3f m\n", r.PositionError)
	if len(r.Parameters) > 0 {
		pr("Parameters\n")
		for _, p := range r.Parameters {
			pr("   %-24s %14.6g ± %.3g\n", p.Name, p.Value, p.Sigma)
		}
	}
	pr("Residuals\n")
	for _, s := range r.Residuals {
		rms := fmt.Sprintf("%.4g", s.RMS())
		if s.Type == TypeRaDec {
			rms = fmt.Sprintf("%.3f\"", unit.Angle(s.RMS()).Sec())
		}
		pr("   %-10s %5d  rejected %4d  RMS %s\n", s.Type, s.N, s.Rejected, rms)
	}
	_, err := fmt.Fprintf(w, "Rejected %d\n", r.Rejected())
	return err
}
