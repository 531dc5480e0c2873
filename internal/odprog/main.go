// Public domain.

// Package odprog is the saukf program: it simulates tracking of a
// satellite described by a scenario file and estimates its orbit back
// from the measurements.
package odprog

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/soniakeys/exit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	xrand "golang.org/x/exp/rand"
)

const versionString = "saukf version 0.1 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()

	cl := parseCommandLine()
	if cl.v {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		return
	}
	log, err := newLogger(cl.debug)
	if err != nil {
		exit.Log(err)
	}
	defer log.Sync()

	sc, err := ReadScenario(cl.fnScenario)
	if err != nil {
		exit.Log(err)
	}
	rep, err := Run(sc, newRand(cl.seed), log)
	if err != nil {
		exit.Log(err)
	}
	if err := rep.Write(os.Stdout); err != nil {
		exit.Log(err)
	}
}

type commandLine struct {
	fnScenario string
	seed       uint64
	debug      bool
	v          bool
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dh := flag.Bool("h", false, "")
	flag.BoolVar(&cl.v, "v", false, "")
	flag.BoolVar(&cl.debug, "debug", false, "")
	flag.StringVar(&cl.fnScenario, "c", "", "")
	flag.Uint64Var(&cl.seed, "seed", 3, "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: saukf [options]        simulate and estimate the default scenario
       saukf -c <file>        simulate and estimate a scenario file
       saukf -h               display help and quick reference
       saukf -v               display version and copyright

Options:
       -c <scenario-file>
       -seed <n>              noise seed, 0 for a random seed
       -debug                 log every filter step
`)
	}
	flag.Parse()
	switch {
	case *dh:
		printHelp()
		os.Exit(0)
	case flag.NArg() != 0:
		flag.Usage()
		os.Exit(1)
	}
	return &cl
}

// newRand returns a PCG generator, repeatable unless seed is 0.
func newRand(seed uint64) *xrand.Rand {
	rnd := xrand.New(&xrand.PCGSource{})
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd.Seed(seed)
	return rnd
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func printHelp() {
	fmt.Println(`
Saukf simulates ground station and GNSS tracking of an Earth satellite and
estimates the orbit and force model parameters back with a semi-analytical
unscented Kalman filter.  Output is the estimated mean orbit at the last
measurement, estimated parameters, and residual statistics.

Scenario file keys (YAML):
   epoch            RFC 3339 time of the reference orbit
   orbit            a (km), e, i, pa, raan, anomaly (degrees, mean)
   osculating       orbit is osculating rather than mean
   mass             kg
   truth_offset     added to orbit to get the simulated truth
   forces           j2, drag {cd, area, rho0, h0, scale_height, estimate},
                    srp {cr, area, estimate}
   stations         list of {name, lat, lon (degrees), alt (m)}
   measurements     count, spacing, min_elevation, types, sigma, noise,
                    range_bias {value, sigma, estimate}
   filter           position_scale, initial_sigma, process_noise,
                    merwe {alpha, beta, kappa}, parallel
   outlier          enabled, dynamic, warmup, max_sigma

Measurement types:
   range  range_rate  radec  position`)
}
