/*
Command saukf simulates tracking of an Earth satellite and estimates its
orbit back from the simulated measurements with a semi-analytical unscented
Kalman filter.

Contents

  Program overview
  Command line usage
  Scenario file
  Algorithm outline


Program overview

Input is a scenario file in YAML describing a reference orbit, the force
models, a set of ground stations and a measurement schedule.  The program
offsets the reference orbit to get a truth orbit, propagates the truth and
generates range, range rate, right ascension/declination and GNSS position
measurements, optionally with Gaussian noise.  It then runs the filter over
the measurements, starting from the reference orbit, and reports the
estimated mean orbit at the last measurement, the estimated force model and
measurement parameters, and residual statistics.

Without -c the program runs a built in scenario: a 500 km orbit tracked
for three hours by three stations with ranges and angles, drag coefficient
and a range bias estimated.  The report has four parts: estimated mean
Keplerian elements and the position error of the estimated mean orbit
against the truth, estimated parameters with their standard deviations,
residual RMS and rejection counts per measurement type, and the total
number of rejected measurements.


Command line usage

  Usage: saukf [options]        simulate and estimate the default scenario
         saukf -c <file>        simulate and estimate a scenario file
         saukf -h               display help and quick reference
         saukf -v               display version and copyright

  Options:
         -c <scenario-file>
         -seed <n>              noise seed, 0 for a random seed
         -debug                 log every filter step

The default seed is 3 so that runs are repeatable.  Logging goes to stderr,
the report to stdout.


Scenario file

Units are km for the semi-major axis, degrees for angles, meters and seconds
otherwise.  A minimal file:

  epoch: 2024-03-01T12:00:00Z
  orbit: {a: 7000, e: 0.001, i: 51.6, pa: 30, raan: 60, anomaly: 10}
  forces:
    j2: true
  stations:
    - {name: toulouse, lat: 43.56, lon: 1.48, alt: 150}
  measurements:
    count: 120
    spacing: 30s
    types: [range, radec]
    sigma: {range: 10, angle: 5}

Errors in the file are all reported at once.  saukf -h lists the keys.


Algorithm outline

The filter estimates a correction to a nominal mean orbit rather than the
orbit itself.  The nominal mean orbit is propagated by integrating the
secular rates of the force models on equinoctial elements.  For each
measurement the nominal orbit is brought to the measurement date and the
short-period terms of the force models are evaluated about it.  Each sigma
point of the unscented transform is turned into an osculating orbit as
nominal mean elements plus correction plus short-period terms, and the
measurement is evaluated on it.  Force model coefficients and measurement
biases may be estimated with the orbit; their corrections are pushed back
into the models at the end of the batch.

Measurements may be rejected by an outlier filter using either the
theoretical sigma of the measurement or, dynamically, the innovation
covariance of the filter.  A rejected measurement leaves the estimate as it
was.
*/
package main
