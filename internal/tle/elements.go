package tle

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/julian"
)

// Model selects the perturbation theory used for an element set.
type Model int

const (
	// ModelNearEarth is SGP4, for periods under 225 minutes.
	ModelNearEarth Model = iota
	// ModelDeepSpace is SDP4, for periods of 225 minutes or more.
	ModelDeepSpace
)

func (m Model) String() string {
	if m == ModelDeepSpace {
		return "deep-space"
	}
	return "near-earth"
}

// deepSpacePeriod is the period, in days, at or above which SDP4 is used.
const deepSpacePeriod = 225.0 / earth.MinutesPerDay

const lineLength = 69

// Elements is a parsed two-line element set. It is immutable once returned
// by ParseElements.
type Elements struct {
	Name           string
	CatalogNumber  int
	Classification byte
	Designator     string

	EpochYear int     // four-digit year
	EpochDay  float64 // fractional day of year, 1.0 = Jan 1 00:00 UTC
	EpochJD   float64

	Inclination    float64 // degrees
	RAAN           float64 // degrees
	Eccentricity   float64
	ArgPerigee     float64 // degrees
	MeanAnomaly    float64 // degrees
	MeanMotion     float64 // revolutions per day
	MeanMotionDot  float64 // first derivative / 2, rev/day^2
	MeanMotionDDot float64 // second derivative / 6, rev/day^3
	BStar          float64 // drag term, inverse earth radii
	ElementNumber  int
	RevAtEpoch     int

	Model Model

	// Un-Kozai'd mean motion (rad/min) and semi-major axis (earth radii).
	recoveredMeanMotion float64
	recoveredAxis       float64

	Line1 string
	Line2 string
}

// Epoch returns the element set epoch as a UTC time.
func (e *Elements) Epoch() time.Time {
	return julian.FromJD(e.EpochJD).Time()
}

// EpochDate returns the epoch on the continuous day count.
func (e *Elements) EpochDate() julian.Date {
	return julian.FromJD(e.EpochJD)
}

// MeanMotionRad returns the Brouwer mean motion in rad/min.
func (e *Elements) MeanMotionRad() float64 {
	return e.MeanMotion * earth.TwoPi / earth.MinutesPerDay
}

// RecoveredMeanMotion returns the original mean motion in rad/min.
func (e *Elements) RecoveredMeanMotion() float64 { return e.recoveredMeanMotion }

// RecoveredSemiMajorAxis returns the original semi-major axis in earth radii.
func (e *Elements) RecoveredSemiMajorAxis() float64 { return e.recoveredAxis }

// Period returns the orbital period derived from the recovered mean motion.
func (e *Elements) Period() time.Duration {
	minutes := earth.TwoPi / e.recoveredMeanMotion
	return time.Duration(minutes * float64(time.Minute))
}

// semiMajorAxisKm approximates the semi-major axis from the mean motion.
func (e *Elements) semiMajorAxisKm() float64 {
	return 331.25 * math.Exp(math.Log(earth.MinutesPerDay/e.MeanMotion)*earth.TwoThirds)
}

// Apogee returns the apogee altitude in km.
func (e *Elements) Apogee() float64 {
	return e.semiMajorAxisKm()*(1+e.Eccentricity) - earth.RadiusKm
}

// Perigee returns the perigee altitude in km.
func (e *Elements) Perigee() float64 {
	return e.semiMajorAxisKm()*(1-e.Eccentricity) - earth.RadiusKm
}

// ParseElements parses a NORAD two-line element set. Any problem is reported
// as a *FormatError.
func ParseElements(name, line1, line2 string) (*Elements, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")

	if err := checkLine(line1, 1); err != nil {
		return nil, err
	}
	if err := checkLine(line2, 2); err != nil {
		return nil, err
	}

	el := &Elements{
		Name:           strings.TrimSpace(name),
		Classification: line1[7],
		Designator:     strings.TrimSpace(line1[9:17]),
		Line1:          line1,
		Line2:          line2,
	}

	var err error
	if el.CatalogNumber, err = intField(line1, 1, "catalog number", 2, 7); err != nil {
		return nil, err
	}
	cat2, err := intField(line2, 2, "catalog number", 2, 7)
	if err != nil {
		return nil, err
	}
	if cat2 != el.CatalogNumber {
		return nil, &FormatError{Reason: "catalog numbers differ between lines"}
	}

	yy, err := intField(line1, 1, "epoch year", 18, 20)
	if err != nil {
		return nil, err
	}
	if yy < 57 {
		el.EpochYear = 2000 + yy
	} else {
		el.EpochYear = 1900 + yy
	}
	if el.EpochDay, err = floatField(line1, 1, "epoch day", 20, 32); err != nil {
		return nil, err
	}
	if el.EpochDay < 1 || el.EpochDay >= 367 {
		return nil, &FormatError{Line: 1, Field: "epoch day", Reason: "out of range"}
	}
	el.EpochJD = julian.EpochJD(el.EpochYear, el.EpochDay)

	if el.MeanMotionDot, err = floatField(line1, 1, "mean motion derivative", 33, 43); err != nil {
		return nil, err
	}
	if el.MeanMotionDDot, err = impliedField(line1, 1, "mean motion second derivative", 44, 52); err != nil {
		return nil, err
	}
	if el.BStar, err = impliedField(line1, 1, "drag term", 53, 61); err != nil {
		return nil, err
	}
	if el.ElementNumber, err = optionalInt(line1, 1, "element number", 64, 68); err != nil {
		return nil, err
	}

	if el.Inclination, err = floatField(line2, 2, "inclination", 8, 16); err != nil {
		return nil, err
	}
	if el.RAAN, err = floatField(line2, 2, "right ascension", 17, 25); err != nil {
		return nil, err
	}
	ecc, err := intField(line2, 2, "eccentricity", 26, 33)
	if err != nil {
		return nil, err
	}
	el.Eccentricity = float64(ecc) * 1e-7
	if el.ArgPerigee, err = floatField(line2, 2, "argument of perigee", 34, 42); err != nil {
		return nil, err
	}
	if el.MeanAnomaly, err = floatField(line2, 2, "mean anomaly", 43, 51); err != nil {
		return nil, err
	}
	if el.MeanMotion, err = floatField(line2, 2, "mean motion", 52, 63); err != nil {
		return nil, err
	}
	if el.MeanMotion <= 0 {
		return nil, &FormatError{Line: 2, Field: "mean motion", Reason: "must be positive"}
	}
	if el.RevAtEpoch, err = optionalInt(line2, 2, "revolution number", 63, 68); err != nil {
		return nil, err
	}

	el.recoverMeanMotion()
	if earth.TwoPi/el.recoveredMeanMotion/earth.MinutesPerDay >= deepSpacePeriod {
		el.Model = ModelDeepSpace
	} else {
		el.Model = ModelNearEarth
	}
	return el, nil
}

// recoverMeanMotion removes the J2 contribution folded into the published
// (Kozai) mean motion.
func (e *Elements) recoverMeanMotion() {
	xno := e.MeanMotionRad()
	cosio := math.Cos(earth.Rad(e.Inclination))
	theta2 := cosio * cosio
	x3thm1 := 3*theta2 - 1
	eosq := e.Eccentricity * e.Eccentricity
	betao2 := 1 - eosq
	betao := math.Sqrt(betao2)

	a1 := math.Pow(earth.XKE/xno, earth.TwoThirds)
	del1 := 1.5 * earth.CK2 * x3thm1 / (a1 * a1 * betao * betao2)
	ao := a1 * (1 - del1*(0.5*earth.TwoThirds+del1*(1+134.0/81.0*del1)))
	delo := 1.5 * earth.CK2 * x3thm1 / (ao * ao * betao * betao2)

	e.recoveredMeanMotion = xno / (1 + delo)
	e.recoveredAxis = ao / (1 - delo)
}

func checkLine(line string, n int) error {
	if len(line) != lineLength {
		return &FormatError{Line: n, Reason: "length " + strconv.Itoa(len(line)) + ", want 69"}
	}
	if line[0] != byte('0'+n) || line[1] != ' ' {
		return &FormatError{Line: n, Reason: "bad line number"}
	}
	want := int(line[68] - '0')
	if want < 0 || want > 9 {
		return &FormatError{Line: n, Field: "checksum", Reason: "not a digit"}
	}
	if got := Checksum(line); got != want {
		return &FormatError{Line: n, Field: "checksum", Reason: "got " + strconv.Itoa(got) + ", line says " + strconv.Itoa(want)}
	}
	return nil
}

// Checksum computes the modulo-10 checksum of the first 68 columns.
// Digits count their value and '-' counts one.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < 68; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func intField(line string, n int, field string, from, to int) (int, error) {
	s := strings.TrimSpace(line[from:to])
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &FormatError{Line: n, Field: field, Reason: "malformed integer", Err: err}
	}
	return v, nil
}

func optionalInt(line string, n int, field string, from, to int) (int, error) {
	if strings.TrimSpace(line[from:to]) == "" {
		return 0, nil
	}
	return intField(line, n, field, from, to)
}

func floatField(line string, n int, field string, from, to int) (float64, error) {
	s := strings.TrimSpace(line[from:to])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &FormatError{Line: n, Field: field, Reason: "malformed number", Err: err}
	}
	return v, nil
}

// impliedField parses the "±NNNNN±E" notation: a mantissa with an implied
// leading decimal point and a one-digit power of ten.
func impliedField(line string, n int, field string, from, to int) (float64, error) {
	s := strings.TrimSpace(line[from:to])
	if s == "" {
		return 0, nil
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) < 3 {
		return 0, &FormatError{Line: n, Field: field, Reason: "too short"}
	}
	mant, exp := s[:len(s)-2], s[len(s)-2:]
	if exp[0] != '-' && exp[0] != '+' && exp[0] != ' ' {
		return 0, &FormatError{Line: n, Field: field, Reason: "missing exponent sign"}
	}
	m, err := strconv.ParseFloat("0."+strings.TrimSpace(mant), 64)
	if err != nil {
		return 0, &FormatError{Line: n, Field: field, Reason: "malformed mantissa", Err: err}
	}
	x, err := strconv.Atoi(strings.TrimLeft(exp, " +"))
	if err != nil {
		return 0, &FormatError{Line: n, Field: field, Reason: "malformed exponent", Err: err}
	}
	return sign * m * math.Pow10(x), nil
}
