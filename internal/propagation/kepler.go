package propagation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
)

const keplerMaxIter = 10

// meanElements are the secularly and long-period updated elements handed
// to the shared Keplerian-to-Cartesian stage.
type meanElements struct {
	a     float64 // semi-major axis, earth radii
	e     float64
	xl    float64 // mean longitude
	omega float64 // argument of perigee
	xnode float64 // right ascension of ascending node
	xinc  float64 // inclination
}

// checkEccentricity applies the eccentricity domain guard. Values a hair
// below zero come from drag on near-circular orbits and are clamped.
func checkEccentricity(tsince, e float64) (float64, error) {
	if e >= 1 || e < -1e-3 {
		return e, &DecayedError{Tsince: tsince, Reason: "eccentricity out of range"}
	}
	if e < earth.E6A {
		e = earth.E6A
	}
	return e, nil
}

// finish applies long-period periodics, solves Kepler's equation, adds the
// short-period periodics, and rotates the result into the inertial frame.
// On decay the partially filled state is returned with the error.
func (c *common) finish(tsince float64, m meanElements) (state, error) {
	beta := math.Sqrt(1 - m.e*m.e)
	xn := earth.XKE / math.Pow(m.a, 1.5)

	// Long-period periodics.
	axn := m.e * math.Cos(m.omega)
	temp := 1 / (m.a * beta * beta)
	xll := temp * c.xlcof * axn
	aynl := temp * c.aycof
	xlt := m.xl + xll
	ayn := m.e*math.Sin(m.omega) + aynl

	st := state{
		incl:  m.xinc,
		raan:  earth.Mod2Pi(m.xnode),
		argp:  earth.Mod2Pi(m.omega),
		phase: earth.Mod2Pi(xlt - m.xnode - m.omega + earth.TwoPi),
	}

	// Kepler's equation, Newton iteration. The trig terms of the last
	// iterate evaluated are the ones carried forward.
	capu := earth.Mod2Pi(xlt - m.xnode)
	epw := capu
	var sinepw, cosepw, temp3, temp4, temp5, temp6 float64
	for i := 0; i < keplerMaxIter; i++ {
		sinepw = math.Sin(epw)
		cosepw = math.Cos(epw)
		temp3 = axn * sinepw
		temp4 = ayn * cosepw
		temp5 = axn * cosepw
		temp6 = ayn * sinepw
		next := (capu-temp4+temp3-epw)/(1-temp5-temp6) + epw
		if math.Abs(next-epw) <= earth.E6A {
			break
		}
		epw = next
	}

	// Short-period preliminary quantities.
	ecose := temp5 + temp6
	esine := temp3 - temp4
	elsq := axn*axn + ayn*ayn
	pl := m.a * (1 - elsq)
	if pl <= 0 {
		return st, &DecayedError{Tsince: tsince, Reason: "semi-latus rectum not positive"}
	}
	r := m.a * (1 - ecose)
	rinv := 1 / r
	rdot := earth.XKE * math.Sqrt(m.a) * esine * rinv
	rfdot := earth.XKE * math.Sqrt(pl) * rinv
	ar := m.a * rinv
	betal := math.Sqrt(1 - elsq)
	bterm := 1 / (1 + betal)
	cosu := ar * (cosepw - axn + ayn*esine*bterm)
	sinu := ar * (sinepw - ayn - axn*esine*bterm)
	u := math.Atan2(sinu, cosu)
	sin2u := 2 * sinu * cosu
	cos2u := 2*cosu*cosu - 1

	temp1 := earth.CK2 / pl
	temp2 := temp1 / pl

	// Short-period periodics.
	rk := r*(1-1.5*temp2*betal*c.x3thm1) + 0.5*temp1*c.x1mth2*cos2u
	uk := u - 0.25*temp2*c.x7thm1*sin2u
	xnodek := m.xnode + 1.5*temp2*c.cosio*sin2u
	xinck := m.xinc + 1.5*temp2*c.cosio*c.sinio*cos2u
	rdotk := rdot - xn*temp1*c.x1mth2*sin2u
	rfdotk := rfdot + xn*temp1*(c.x1mth2*cos2u+1.5*c.x3thm1)

	// Orientation vectors.
	sinuk, cosuk := math.Sin(uk), math.Cos(uk)
	sinik, cosik := math.Sin(xinck), math.Cos(xinck)
	sinnok, cosnok := math.Sin(xnodek), math.Cos(xnodek)
	xmx := -sinnok * cosik
	xmy := cosnok * cosik
	uvec := r3.Vec{
		X: xmx*sinuk + cosnok*cosuk,
		Y: xmy*sinuk + sinnok*cosuk,
		Z: sinik * sinuk,
	}
	vvec := r3.Vec{
		X: xmx*cosuk - cosnok*sinuk,
		Y: xmy*cosuk - sinnok*sinuk,
		Z: sinik * cosuk,
	}

	st.pos = r3.Scale(rk*earth.XKMPER/earth.AE, uvec)
	st.vel = r3.Scale(earth.XKMPER/earth.AE/60, r3.Add(r3.Scale(rdotk, uvec), r3.Scale(rfdotk, vvec)))
	st.incl = xinck
	st.raan = earth.Mod2Pi(xnodek)

	if rk < earth.AE {
		return st, &DecayedError{Tsince: tsince, Radius: rk * earth.XKMPER, Reason: "below the earth's surface"}
	}
	return st, nil
}
