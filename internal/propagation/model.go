package propagation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/tle"
)

// model is implemented by the near-earth and deep-space propagators.
type model interface {
	propagate(tsince float64) (state, error)
	clone() model
}

// state is the raw osculating output of one propagation step.
type state struct {
	pos, vel r3.Vec // km, km/s, TEME
	incl     float64
	raan     float64
	argp     float64
	phase    float64
}

// common holds the epoch elements in model units and the secular
// coefficients shared by SGP4 and SDP4. It is immutable after init.
type common struct {
	// Epoch elements, radians and rad/min.
	xmo, xnodeo, omegao, eo, xincl, bstar float64

	// Recovered (Brouwer) mean motion and semi-major axis.
	xnodp, aodp float64

	cosio, sinio, theta2, x3thm1, x1mth2, x7thm1 float64
	eosq, betao, betao2                          float64

	// Perigee-dependent density parameters.
	s4, qoms24 float64

	tsi, eta, etasq, eeta, psisq, coef, coef1 float64

	c1, c2, c4 float64

	xmdot, omgdot, xnodot, xnodcf, t2cof, xlcof, aycof float64
}

func newCommon(el *tle.Elements) common {
	c := common{
		xmo:    earth.Rad(el.MeanAnomaly),
		xnodeo: earth.Rad(el.RAAN),
		omegao: earth.Rad(el.ArgPerigee),
		eo:     el.Eccentricity,
		xincl:  earth.Rad(el.Inclination),
		bstar:  el.BStar,
		xnodp:  el.RecoveredMeanMotion(),
		aodp:   el.RecoveredSemiMajorAxis(),
	}

	c.cosio = math.Cos(c.xincl)
	c.sinio = math.Sin(c.xincl)
	c.theta2 = c.cosio * c.cosio
	c.x3thm1 = 3*c.theta2 - 1
	c.x1mth2 = 1 - c.theta2
	c.x7thm1 = 7*c.theta2 - 1
	c.eosq = c.eo * c.eo
	c.betao2 = 1 - c.eosq
	c.betao = math.Sqrt(c.betao2)

	// Low perigees get a lower density reference altitude.
	c.s4 = earth.S
	c.qoms24 = earth.QOMS2T
	perigee := (c.aodp*(1-c.eo) - earth.AE) * earth.XKMPER
	if perigee < 156 {
		s4 := perigee - 78
		if perigee <= 98 {
			s4 = 20
		}
		c.qoms24 = math.Pow((120-s4)*earth.AE/earth.XKMPER, 4)
		c.s4 = s4/earth.XKMPER + earth.AE
	}

	pinvsq := 1 / (c.aodp * c.aodp * c.betao2 * c.betao2)
	c.tsi = 1 / (c.aodp - c.s4)
	c.eta = c.aodp * c.eo * c.tsi
	c.etasq = c.eta * c.eta
	c.eeta = c.eo * c.eta
	c.psisq = math.Abs(1 - c.etasq)
	c.coef = c.qoms24 * math.Pow(c.tsi, 4)
	c.coef1 = c.coef / math.Pow(c.psisq, 3.5)

	c.c2 = c.coef1 * c.xnodp * (c.aodp*(1+1.5*c.etasq+c.eeta*(4+c.etasq)) +
		0.75*earth.CK2*c.tsi/c.psisq*c.x3thm1*(8+3*c.etasq*(8+c.etasq)))
	c.c1 = c.bstar * c.c2
	c.c4 = 2 * c.xnodp * c.coef1 * c.aodp * c.betao2 *
		(c.eta*(2+0.5*c.etasq) + c.eo*(0.5+2*c.etasq) -
			2*earth.CK2*c.tsi/(c.aodp*c.psisq)*
				(-3*c.x3thm1*(1-2*c.eeta+c.etasq*(1.5-0.5*c.eeta))+
					0.75*c.x1mth2*(2*c.etasq-c.eeta*(1+c.etasq))*math.Cos(2*c.omegao)))

	theta4 := c.theta2 * c.theta2
	temp1 := 3 * earth.CK2 * pinvsq * c.xnodp
	temp2 := temp1 * earth.CK2 * pinvsq
	temp3 := 1.25 * earth.CK4 * pinvsq * pinvsq * c.xnodp

	c.xmdot = c.xnodp + 0.5*temp1*c.betao*c.x3thm1 +
		0.0625*temp2*c.betao*(13-78*c.theta2+137*theta4)
	x1m5th := 1 - 5*c.theta2
	c.omgdot = -0.5*temp1*x1m5th + 0.0625*temp2*(7-114*c.theta2+395*theta4) +
		temp3*(3-36*c.theta2+49*theta4)
	xhdot1 := -temp1 * c.cosio
	c.xnodot = xhdot1 + (0.5*temp2*(4-19*c.theta2)+2*temp3*(3-7*c.theta2))*c.cosio
	c.xnodcf = 3.5 * c.betao2 * xhdot1 * c.c1
	c.t2cof = 1.5 * c.c1

	// Guard the 1/(1+cos i) singularity for retrograde equatorial orbits.
	div := 1 + c.cosio
	if math.Abs(div) < 1.5e-12 {
		div = 1.5e-12
	}
	c.xlcof = 0.125 * earth.A3OVK2 * c.sinio * (3 + 5*c.cosio) / div
	c.aycof = 0.25 * earth.A3OVK2 * c.sinio

	return c
}

