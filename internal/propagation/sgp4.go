package propagation

import (
	"math"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/tle"
)

// nearEarth is the SGP4 model for periods under 225 minutes. All fields
// are fixed at init, so one value may be propagated from many goroutines.
type nearEarth struct {
	common

	// simple is set for perigees below 220 km, where the higher-order
	// drag terms are dropped.
	simple bool

	c3, c5              float64
	d2, d3, d4          float64
	t3cof, t4cof, t5cof float64
	omgcof, xmcof       float64
	delmo, sinmo        float64
}

func newNearEarth(el *tle.Elements) *nearEarth {
	m := &nearEarth{common: newCommon(el)}
	c := &m.common

	m.simple = c.aodp*(1-c.eo)/earth.AE < 220/earth.XKMPER+earth.AE

	if c.eo > 1e-4 {
		m.c3 = c.coef * c.tsi * earth.A3OVK2 * c.xnodp * earth.AE * c.sinio / c.eo
	}
	m.c5 = 2 * c.coef1 * c.aodp * c.betao2 * (1 + 2.75*(c.etasq+c.eeta) + c.eeta*c.etasq)
	m.omgcof = c.bstar * m.c3 * math.Cos(c.omegao)
	if c.eo > 1e-4 {
		m.xmcof = -earth.TwoThirds * c.coef * c.bstar * earth.AE / c.eeta
	}
	m.delmo = math.Pow(1+c.eta*math.Cos(c.xmo), 3)
	m.sinmo = math.Sin(c.xmo)

	if !m.simple {
		c1sq := c.c1 * c.c1
		m.d2 = 4 * c.aodp * c.tsi * c1sq
		temp := m.d2 * c.tsi * c.c1 / 3
		m.d3 = (17*c.aodp + c.s4) * temp
		m.d4 = 0.5 * temp * c.aodp * c.tsi * (221*c.aodp + 31*c.s4) * c.c1
		m.t3cof = m.d2 + 2*c1sq
		m.t4cof = 0.25 * (3*m.d3 + c.c1*(12*m.d2+10*c1sq))
		m.t5cof = 0.2 * (3*m.d4 + 12*c.c1*m.d3 + 6*m.d2*m.d2 + 15*c1sq*(2*m.d2+c1sq))
	}
	return m
}

// propagate runs SGP4 to tsince minutes from epoch.
func (m *nearEarth) propagate(tsince float64) (state, error) {
	c := &m.common

	// Secular gravity and atmospheric drag.
	xmdf := c.xmo + c.xmdot*tsince
	omgadf := c.omegao + c.omgdot*tsince
	xnoddf := c.xnodeo + c.xnodot*tsince
	omega := omgadf
	xmp := xmdf
	tsq := tsince * tsince
	xnode := xnoddf + c.xnodcf*tsq
	tempa := 1 - c.c1*tsince
	tempe := c.bstar * c.c4 * tsince
	templ := c.t2cof * tsq

	if !m.simple {
		delomg := m.omgcof * tsince
		delm := m.xmcof * (math.Pow(1+c.eta*math.Cos(xmdf), 3) - m.delmo)
		temp := delomg + delm
		xmp = xmdf + temp
		omega = omgadf - temp
		tcube := tsq * tsince
		tfour := tsince * tcube
		tempa = tempa - m.d2*tsq - m.d3*tcube - m.d4*tfour
		tempe = tempe + c.bstar*m.c5*(math.Sin(xmp)-m.sinmo)
		templ = templ + m.t3cof*tcube + tfour*(m.t4cof+tsince*m.t5cof)
	}

	if tempa <= 0 {
		return state{}, &DecayedError{Tsince: tsince, Reason: "drag exhausted the semi-major axis"}
	}

	e, err := checkEccentricity(tsince, c.eo-tempe)
	if err != nil {
		return state{}, err
	}

	return c.finish(tsince, meanElements{
		a:     c.aodp * tempa * tempa,
		e:     e,
		xl:    xmp + omega + xnode + c.xnodp*templ,
		omega: omega,
		xnode: xnode,
		xinc:  c.xincl,
	})
}

// clone returns m itself: the near-earth model has no mutable state.
func (m *nearEarth) clone() model { return m }
