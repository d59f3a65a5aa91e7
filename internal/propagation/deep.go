package propagation

import (
	"math"

	"github.com/star/skypass/internal/earth"
	"github.com/star/skypass/internal/tle"
)

// Solar perturbation constants.
const (
	zcosgs = 1.945905e-1
	zsings = -9.8088458e-1
	zcosis = 9.1744867e-1
	zsinis = 3.9785416e-1
	zns    = 1.19459e-5
	c1ss   = 2.9864797e-6
	zes    = 1.675e-2
)

// Lunar perturbation constants.
const (
	znl = 1.5835218e-4
	c1l = 4.7968065e-7
	zel = 5.490e-2
)

// Geopotential resonance constants.
const (
	root22 = 1.7891679e-6
	root32 = 3.7393792e-7
	root44 = 7.3636953e-9
	root52 = 1.1428639e-7
	root54 = 2.1765803e-9
	thdt   = 4.3752691e-3 // earth rotation, rad/min

	q22 = 1.7891679e-6
	q31 = 2.1460748e-6
	q33 = 2.2123015e-7

	g22 = 5.7686396
	g32 = 9.5240898e-1
	g44 = 1.8014998
	g52 = 1.0508330
	g54 = 4.4108898

	fasx2 = 0.13130908
	fasx4 = 2.8843198
	fasx6 = 0.37448087
)

// Resonance integrator step, minutes, and step²/2.
const (
	stepp = 720.0
	stepn = -720.0
	step2 = 259200.0
)

// Mean-motion windows for the resonance classes, rad/min.
const (
	syncLow  = 0.0034906585
	syncHigh = 0.0052359877
	halfLow  = 0.00826
	halfHigh = 0.00924
)

// resonance classifies a deep-space orbit once, at init.
type resonance int

const (
	resonanceNone resonance = iota
	// resonance12h covers eccentric half-day orbits such as Molniya.
	resonance12h
	// resonanceSynchronous covers one-day orbits.
	resonanceSynchronous
)

func (r resonance) String() string {
	switch r {
	case resonance12h:
		return "12h"
	case resonanceSynchronous:
		return "synchronous"
	default:
		return "none"
	}
}

// bodyTerms are the secular rates and periodic coefficients contributed by
// one perturbing body.
type bodyTerms struct {
	se, si, sl, sgh, sh float64

	e2, e3        float64
	i2, i3        float64
	l2, l3, l4    float64
	gh2, gh3, gh4 float64
	h2, h3        float64
}

// deepArgs carries the elements being updated through the secular and
// periodic deep-space stages of one propagation call.
type deepArgs struct {
	xll    float64 // mean anomaly
	omgadf float64 // argument of perigee
	xnode  float64
	em     float64
	xinc   float64
	xn     float64 // mean motion
}

// deepCoeffs is everything SDP4 derives at init. It is never written after
// newDeepCoeffs returns.
type deepCoeffs struct {
	common

	thgr       float64 // Greenwich sidereal angle at epoch
	sing, cosg float64

	sun, moon               bodyTerms
	sse, ssi, ssl, ssg, ssh float64
	zmos, zmol              float64

	res resonance

	// 12h resonance.
	d2201, d2211, d3210, d3222 float64
	d4410, d4422, d5220, d5232 float64
	d5421, d5433               float64

	// Synchronous resonance.
	del1, del2, del3 float64

	xlamo, xfact float64
}

func newDeepCoeffs(el *tle.Elements) *deepCoeffs {
	d := &deepCoeffs{common: newCommon(el)}
	c := &d.common

	// Sidereal angle at the full epoch, days since 1950 Jan 0.0 UT.
	ds50 := el.EpochJD - 2433281.5
	d.thgr = earth.Mod2Pi(6.3003880987*ds50 + 1.72944494)
	d.sing = math.Sin(c.omegao)
	d.cosg = math.Cos(c.omegao)

	sinq := math.Sin(c.xnodeo)
	cosq := math.Cos(c.xnodeo)

	// Lunar orbit orientation, days since 1900 Jan 0.5.
	day := ds50 + 18261.5
	xnodce := 4.5236020 - 9.2422029e-4*day
	stem := math.Sin(xnodce)
	ctem := math.Cos(xnodce)
	zcosil := 0.91375164 - 0.03568096*ctem
	zsinil := math.Sqrt(1 - zcosil*zcosil)
	zsinhl := 0.089683511 * stem / zsinil
	zcoshl := math.Sqrt(1 - zsinhl*zsinhl)
	cc := 4.7199672 + 0.22997150*day
	gam := 5.8351514 + 0.0019443680*day
	d.zmol = earth.Mod2Pi(cc - gam)
	zx := 0.39785416 * stem / zsinil
	zy := zcoshl*ctem + 0.91744867*zsinhl*stem
	zx = gam + math.Atan2(zx, zy) - xnodce
	zcosgl := math.Cos(zx)
	zsingl := math.Sin(zx)
	d.zmos = earth.Mod2Pi(6.2565837 + 0.017201977*day)

	xnoi := 1 / c.xnodp
	d.sun = d.bodyTerms(zcosgs, zsings, zcosis, zsinis, cosq, sinq, c1ss, zns, zes, xnoi)
	d.moon = d.bodyTerms(zcosgl, zsingl, zcosil, zsinil,
		zcoshl*cosq+zsinhl*sinq, sinq*zcoshl-cosq*zsinhl, c1l, znl, zel, xnoi)

	d.sse = d.sun.se + d.moon.se
	d.ssi = d.sun.si + d.moon.si
	d.ssl = d.sun.sl + d.moon.sl
	d.ssh = d.overSinio(d.sun.sh + d.moon.sh)
	d.ssg = d.sun.sgh + d.moon.sgh - c.cosio*d.ssh

	xnq := c.xnodp
	switch {
	case xnq > syncLow && xnq < syncHigh:
		d.res = resonanceSynchronous
		d.initSynchronous()
	case xnq >= halfLow && xnq <= halfHigh && c.eo >= 0.5:
		d.res = resonance12h
		d.init12h()
	}
	return d
}

// overSinio divides by sin(i₀), treating exactly equatorial orbits as
// having no node rate from the third-body terms.
func (d *deepCoeffs) overSinio(x float64) float64 {
	if d.sinio == 0 {
		return 0
	}
	return x / d.sinio
}

func (d *deepCoeffs) bodyTerms(zcosg, zsing, zcosi, zsini, zcosh, zsinh, cc, zn, ze, xnoi float64) bodyTerms {
	c := &d.common
	eosq := c.eosq

	a1 := zcosg*zcosh + zsing*zcosi*zsinh
	a3 := -zsing*zcosh + zcosg*zcosi*zsinh
	a7 := -zcosg*zsinh + zsing*zcosi*zcosh
	a8 := zsing * zsini
	a9 := zsing*zsinh + zcosg*zcosi*zcosh
	a10 := zcosg * zsini
	a2 := c.cosio*a7 + c.sinio*a8
	a4 := c.cosio*a9 + c.sinio*a10
	a5 := -c.sinio*a7 + c.cosio*a8
	a6 := -c.sinio*a9 + c.cosio*a10

	x1 := a1*d.cosg + a2*d.sing
	x2 := a3*d.cosg + a4*d.sing
	x3 := -a1*d.sing + a2*d.cosg
	x4 := -a3*d.sing + a4*d.cosg
	x5 := a5 * d.sing
	x6 := a6 * d.sing
	x7 := a5 * d.cosg
	x8 := a6 * d.cosg

	z31 := 12*x1*x1 - 3*x3*x3
	z32 := 24*x1*x2 - 6*x3*x4
	z33 := 12*x2*x2 - 3*x4*x4
	z1 := 3*(a1*a1+a2*a2) + z31*eosq
	z2 := 6*(a1*a3+a2*a4) + z32*eosq
	z3 := 3*(a3*a3+a4*a4) + z33*eosq
	z11 := -6*a1*a5 + eosq*(-24*x1*x7-6*x3*x5)
	z12 := -6*(a1*a6+a3*a5) + eosq*(-24*(x2*x7+x1*x8)-6*(x3*x6+x4*x5))
	z13 := -6*a3*a6 + eosq*(-24*x2*x8-6*x4*x6)
	z21 := 6*a2*a5 + eosq*(24*x1*x5-6*x3*x7)
	z22 := 6*(a4*a5+a2*a6) + eosq*(24*(x2*x5+x1*x6)-6*(x4*x7+x3*x8))
	z23 := 6*a4*a6 + eosq*(24*x2*x6-6*x4*x8)
	z1 = z1 + z1 + c.betao2*z31
	z2 = z2 + z2 + c.betao2*z32
	z3 = z3 + z3 + c.betao2*z33

	s3 := cc * xnoi
	s2 := -0.5 * s3 / c.betao
	s4 := s3 * c.betao
	s1 := -15 * c.eo * s4
	s5 := x1*x3 + x2*x4
	s6 := x2*x3 + x1*x4
	s7 := x2*x4 - x1*x3

	b := bodyTerms{
		se:  s1 * zn * s5,
		si:  s2 * zn * (z11 + z13),
		sl:  -zn * s3 * (z1 + z3 - 14 - 6*eosq),
		sgh: s4 * zn * (z31 + z33 - 6),
		sh:  -zn * s2 * (z21 + z23),

		e2:  2 * s1 * s6,
		e3:  2 * s1 * s7,
		i2:  2 * s2 * z12,
		i3:  2 * s2 * (z13 - z11),
		l2:  -2 * s3 * z2,
		l3:  -2 * s3 * (z3 - z1),
		l4:  -2 * s3 * (-21 - 9*eosq) * ze,
		gh2: 2 * s4 * z32,
		gh3: 2 * s4 * (z33 - z31),
		gh4: -18 * s4 * ze,
		h2:  -2 * s2 * z22,
		h3:  -2 * s2 * (z23 - z21),
	}
	// Below 3° the node rate is ill-conditioned.
	if c.xincl < 5.2359877e-2 {
		b.sh = 0
	}
	return b
}

func (d *deepCoeffs) initSynchronous() {
	c := &d.common
	xnq := c.xnodp
	aqnv := 1 / c.aodp

	g200 := 1 + c.eosq*(-2.5+0.8125*c.eosq)
	g310 := 1 + 2*c.eosq
	g300 := 1 + c.eosq*(-6+6.60937*c.eosq)
	f220 := 0.75 * (1 + c.cosio) * (1 + c.cosio)
	f311 := 0.9375*c.sinio*c.sinio*(1+3*c.cosio) - 0.75*(1+c.cosio)
	f330 := 1 + c.cosio
	f330 = 1.875 * f330 * f330 * f330

	del1 := 3 * xnq * xnq * aqnv * aqnv
	d.del2 = 2 * del1 * f220 * g200 * q22
	d.del3 = 3 * del1 * f330 * g300 * q33 * aqnv
	d.del1 = del1 * f311 * g310 * q31 * aqnv

	d.xlamo = c.xmo + c.xnodeo + c.omegao - d.thgr
	bfact := c.xmdot + c.omgdot + c.xnodot - thdt
	bfact += d.ssl + d.ssg + d.ssh
	d.xfact = bfact - xnq
}

func (d *deepCoeffs) init12h() {
	c := &d.common
	eq := c.eo
	eosq := c.eosq
	eoc := eq * eosq
	xnq := c.xnodp
	aqnv := 1 / c.aodp

	g201 := -0.306 - (eq-0.64)*0.440
	var g211, g310, g322, g410, g422, g520, g521, g532, g533 float64
	if eq <= 0.65 {
		g211 = 3.616 - 13.247*eq + 16.290*eosq
		g310 = -19.302 + 117.390*eq - 228.419*eosq + 156.591*eoc
		g322 = -18.9068 + 109.7927*eq - 214.6334*eosq + 146.5816*eoc
		g410 = -41.122 + 242.694*eq - 471.094*eosq + 313.953*eoc
		g422 = -146.407 + 841.880*eq - 1629.014*eosq + 1083.435*eoc
		g520 = -532.114 + 3017.977*eq - 5740*eosq + 3708.276*eoc
	} else {
		g211 = -72.099 + 331.819*eq - 508.738*eosq + 266.724*eoc
		g310 = -346.844 + 1582.851*eq - 2415.925*eosq + 1246.113*eoc
		g322 = -342.585 + 1554.908*eq - 2366.899*eosq + 1215.972*eoc
		g410 = -1052.797 + 4758.686*eq - 7193.992*eosq + 3651.957*eoc
		g422 = -3581.69 + 16178.11*eq - 24462.77*eosq + 12422.52*eoc
		if eq <= 0.715 {
			g520 = 1464.74 - 4664.75*eq + 3763.64*eosq
		} else {
			g520 = -5149.66 + 29936.92*eq - 54087.36*eosq + 31324.56*eoc
		}
	}
	if eq < 0.7 {
		g533 = -919.2277 + 4988.61*eq - 9064.77*eosq + 5542.21*eoc
		g521 = -822.71072 + 4568.6173*eq - 8491.4146*eosq + 5337.524*eoc
		g532 = -853.666 + 4690.25*eq - 8624.77*eosq + 5341.4*eoc
	} else {
		g533 = -37995.78 + 161616.52*eq - 229838.2*eosq + 109377.94*eoc
		g521 = -51752.104 + 218913.95*eq - 309468.16*eosq + 146349.42*eoc
		g532 = -40023.88 + 170470.89*eq - 242699.48*eosq + 115605.82*eoc
	}

	sinio, cosio, theta2 := c.sinio, c.cosio, c.theta2
	sini2 := sinio * sinio
	f220 := 0.75 * (1 + 2*cosio + theta2)
	f221 := 1.5 * sini2
	f321 := 1.875 * sinio * (1 - 2*cosio - 3*theta2)
	f322 := -1.875 * sinio * (1 + 2*cosio - 3*theta2)
	f441 := 35 * sini2 * f220
	f442 := 39.3750 * sini2 * sini2
	f522 := 9.84375 * sinio * (sini2*(1-2*cosio-5*theta2) + 0.33333333*(-2+4*cosio+6*theta2))
	f523 := sinio * (4.92187512*sini2*(-2-4*cosio+10*theta2) + 6.56250012*(1+2*cosio-3*theta2))
	f542 := 29.53125 * sinio * (2 - 8*cosio + theta2*(-12+8*cosio+10*theta2))
	f543 := 29.53125 * sinio * (-2 - 8*cosio + theta2*(12+8*cosio-10*theta2))

	temp1 := 3 * xnq * xnq * aqnv * aqnv
	temp := temp1 * root22
	d.d2201 = temp * f220 * g201
	d.d2211 = temp * f221 * g211
	temp1 *= aqnv
	temp = temp1 * root32
	d.d3210 = temp * f321 * g310
	d.d3222 = temp * f322 * g322
	temp1 *= aqnv
	temp = 2 * temp1 * root44
	d.d4410 = temp * f441 * g410
	d.d4422 = temp * f442 * g422
	temp1 *= aqnv
	temp = temp1 * root52
	d.d5220 = temp * f522 * g520
	d.d5232 = temp * f523 * g532
	temp = 2 * temp1 * root54
	d.d5421 = temp * f542 * g521
	d.d5433 = temp * f543 * g533

	d.xlamo = c.xmo + c.xnodeo + c.xnodeo - d.thgr - d.thgr
	bfact := c.xmdot + c.xnodot + c.xnodot - thdt - thdt
	bfact += d.ssl + d.ssh + d.ssh
	d.xfact = bfact - xnq
}

// dots returns the resonance derivatives at integrator state (xli, xni)
// and time atime: dn/dt, d²n/dt² and dλ/dt.
func (d *deepCoeffs) dots(xli, xni, atime float64) (xndot, xnddt, xldot float64) {
	if d.res == resonanceSynchronous {
		xndot = d.del1*math.Sin(xli-fasx2) + d.del2*math.Sin(2*(xli-fasx4)) + d.del3*math.Sin(3*(xli-fasx6))
		xnddt = d.del1*math.Cos(xli-fasx2) + 2*d.del2*math.Cos(2*(xli-fasx4)) + 3*d.del3*math.Cos(3*(xli-fasx6))
	} else {
		xomi := d.omegao + d.omgdot*atime
		x2omi := xomi + xomi
		x2li := xli + xli
		xndot = d.d2201*math.Sin(x2omi+xli-g22) + d.d2211*math.Sin(xli-g22) +
			d.d3210*math.Sin(xomi+xli-g32) + d.d3222*math.Sin(-xomi+xli-g32) +
			d.d4410*math.Sin(x2omi+x2li-g44) + d.d4422*math.Sin(x2li-g44) +
			d.d5220*math.Sin(xomi+xli-g52) + d.d5232*math.Sin(-xomi+xli-g52) +
			d.d5421*math.Sin(xomi+x2li-g54) + d.d5433*math.Sin(-xomi+x2li-g54)
		xnddt = d.d2201*math.Cos(x2omi+xli-g22) + d.d2211*math.Cos(xli-g22) +
			d.d3210*math.Cos(xomi+xli-g32) + d.d3222*math.Cos(-xomi+xli-g32) +
			d.d5220*math.Cos(xomi+xli-g52) + d.d5232*math.Cos(-xomi+xli-g52) +
			2*(d.d4410*math.Cos(x2omi+x2li-g44)+d.d4422*math.Cos(x2li-g44)+
				d.d5421*math.Cos(xomi+x2li-g54)+d.d5433*math.Cos(-xomi+x2li-g54))
	}
	xldot = xni + d.xfact
	xnddt *= xldot
	return xndot, xnddt, xldot
}

// secular applies the closed-form lunar-solar secular rates. Resonance is
// handled by the caller, which owns the integrator state.
func (d *deepCoeffs) secular(t float64, a *deepArgs) {
	a.xll += d.ssl * t
	a.omgadf += d.ssg * t
	a.xnode += d.ssh * t
	a.em = d.eo + d.sse*t
	a.xinc = d.xincl + d.ssi*t

	if a.xinc < 0 {
		a.xinc = -a.xinc
		a.xnode += math.Pi
		a.omgadf -= math.Pi
	}
}

// resonantLongitude folds the integrated mean longitude back into the mean
// anomaly for a resonant orbit.
func (d *deepCoeffs) resonantLongitude(t, xl float64, a *deepArgs) {
	temp := -a.xnode + d.thgr + t*thdt
	if d.res == resonanceSynchronous {
		a.xll = xl - a.omgadf + temp
	} else {
		a.xll = xl + temp + temp
	}
}

// periodics applies the lunar-solar periodic terms for time t. They are
// recomputed on every call.
func (d *deepCoeffs) periodics(t float64, a *deepArgs) {
	sinis := math.Sin(a.xinc)
	cosis := math.Cos(a.xinc)

	zm := d.zmos + zns*t
	zf := zm + 2*zes*math.Sin(zm)
	sinzf := math.Sin(zf)
	f2 := 0.5*sinzf*sinzf - 0.25
	f3 := -0.5 * sinzf * math.Cos(zf)
	s := &d.sun
	ses := s.e2*f2 + s.e3*f3
	sis := s.i2*f2 + s.i3*f3
	sls := s.l2*f2 + s.l3*f3 + s.l4*sinzf
	sghs := s.gh2*f2 + s.gh3*f3 + s.gh4*sinzf
	shs := s.h2*f2 + s.h3*f3

	zm = d.zmol + znl*t
	zf = zm + 2*zel*math.Sin(zm)
	sinzf = math.Sin(zf)
	f2 = 0.5*sinzf*sinzf - 0.25
	f3 = -0.5 * sinzf * math.Cos(zf)
	m := &d.moon
	sel := m.e2*f2 + m.e3*f3
	sil := m.i2*f2 + m.i3*f3
	sll := m.l2*f2 + m.l3*f3 + m.l4*sinzf
	sghl := m.gh2*f2 + m.gh3*f3 + m.gh4*sinzf
	shl := m.h2*f2 + m.h3*f3

	pe := ses + sel
	pinc := sis + sil
	pl := sls + sll
	pgh := sghs + sghl
	ph := shs + shl

	a.xinc += pinc
	a.em += pe

	if d.xincl >= 0.2 {
		ph = d.overSinio(ph)
		pgh -= d.cosio * ph
		a.omgadf += pgh
		a.xnode += ph
		a.xll += pl
		return
	}

	// Lyddane modification for low inclinations.
	sinok := math.Sin(a.xnode)
	cosok := math.Cos(a.xnode)
	alfdp := sinis * sinok
	betdp := sinis * cosok
	dalf := ph*cosok + pinc*cosis*sinok
	dbet := -ph*sinok + pinc*cosis*cosok
	alfdp += dalf
	betdp += dbet
	a.xnode = earth.Mod2Pi(a.xnode)
	xls := a.xll + a.omgadf + cosis*a.xnode
	dls := pl + pgh - pinc*a.xnode*sinis
	xls += dls
	xnoh := a.xnode
	a.xnode = math.Atan2(alfdp, betdp)

	// Keep the node on the same branch as before the correction.
	if math.Abs(xnoh-a.xnode) > math.Pi {
		if a.xnode < xnoh {
			a.xnode += earth.TwoPi
		} else {
			a.xnode -= earth.TwoPi
		}
	}

	a.xll += pl
	a.omgadf = xls - a.xll - math.Cos(a.xinc)*a.xnode
}
