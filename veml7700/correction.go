package veml7700

import (
	"fmt"
	"math"
)

// Calibrated high-lux correction polynomial, y = C3*x^4 + C2*x^3 + C1*x^2 + C0*x.
const (
	highLuxC0 = 1.0023
	highLuxC1 = 8.1488e-05
	highLuxC2 = -9.3924e-09
	highLuxC3 = 6.0135e-13
)

// Above this many lux the low-sensitivity gains read non-linearly.
const highLuxLimit float32 = 1000.0

// Calculate the raw value to program into ALS_WL/ALS_WH for a lux trip-point.
//
// With gain 1/4 or 1/8 and more than 1000 lx the lux value is first passed
// through the inverse of the high-lux correction, so the sensor trips where a
// corrected reading would cross the threshold.
func RawThresholdFor(it IntegrationTime, gain Gain, lux float32) uint16 {
	factor := ConversionFactor(it, gain)
	if NeedsHighLuxCorrection(gain, lux) {
		lux = InverseHighLuxCorrection(lux)
	}
	return saturateRaw(lux / factor)
}

// Convert a raw ALS count to lux, correcting the non-linear range.
func LuxFromRaw(it IntegrationTime, gain Gain, raw uint16) float32 {
	lux := float32(raw) * ConversionFactor(it, gain)
	if NeedsHighLuxCorrection(gain, lux) {
		lux = CorrectHighLux(lux)
	}
	return lux
}

// NeedsHighLuxCorrection reports whether lux falls in the non-linear range for gain.
func NeedsHighLuxCorrection(gain Gain, lux float32) bool {
	return (gain == VEML7700_GAIN_1_4 || gain == VEML7700_GAIN_1_8) && lux > highLuxLimit
}

// ConversionFactor returns the lux per raw count for the given settings.
func ConversionFactor(it IntegrationTime, gain Gain) float32 {
	return gainFactor(gain) * integrationTimeFactor(it)
}

func gainFactor(gain Gain) float32 {
	switch gain {
	case VEML7700_GAIN_2:
		return 1.0
	case VEML7700_GAIN_1:
		return 2.0
	case VEML7700_GAIN_1_4:
		return 8.0
	case VEML7700_GAIN_1_8:
		return 16.0
	}
	panic(fmt.Sprintf("veml7700: no conversion factor for gain 0x%04x", uint16(gain)))
}

func integrationTimeFactor(it IntegrationTime) float32 {
	switch it {
	case VEML7700_INTEGRATIONTIME_800MS:
		return 0.0036
	case VEML7700_INTEGRATIONTIME_400MS:
		return 0.0072
	case VEML7700_INTEGRATIONTIME_200MS:
		return 0.0144
	case VEML7700_INTEGRATIONTIME_100MS:
		return 0.0288
	case VEML7700_INTEGRATIONTIME_50MS:
		return 0.0576
	case VEML7700_INTEGRATIONTIME_25MS:
		return 0.1152
	}
	panic(fmt.Sprintf("veml7700: no conversion factor for integration time 0x%04x", uint16(it)))
}

// CorrectHighLux applies the calibrated polynomial to a linear lux value.
func CorrectHighLux(lux float32) float32 {
	x2 := lux * lux
	return x2*x2*highLuxC3 + x2*lux*highLuxC2 + x2*highLuxC1 + lux*highLuxC0
}

// InverseHighLuxCorrection solves CorrectHighLux(x) = lux for x.
//
// Ferrari's method: the resolvent cubic is solved with Cardano's formula and
// the root on the increasing branch is
//
//	x = -b/4a - S + sqrt(-4S^2 - 2p + q/S)/2
//
// The terms span ~30 orders of magnitude and cancel heavily, so this runs in
// float64. Past roughly 3e14 lux a radicand goes negative and the result is NaN.
func InverseHighLuxCorrection(lux float32) float32 {
	const (
		a = highLuxC3
		b = highLuxC2
		c = highLuxC1
		d = highLuxC0
	)
	y := float64(lux)

	// depressed quartic t^4 + p*t^2 + q*t + r, x = t - b/4a
	p := (8*a*c - 3*b*b) / (8 * a * a)
	q := (b*b*b - 4*a*b*c + 8*a*a*d) / (8 * a * a * a)

	delta0 := c*c - 3*b*d - 12*a*y
	delta1 := 2*c*c*c - 9*b*c*d + 27*a*d*d - 27*b*b*y + 72*a*c*y

	cardano := math.Cbrt((delta1 + math.Sqrt(delta1*delta1-4*delta0*delta0*delta0)) / 2)
	s := math.Sqrt(-2*p/3+(cardano+delta0/cardano)/(3*a)) / 2

	return float32(-b/(4*a) - s + math.Sqrt(-4*s*s-2*p+q/s)/2)
}

// saturateRaw truncates toward zero and clamps to the 16 bit register range.
func saturateRaw(v float32) uint16 {
	switch {
	case !(v > 0): // negative, zero or NaN
		return 0
	case v >= float32(VEML7700_MAX_COUNT):
		return VEML7700_MAX_COUNT
	}
	return uint16(v)
}
