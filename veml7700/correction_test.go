package veml7700

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectedRaw(lux, factor float32) float64 {
	v := math.Floor(float64(lux) / float64(factor))
	return math.Max(0, math.Min(v, 65535))
}

func TestConversionFactor(t *testing.T) {
	gainFactors := map[Gain]float32{
		VEML7700_GAIN_2:   1,
		VEML7700_GAIN_1:   2,
		VEML7700_GAIN_1_4: 8,
		VEML7700_GAIN_1_8: 16,
	}
	itFactors := map[IntegrationTime]float32{
		VEML7700_INTEGRATIONTIME_800MS: 0.0036,
		VEML7700_INTEGRATIONTIME_400MS: 0.0072,
		VEML7700_INTEGRATIONTIME_200MS: 0.0144,
		VEML7700_INTEGRATIONTIME_100MS: 0.0288,
		VEML7700_INTEGRATIONTIME_50MS:  0.0576,
		VEML7700_INTEGRATIONTIME_25MS:  0.1152,
	}
	require.Len(t, Gains, len(gainFactors))
	require.Len(t, IntegrationTimes, len(itFactors))

	for _, gain := range Gains {
		for _, it := range IntegrationTimes {
			t.Run(gain.String()+"/"+it.String(), func(t *testing.T) {
				factor := ConversionFactor(it, gain)
				assert.Equal(t, gainFactors[gain]*itFactors[it], factor)
				assert.Greater(t, factor, float32(0))
			})
		}
	}

	assert.Equal(t, float32(8)*float32(0.0036), ConversionFactor(VEML7700_INTEGRATIONTIME_800MS, VEML7700_GAIN_1_4))
}

func TestConversionFactorUnknownSetting(t *testing.T) {
	assert.Panics(t, func() { ConversionFactor(VEML7700_INTEGRATIONTIME_100MS, Gain(0x0001)) })
	assert.Panics(t, func() { ConversionFactor(IntegrationTime(0x0001), VEML7700_GAIN_1) })
}

func TestCorrectHighLux(t *testing.T) {
	tests := []struct {
		lux  float32
		want float32
	}{
		{lux: 0, want: 0},
		{lux: 1, want: 1.0023815},
		{lux: 1000, want: 1075.0},
		{lux: 4098.652, want: 5000},
		{lux: 17674.95, want: 50000},
	}
	for _, tt := range tests {
		got := CorrectHighLux(tt.lux)
		assert.InDelta(t, tt.want, got, float64(tt.want)*1e-3+1e-4, "CorrectHighLux(%v)", tt.lux)
	}

	assert.True(t, math.IsNaN(float64(CorrectHighLux(float32(math.NaN())))))
	assert.True(t, math.IsInf(float64(CorrectHighLux(float32(math.Inf(1)))), 0) ||
		math.IsNaN(float64(CorrectHighLux(float32(math.Inf(1))))))
}

func TestInverseHighLuxCorrectionRoundTrip(t *testing.T) {
	for _, lux := range []float32{1000, 1000.0001, 2500, 5000, 10000, 25000, 50000, 100000} {
		x := InverseHighLuxCorrection(lux)
		require.False(t, math.IsNaN(float64(x)), "inverse of %v is NaN", lux)
		assert.Greater(t, x, float32(0))
		assert.Less(t, x, lux)
		assert.InEpsilon(t, lux, CorrectHighLux(x), 1e-3, "round trip of %v via %v", lux, x)
	}

	assert.InDelta(t, 933.965, InverseHighLuxCorrection(1000), 0.01)
	assert.InDelta(t, 4098.652, InverseHighLuxCorrection(5000), 0.05)
	assert.InDelta(t, 7475.045, InverseHighLuxCorrection(10000), 0.05)
	assert.InDelta(t, 17674.95, InverseHighLuxCorrection(50000), 0.5)
}

func TestInverseHighLuxCorrectionIsIncreasing(t *testing.T) {
	prev := InverseHighLuxCorrection(1000)
	for lux := float32(1250); lux <= 120000; lux += 250 {
		x := InverseHighLuxCorrection(lux)
		require.Greater(t, x, prev, "inverse must increase at %v lux", lux)
		prev = x
	}
}

func TestRawThresholdForLinearRange(t *testing.T) {
	for _, gain := range Gains {
		for _, it := range IntegrationTimes {
			factor := ConversionFactor(it, gain)
			for _, lux := range []float32{0, 0.5, 1, 10, 57.6, 250, 999.9, 1000} {
				got := RawThresholdFor(it, gain, lux)
				assert.InDelta(t, expectedRaw(lux, factor), float64(got), 1, "gain %v, it %v, lux %v", gain, it, lux)
			}
		}
	}
}

func TestRawThresholdForHighLux(t *testing.T) {
	for _, gain := range []Gain{VEML7700_GAIN_1_4, VEML7700_GAIN_1_8} {
		for _, it := range IntegrationTimes {
			factor := ConversionFactor(it, gain)
			for _, lux := range []float32{1500, 5000, 10000, 50000} {
				got := RawThresholdFor(it, gain, lux)
				want := expectedRaw(InverseHighLuxCorrection(lux), factor)
				assert.InDelta(t, want, float64(got), 1, "gain %v, it %v, lux %v", gain, it, lux)
			}
		}
	}

	// The high gains are never corrected
	for _, gain := range []Gain{VEML7700_GAIN_2, VEML7700_GAIN_1} {
		factor := ConversionFactor(VEML7700_INTEGRATIONTIME_25MS, gain)
		got := RawThresholdFor(VEML7700_INTEGRATIONTIME_25MS, gain, 5000)
		assert.InDelta(t, expectedRaw(5000, factor), float64(got), 1)
	}
}

func TestRawThresholdForCorrectionBoundary(t *testing.T) {
	it := VEML7700_INTEGRATIONTIME_100MS
	gain := VEML7700_GAIN_1_8

	assert.False(t, NeedsHighLuxCorrection(gain, 1000))
	assert.True(t, NeedsHighLuxCorrection(gain, 1000.0001))
	assert.True(t, NeedsHighLuxCorrection(VEML7700_GAIN_1_4, 1000.0001))
	assert.False(t, NeedsHighLuxCorrection(VEML7700_GAIN_1, 1000.0001))
	assert.False(t, NeedsHighLuxCorrection(VEML7700_GAIN_2, 50000))

	// 1000 / (16 * 0.0288)
	assert.Equal(t, uint16(2170), RawThresholdFor(it, gain, 1000))
	// inverse(1000.0001) ~= 933.965
	assert.Equal(t, uint16(2026), RawThresholdFor(it, gain, 1000.0001))
}

func TestRawThresholdForSaturation(t *testing.T) {
	it := VEML7700_INTEGRATIONTIME_800MS

	// 1000 / 0.0036 ~= 277778
	assert.Equal(t, uint16(65535), RawThresholdFor(it, VEML7700_GAIN_2, 1000))
	assert.Equal(t, uint16(65535), RawThresholdFor(it, VEML7700_GAIN_1, float32(math.Inf(1))))
	assert.Equal(t, uint16(0), RawThresholdFor(it, VEML7700_GAIN_2, -5))
	assert.Equal(t, uint16(0), RawThresholdFor(it, VEML7700_GAIN_2, float32(math.NaN())))

	tests := []struct {
		v    float32
		want uint16
	}{
		{v: float32(math.NaN()), want: 0},
		{v: -1, want: 0},
		{v: 0, want: 0},
		{v: 0.9, want: 0},
		{v: 1.999, want: 1},
		{v: 65534.7, want: 65534},
		{v: 65535, want: 65535},
		{v: 65535.9, want: 65535},
		{v: 1e9, want: 65535},
		{v: float32(math.Inf(1)), want: 65535},
		{v: float32(math.Inf(-1)), want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, saturateRaw(tt.v), "saturateRaw(%v)", tt.v)
	}
}

func TestRawThresholdForMonotonic(t *testing.T) {
	nonDecreasing := func(t *testing.T, it IntegrationTime, gain Gain, from, to, step float32) {
		t.Helper()
		prev := RawThresholdFor(it, gain, from)
		for lux := from + step; lux <= to; lux += step {
			raw := RawThresholdFor(it, gain, lux)
			require.GreaterOrEqual(t, raw, prev, "gain %v, it %v, lux %v", gain, it, lux)
			prev = raw
		}
	}

	for _, it := range IntegrationTimes {
		for _, gain := range []Gain{VEML7700_GAIN_2, VEML7700_GAIN_1} {
			nonDecreasing(t, it, gain, 0, 120000, 50)
		}
		// The correction restarts the curve just above 1000 lux
		for _, gain := range []Gain{VEML7700_GAIN_1_4, VEML7700_GAIN_1_8} {
			nonDecreasing(t, it, gain, 0, 1000, 5)
			nonDecreasing(t, it, gain, 1000.0001, 120000, 50)
		}
	}
}

func TestLuxFromRaw(t *testing.T) {
	assert.InDelta(t, 28.8, LuxFromRaw(VEML7700_INTEGRATIONTIME_100MS, VEML7700_GAIN_2, 1000), 1e-3)
	assert.InDelta(t, 0, LuxFromRaw(VEML7700_INTEGRATIONTIME_100MS, VEML7700_GAIN_2, 0), 0)

	// 10000 counts at 1/8, 100ms is 4608 linear lux
	got := LuxFromRaw(VEML7700_INTEGRATIONTIME_100MS, VEML7700_GAIN_1_8, 10000)
	assert.InEpsilon(t, CorrectHighLux(4608), got, 1e-6)

	for _, it := range IntegrationTimes {
		for _, raw := range []uint16{20000, 40000, 65000} {
			lux := LuxFromRaw(it, VEML7700_GAIN_1_8, raw)
			if !NeedsHighLuxCorrection(VEML7700_GAIN_1_8, lux) {
				continue
			}
			assert.InDelta(t, float64(raw), float64(RawThresholdFor(it, VEML7700_GAIN_1_8, lux)), 1, "it %v, raw %v", it, raw)
		}
	}
}

func TestRawThresholdForConcurrent(t *testing.T) {
	want := RawThresholdFor(VEML7700_INTEGRATIONTIME_50MS, VEML7700_GAIN_1_4, 25000)

	var wg sync.WaitGroup
	results := make([]uint16, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = RawThresholdFor(VEML7700_INTEGRATIONTIME_50MS, VEML7700_GAIN_1_4, 25000)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
