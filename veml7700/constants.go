package veml7700

import (
	"fmt"
	"strings"
	"time"
)

const (
	VEML7700_ADDR      uint16 = 0x10 ///< Fixed I2C address
	VEML7700_DEVICE_ID byte   = 0x81 ///< Low byte of the ID register

	VEML7700_MAX_COUNT uint16 = 0xFFFF ///< Saturated ALS/threshold count
)

// VEML7700 Register map, every register is 16 bits little-endian
const (
	VEML7700_REGISTER_ALS_CONF  byte = 0x00 // Gain, integration time, persistence, interrupt enable, shutdown
	VEML7700_REGISTER_ALS_WH    byte = 0x01 // ALS high threshold window
	VEML7700_REGISTER_ALS_WL    byte = 0x02 // ALS low threshold window
	VEML7700_REGISTER_POWER_SAV byte = 0x03 // Power saving mode
	VEML7700_REGISTER_ALS       byte = 0x04 // ALS channel output
	VEML7700_REGISTER_WHITE     byte = 0x05 // White channel output
	VEML7700_REGISTER_ALS_INT   byte = 0x06 // Interrupt status
	VEML7700_REGISTER_ID        byte = 0x07 // Device ID
)

// ALS_CONF fields
const (
	VEML7700_CONF_SHUTDOWN  uint16 = 0x0001 // ALS_SD, 1 = shut down
	VEML7700_CONF_INT_EN    uint16 = 0x0002 // ALS_INT_EN
	VEML7700_CONF_PERS_MASK uint16 = 0x0030 // ALS_PERS, bits 5:4
	VEML7700_CONF_IT_MASK   uint16 = 0x03C0 // ALS_IT, bits 9:6
	VEML7700_CONF_GAIN_MASK uint16 = 0x1800 // ALS_GAIN, bits 12:11

	VEML7700_INT_TH_LOW  uint16 = 0x8000 // ALS crossed the low threshold
	VEML7700_INT_TH_HIGH uint16 = 0x4000 // ALS crossed the high threshold
)

// Gain is the analog gain setting, stored as its ALS_CONF bit pattern.
type Gain uint16

// Constants for adjusting the sensor gain
const (
	VEML7700_GAIN_1   Gain = 0x0000 /// gain x1
	VEML7700_GAIN_2   Gain = 0x0800 /// gain x2
	VEML7700_GAIN_1_8 Gain = 0x1000 /// gain x1/8
	VEML7700_GAIN_1_4 Gain = 0x1800 /// gain x1/4
)

// IntegrationTime is the exposure setting, stored as its ALS_CONF bit pattern.
type IntegrationTime uint16

// Constants for adjusting the sensor integration timing
const (
	VEML7700_INTEGRATIONTIME_25MS  IntegrationTime = 0x0300 // 25 millis
	VEML7700_INTEGRATIONTIME_50MS  IntegrationTime = 0x0200 // 50 millis
	VEML7700_INTEGRATIONTIME_100MS IntegrationTime = 0x0000 // 100 millis
	VEML7700_INTEGRATIONTIME_200MS IntegrationTime = 0x0040 // 200 millis
	VEML7700_INTEGRATIONTIME_400MS IntegrationTime = 0x0080 // 400 millis
	VEML7700_INTEGRATIONTIME_800MS IntegrationTime = 0x00C0 // 800 millis
)

// Persistence is the number of consecutive out-of-window samples needed to raise an interrupt.
type Persistence uint16

const (
	VEML7700_PERSISTENCE_1 Persistence = 0x0000
	VEML7700_PERSISTENCE_2 Persistence = 0x0010
	VEML7700_PERSISTENCE_4 Persistence = 0x0020
	VEML7700_PERSISTENCE_8 Persistence = 0x0030
)

// Gains lists every gain, most sensitive first.
var Gains = []Gain{VEML7700_GAIN_2, VEML7700_GAIN_1, VEML7700_GAIN_1_4, VEML7700_GAIN_1_8}

// IntegrationTimes lists every integration time, longest first.
var IntegrationTimes = []IntegrationTime{
	VEML7700_INTEGRATIONTIME_800MS,
	VEML7700_INTEGRATIONTIME_400MS,
	VEML7700_INTEGRATIONTIME_200MS,
	VEML7700_INTEGRATIONTIME_100MS,
	VEML7700_INTEGRATIONTIME_50MS,
	VEML7700_INTEGRATIONTIME_25MS,
}

func (g Gain) String() string {
	switch g {
	case VEML7700_GAIN_2:
		return "2"
	case VEML7700_GAIN_1:
		return "1"
	case VEML7700_GAIN_1_4:
		return "1/4"
	case VEML7700_GAIN_1_8:
		return "1/8"
	default:
		return "Unknown"
	}
}

func (it IntegrationTime) String() string {
	switch it {
	case VEML7700_INTEGRATIONTIME_25MS:
		return "25ms"
	case VEML7700_INTEGRATIONTIME_50MS:
		return "50ms"
	case VEML7700_INTEGRATIONTIME_100MS:
		return "100ms"
	case VEML7700_INTEGRATIONTIME_200MS:
		return "200ms"
	case VEML7700_INTEGRATIONTIME_400MS:
		return "400ms"
	case VEML7700_INTEGRATIONTIME_800MS:
		return "800ms"
	default:
		return "Unknown"
	}
}

// Duration returns how long a single ALS conversion takes.
func (it IntegrationTime) Duration() time.Duration {
	switch it {
	case VEML7700_INTEGRATIONTIME_25MS:
		return 25 * time.Millisecond
	case VEML7700_INTEGRATIONTIME_50MS:
		return 50 * time.Millisecond
	case VEML7700_INTEGRATIONTIME_200MS:
		return 200 * time.Millisecond
	case VEML7700_INTEGRATIONTIME_400MS:
		return 400 * time.Millisecond
	case VEML7700_INTEGRATIONTIME_800MS:
		return 800 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// ParseGain accepts the String form ("2", "1", "1/4", "1/8") with an optional "x" prefix.
func ParseGain(s string) (Gain, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "x")
	for _, g := range Gains {
		if g.String() == s {
			return g, nil
		}
	}
	switch s {
	case "0.25":
		return VEML7700_GAIN_1_4, nil
	case "0.125":
		return VEML7700_GAIN_1_8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGain, s)
}

// ParseIntegrationTime accepts "100ms", "100" or any time.Duration string.
func ParseIntegrationTime(s string) (IntegrationTime, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasSuffix(s, "s") {
		s += "ms"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIntegrationTime, s)
	}
	for _, it := range IntegrationTimes {
		if it.Duration() == d {
			return it, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownIntegrationTime, s)
}
