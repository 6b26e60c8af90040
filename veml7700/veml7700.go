package veml7700

/*
 * veml7700 - Package for interacting with VEML7700 ambient light sensors.
 *
 * Ref:
 * https://www.vishay.com/docs/84286/veml7700.pdf
 * https://www.vishay.com/docs/84323/designingveml7700.pdf
 *
 */

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/io/i2c"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	// Setup the logger, so it can be parsed by datadog
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(level)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetLogger replaces the package logger, e.g. to share the service's output
func SetLogger(logger *logrus.Logger) {
	l = logger
}

// Device is the register access the driver needs, *i2c.Device satisfies it.
type Device interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type VEML7700 struct {
	Enabled bool
	Timing  IntegrationTime
	Gain    Gain
	Device  Device
	*sync.Mutex

	conf  uint16
	sleep func(time.Duration)
}

// Connect to a VEML7700 via I2C protocol & set gain/timing
func NewVEML7700(gain Gain, timing IntegrationTime, path string) (*VEML7700, error) {
	if path == "" {
		// i2c-1 is the default I2C bus for the Raspberry Pi
		path = "/dev/i2c-1"
	}
	device, err := i2c.Open(&i2c.Devfs{Dev: path}, int(VEML7700_ADDR))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	veml, err := New(device, gain, timing)
	if err != nil {
		device.Close()
		return nil, err
	}
	return veml, nil
}

// New wraps an already opened register device. The sensor is left shut down.
func New(device Device, gain Gain, timing IntegrationTime) (*VEML7700, error) {
	veml := &VEML7700{
		Device: device,
		Mutex:  &sync.Mutex{},
		sleep:  time.Sleep,
	}

	id, err := veml.readRegister(VEML7700_REGISTER_ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}
	if byte(id) != VEML7700_DEVICE_ID {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnexpectedDeviceID, byte(id))
	}
	if !validGain(gain) {
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownGain, uint16(gain))
	}
	if !validIntegrationTime(timing) {
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownIntegrationTime, uint16(timing))
	}

	conf := uint16(gain) | uint16(timing) | VEML7700_CONF_SHUTDOWN
	if err := veml.writeRegister(VEML7700_REGISTER_ALS_CONF, conf); err != nil {
		return nil, fmt.Errorf("failed to write configuration: %w", err)
	}
	veml.conf = conf
	veml.Gain = gain
	veml.Timing = timing
	l.Debugf("VEML7700 ready - Gain: %v, Integration Time: %v", gain, timing)
	return veml, nil
}

// Enable the sensor
func (veml *VEML7700) Enable() error {
	veml.Lock()
	defer veml.Unlock()

	if veml.Enabled {
		return nil
	}
	if err := veml.updateConf(VEML7700_CONF_SHUTDOWN, 0); err != nil {
		return err
	}
	veml.Enabled = true
	return nil
}

// Disable the sensor
func (veml *VEML7700) Disable() error {
	veml.Lock()
	defer veml.Unlock()

	if !veml.Enabled {
		return nil
	}
	if err := veml.updateConf(VEML7700_CONF_SHUTDOWN, VEML7700_CONF_SHUTDOWN); err != nil {
		return err
	}
	veml.Enabled = false
	return nil
}

// IsEnabled reports whether the sensor is powered on
func (veml *VEML7700) IsEnabled() bool {
	veml.Lock()
	defer veml.Unlock()
	return veml.Enabled
}

// Settings returns the current integration time and gain
func (veml *VEML7700) Settings() (IntegrationTime, Gain) {
	veml.Lock()
	defer veml.Unlock()
	return veml.Timing, veml.Gain
}

// Set the gain for the sensor
func (veml *VEML7700) SetGain(gain Gain) error {
	if !validGain(gain) {
		return fmt.Errorf("%w: 0x%04x", ErrUnknownGain, uint16(gain))
	}
	veml.Lock()
	defer veml.Unlock()

	if err := veml.updateConf(VEML7700_CONF_GAIN_MASK, uint16(gain)); err != nil {
		return err
	}
	veml.Gain = gain
	return nil
}

// Set the integration timing for the sensor
func (veml *VEML7700) SetIntegrationTime(timing IntegrationTime) error {
	if !validIntegrationTime(timing) {
		return fmt.Errorf("%w: 0x%04x", ErrUnknownIntegrationTime, uint16(timing))
	}
	veml.Lock()
	defer veml.Unlock()

	if err := veml.updateConf(VEML7700_CONF_IT_MASK, uint16(timing)); err != nil {
		return err
	}
	veml.Timing = timing
	return nil
}

// SetInterrupts toggles the threshold interrupt and its persistence filter.
func (veml *VEML7700) SetInterrupts(enabled bool, persistence Persistence) error {
	veml.Lock()
	defer veml.Unlock()

	bits := uint16(persistence) & VEML7700_CONF_PERS_MASK
	if enabled {
		bits |= VEML7700_CONF_INT_EN
	}
	return veml.updateConf(VEML7700_CONF_INT_EN|VEML7700_CONF_PERS_MASK, bits)
}

// Wait for a full integration cycle, then read the ALS channel
func (veml *VEML7700) ReadALS() (uint16, error) {
	return veml.readChannel(VEML7700_REGISTER_ALS)
}

// Wait for a full integration cycle, then read the white channel
func (veml *VEML7700) ReadWhite() (uint16, error) {
	return veml.readChannel(VEML7700_REGISTER_WHITE)
}

func (veml *VEML7700) readChannel(reg byte) (uint16, error) {
	veml.Lock()
	enabled, timing := veml.Enabled, veml.Timing
	veml.Unlock()
	if !enabled {
		return 0, ErrSensorDisabled
	}
	veml.sleep(timing.Duration())

	veml.Lock()
	defer veml.Unlock()
	value, err := veml.readRegister(reg)
	if err != nil {
		return 0, fmt.Errorf("failed to read register 0x%02x: %w", reg, err)
	}
	l.Debugf("Register 0x%02x: %v", reg, value)
	return value, nil
}

// ReadLux reads the ALS channel and converts it with the current settings.
func (veml *VEML7700) ReadLux() (float32, error) {
	raw, err := veml.ReadALS()
	if err != nil {
		return 0, err
	}
	timing, gain := veml.Settings()
	if raw == VEML7700_MAX_COUNT {
		return 0, fmt.Errorf("%w: gain %v, integration time %v", ErrOverflow, gain, timing)
	}
	return LuxFromRaw(timing, gain, raw), nil
}

// SetThresholds programs the interrupt window, returning the raw values written.
func (veml *VEML7700) SetThresholds(lowLux, highLux float32) (uint16, uint16, error) {
	if lowLux > highLux {
		return 0, 0, fmt.Errorf("%w: %.2f > %.2f", ErrInvalidThresholdWindow, lowLux, highLux)
	}
	veml.Lock()
	defer veml.Unlock()

	low := RawThresholdFor(veml.Timing, veml.Gain, lowLux)
	high := RawThresholdFor(veml.Timing, veml.Gain, highLux)
	if err := veml.writeRegister(VEML7700_REGISTER_ALS_WL, low); err != nil {
		return 0, 0, fmt.Errorf("failed to write low threshold: %w", err)
	}
	if err := veml.writeRegister(VEML7700_REGISTER_ALS_WH, high); err != nil {
		return 0, 0, fmt.Errorf("failed to write high threshold: %w", err)
	}
	l.Debugf("Threshold window %.2f-%.2f lux -> %d-%d counts", lowLux, highLux, low, high)
	return low, high, nil
}

// InterruptStatus reads and clears the threshold interrupt flags.
func (veml *VEML7700) InterruptStatus() (low bool, high bool, err error) {
	veml.Lock()
	defer veml.Unlock()

	status, err := veml.readRegister(VEML7700_REGISTER_ALS_INT)
	if err != nil {
		return false, false, fmt.Errorf("failed to read interrupt status: %w", err)
	}
	return status&VEML7700_INT_TH_LOW != 0, status&VEML7700_INT_TH_HIGH != 0, nil
}

// SetOptimalSettings picks the most sensitive settings that do not saturate.
func (veml *VEML7700) SetOptimalSettings() error {
	for _, gain := range Gains {
		if err := veml.SetGain(gain); err != nil {
			return err
		}
		for _, timing := range IntegrationTimes {
			if err := veml.SetIntegrationTime(timing); err != nil {
				return err
			}
			l.Debugf("Attempting - Gain: %v, Integration Time: %v", gain, timing)
			raw, err := veml.ReadALS()
			if err != nil {
				return err
			}
			if raw == VEML7700_MAX_COUNT || raw == 0 {
				continue
			}
			l.Debugf("Set - Gain: %v, Integration Time: %v", gain, timing)
			return nil
		}
	}
	// Use the least sensitive settings
	return errors.Join(ErrSaturated,
		veml.SetGain(VEML7700_GAIN_1_8),
		veml.SetIntegrationTime(VEML7700_INTEGRATIONTIME_25MS),
	)
}

// Close releases the I2C device
func (veml *VEML7700) Close() error {
	return veml.Device.Close()
}

func (veml *VEML7700) updateConf(mask, bits uint16) error {
	conf := veml.conf&^mask | bits&mask
	if err := veml.writeRegister(VEML7700_REGISTER_ALS_CONF, conf); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	veml.conf = conf
	return nil
}

func (veml *VEML7700) readRegister(reg byte) (uint16, error) {
	buf := make([]byte, 2)
	if err := veml.Device.ReadReg(reg, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (veml *VEML7700) writeRegister(reg byte, value uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return veml.Device.WriteReg(reg, buf)
}

func validGain(gain Gain) bool {
	for _, g := range Gains {
		if g == gain {
			return true
		}
	}
	return false
}

func validIntegrationTime(timing IntegrationTime) bool {
	for _, it := range IntegrationTimes {
		if it == timing {
			return true
		}
	}
	return false
}
