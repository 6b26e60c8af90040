package veml7700

import "errors"

var (
	ErrSensorDisabled         = errors.New("sensor must be enabled")
	ErrUnknownGain            = errors.New("unknown gain")
	ErrUnknownIntegrationTime = errors.New("unknown integration time")
	ErrInvalidThresholdWindow = errors.New("low threshold must not exceed high threshold")
	ErrSaturated              = errors.New("all gain options are saturated")
	ErrUnexpectedDeviceID     = errors.New("unexpected device id")
	ErrOverflow               = errors.New("ALS channel overflow")
)
