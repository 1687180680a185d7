package transport

import (
	"lightshow/internal/log"
)

// LogDriver implements hardware.Driver by logging pin writes at debug level.
// It is the default when no light hardware is attached.
type LogDriver struct {
	pwmRange int
	logger   *log.Logger
}

// NewLogDriver creates a new LogDriver instance.
func NewLogDriver(pwmRange int) *LogDriver {
	l := log.New("LogDriver")
	l.Infof("using logging light driver")
	return &LogDriver{pwmRange: pwmRange, logger: l}
}

// DigitalWrite logs an on/off write.
func (d *LogDriver) DigitalWrite(pin, value int) error {
	d.logger.Debugf("pin %d = %d", pin, value)
	return nil
}

// PWMWrite logs a dimmed write.
func (d *LogDriver) PWMWrite(pin, value int) error {
	d.logger.Debugf("pin %d = %d/%d", pin, value, d.pwmRange)
	return nil
}

// Close is a no-op for LogDriver.
func (d *LogDriver) Close() error {
	return nil
}

// Ensure LogDriver satisfies the interface at compile time.
var _ PinDriver = (*LogDriver)(nil)
