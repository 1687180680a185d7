package transport

import (
	"fmt"
	"io"

	"lightshow/internal/config"
	"lightshow/internal/hardware"
)

// PinDriver is a hardware.Driver that holds resources.
type PinDriver interface {
	hardware.Driver
	io.Closer
}

// PinState is the message streamed to light monitors for every pin write.
type PinState struct {
	Pin   int  `json:"pin"`
	Value int  `json:"value"`
	Max   int  `json:"max"`
	PWM   bool `json:"pwm"`
}

// Level is Value scaled to [0, 1].
func (p PinState) Level() float64 {
	if p.Max <= 0 {
		return 0
	}
	return float64(p.Value) / float64(p.Max)
}

// NewDriver returns the pin driver named by the hardware configuration.
func NewDriver(h config.HardwareConfig) (PinDriver, error) {
	switch h.Driver {
	case config.DriverLog:
		return NewLogDriver(h.PWMRange), nil
	case config.DriverWebSocket:
		return NewWebSocketDriver(h.SimulatorAddress, h.PWMRange)
	default:
		return nil, fmt.Errorf("unknown light driver %q", h.Driver)
	}
}
