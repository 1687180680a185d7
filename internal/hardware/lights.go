// Package hardware turns per-channel brightness into pin writes, applying
// the channel overrides configured for the installation.
package hardware

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"lightshow/internal/config"
)

// Sink is the actuation interface the playback engine drives. Brightness is
// in [0, 1].
type Sink interface {
	Len() int
	SetChannel(i int, brightness float64) error
	SetAll(brightness float64) error
}

// Driver writes raw values to physical pins.
type Driver interface {
	DigitalWrite(pin, value int) error
	PWMWrite(pin, value int) error
}

// Dimmable is implemented by sinks that know which channels accept PWM.
type Dimmable interface {
	IsPWM(i int) bool
}

// IsPWM reports whether channel i of s is dimmable. Sinks that do not
// implement Dimmable are treated as fully dimmable.
func IsPWM(s Sink, i int) bool {
	if d, ok := s.(Dimmable); ok {
		return d.IsPWM(i)
	}
	return true
}

// Channel describes one output channel and its overrides.
type Channel struct {
	Pin       int
	PWM       bool
	AlwaysOn  bool
	AlwaysOff bool
	Inverted  bool
}

// Lights is a Sink over a Driver. Overrides are applied by SetChannel and
// SetAll; active-low wiring is applied to every write.
type Lights struct {
	driver    Driver
	channels  []Channel
	activeLow bool
	pwmRange  int

	mu    sync.Mutex
	state []float64
}

// Compile-time checks.
var (
	_ Sink     = (*Lights)(nil)
	_ Dimmable = (*Lights)(nil)
)

// New creates Lights for the given channels.
func New(driver Driver, channels []Channel, activeLow bool, pwmRange int) *Lights {
	return &Lights{
		driver:    driver,
		channels:  channels,
		activeLow: activeLow,
		pwmRange:  pwmRange,
		state:     make([]float64, len(channels)),
	}
}

// FromConfig builds Lights from the hardware section. Override channel
// lists are 1-based.
func FromConfig(h config.HardwareConfig, driver Driver) *Lights {
	channels := make([]Channel, len(h.GPIOPins))
	for i, pin := range h.GPIOPins {
		channels[i] = Channel{
			Pin:       pin,
			PWM:       h.IsPWM(i),
			AlwaysOn:  slices.Contains(h.AlwaysOnChannels, i+1),
			AlwaysOff: slices.Contains(h.AlwaysOffChannels, i+1),
			Inverted:  slices.Contains(h.InvertedChannels, i+1),
		}
	}
	return New(driver, channels, h.ActiveLowMode, h.PWMRange)
}

// Len returns the number of channels.
func (l *Lights) Len() int {
	return len(l.channels)
}

// IsPWM reports whether channel i is dimmable.
func (l *Lights) IsPWM(i int) bool {
	return i >= 0 && i < len(l.channels) && l.channels[i].PWM
}

// SetChannel sets channel i, applying its overrides.
func (l *Lights) SetChannel(i int, brightness float64) error {
	if i < 0 || i >= len(l.channels) {
		return fmt.Errorf("channel %d out of range 0..%d", i, len(l.channels)-1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(i, brightness, true)
}

// SetAll sets every channel, applying overrides.
func (l *Lights) SetAll(brightness float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for i := range l.channels {
		if err := l.write(i, brightness, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Off turns every channel off. With useOverrides false, always-on and
// inverted channels are forced dark too, as on shutdown.
func (l *Lights) Off(useOverrides bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for i := range l.channels {
		if err := l.write(i, 0, useOverrides); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the brightness last written to each channel, after
// overrides and before active-low inversion.
func (l *Lights) State() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.state)
}

func (l *Lights) write(i int, b float64, useOverrides bool) error {
	ch := l.channels[i]
	if math.IsNaN(b) {
		b = 0
	}
	b = min(max(b, 0), 1)
	if useOverrides {
		if ch.AlwaysOn {
			b = 1
		}
		if ch.AlwaysOff {
			b = 0
		}
		if ch.Inverted {
			b = 1 - b
		}
	}
	l.state[i] = b

	if l.activeLow {
		b = 1 - b
	}
	if ch.PWM {
		return l.driver.PWMWrite(ch.Pin, int(b*float64(l.pwmRange)))
	}
	v := 0
	if b >= 0.5 {
		v = 1
	}
	return l.driver.DigitalWrite(ch.Pin, v)
}
