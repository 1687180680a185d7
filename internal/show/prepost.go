// SPDX-License-Identifier: MIT
package show

import (
	"context"
	"strings"
	"time"

	"lightshow/internal/config"
	"lightshow/internal/hardware"
	applog "lightshow/internal/log"
)

var seqLog = applog.New("Sequencer")

// DefaultPollInterval is how often a running sequence checks for play-now.
const DefaultPollInterval = 100 * time.Millisecond

// Sequencer runs the timed pre/post show transitions. Pin changes are
// broadcast because no song is streaming levels meanwhile.
type Sequencer struct {
	Sink      hardware.Sink
	Publisher Publisher   // nil unless running as the network server.
	Interrupt Interrupter // nil never interrupts.
	Poll      time.Duration
}

// Run executes script. It reports true when a play-now request or ctx
// cancellation cut it short. A nil script is a no-op.
func (s *Sequencer) Run(ctx context.Context, name string, script *config.ShowScript) bool {
	if script == nil || len(script.Transitions) == 0 {
		return false
	}
	seqLog.Infof("running %s (%d transitions)", name, len(script.Transitions))

	for _, tr := range script.Transitions {
		if s.interrupted(ctx) {
			return true
		}
		if strings.EqualFold(tr.Type, "on") {
			s.setAll(1)
		} else {
			s.setAll(0)
		}
		for _, ch := range tr.ChannelControl.On {
			s.set(ch-1, 1)
		}
		for _, ch := range tr.ChannelControl.Off {
			s.set(ch-1, 0)
		}

		seqLog.Debugf("transition to %s for %.2fs", tr.Type, tr.Duration)
		if s.wait(ctx, time.Duration(tr.Duration*float64(time.Second))) {
			seqLog.Infof("%s interrupted", name)
			return true
		}
	}
	return false
}

// wait sleeps for d, polling for an interrupt.
func (s *Sequencer) wait(ctx context.Context, d time.Duration) bool {
	poll := s.Poll
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if s.interrupted(ctx) {
				return true
			}
		}
	}
}

func (s *Sequencer) interrupted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.Interrupt != nil && s.Interrupt.PlayNow() != 0
}

func (s *Sequencer) setAll(b float64) {
	if err := s.Sink.SetAll(b); err != nil {
		seqLog.Debugf("set all: %v", err)
	}
	if s.Publisher != nil {
		for i := range s.Sink.Len() {
			s.Publisher.SendPin(i, b)
		}
	}
}

func (s *Sequencer) set(ch int, b float64) {
	if ch < 0 || ch >= s.Sink.Len() {
		seqLog.Warnf("channel_control names channel %d of %d", ch+1, s.Sink.Len())
		return
	}
	if err := s.Sink.SetChannel(ch, b); err != nil {
		seqLog.Debugf("channel %d: %v", ch, err)
	}
	if s.Publisher != nil {
		s.Publisher.SendPin(ch, b)
	}
}

// SwitchLights turns every channel on or off, honouring overrides, and
// tells the clients in server mode.
func SwitchLights(sink hardware.Sink, pub Publisher, on bool) error {
	b := 0.0
	if on {
		b = 1
	}
	err := sink.SetAll(b)
	if pub != nil {
		for i := range sink.Len() {
			pub.SendPin(i, b)
		}
	}
	return err
}
