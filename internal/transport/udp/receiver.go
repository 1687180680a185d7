// SPDX-License-Identifier: MIT
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"

	"lightshow/internal/analysis"
	"lightshow/internal/hardware"
	applog "lightshow/internal/log"
)

var rlog = applog.New("UDPReceiver")

// maxDatagram bounds a single frame; a 3-element frame for a few dozen
// channels is well under this.
const maxDatagram = 65535

// Receiver is the client side of the broadcast channel. It replays received
// frames on the local sink.
type Receiver struct {
	conn     *net.UDPConn
	sink     hardware.Sink
	channels map[int][]int // Logical channel → local channels.

	// OnFilename, if set, is called for every song announcement.
	OnFilename func(name string)

	mu   sync.Mutex
	song string
	buf  []float64
}

// NewReceiver binds the broadcast port, shared with other clients on the
// same host where the platform allows it. channels maps each logical channel
// in the stream to the local channels that follow it; an empty table maps
// channel i to local channel i.
func NewReceiver(port int, sink hardware.Sink, channels map[int][]int) (*Receiver, error) {
	lc := net.ListenConfig{Control: reusePort}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP port %d: %w", port, err)
	}
	conn := pc.(*net.UDPConn)
	if len(channels) == 0 {
		channels = make(map[int][]int, sink.Len())
		for i := range sink.Len() {
			channels[i] = []int{i}
		}
	}
	rlog.Infof("listening on %s, channels mapped as %v", conn.LocalAddr(), channels)
	return &Receiver{
		conn:     conn,
		sink:     sink,
		channels: channels,
	}, nil
}

// Addr is the bound local address.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Song is the base name of the last announced song.
func (r *Receiver) Song() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.song
}

// Run reads frames until ctx is cancelled. The socket is closed on return.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()
	defer r.conn.Close()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("UDP read failed: %w", err)
		}
		r.handle(buf[:n])
	}
}

// Close releases the socket without waiting for Run.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

func (r *Receiver) handle(data []byte) {
	f, err := Decode(data)
	if err != nil {
		rlog.Debugf("dropping datagram: %v", err)
		return
	}

	switch f.Kind {
	case KindFilename:
		r.mu.Lock()
		r.song = filepath.Base(f.Filename)
		r.mu.Unlock()
		rlog.Infof("playing %s", f.Filename)
		if r.OnFilename != nil {
			r.OnFilename(f.Filename)
		}

	case KindPin:
		r.set(f.Pin, min(max(f.Brightness, 0), 1))

	case KindLevels:
		r.mu.Lock()
		if cap(r.buf) < len(f.Levels) {
			r.buf = make([]float64, len(f.Levels))
		}
		b := r.buf[:len(f.Levels)]
		r.mu.Unlock()

		analysis.BrightnessInto(b, f.Levels, f.Mean, f.Std)
		for pin, v := range b {
			r.set(pin, v)
		}
	}
}

func (r *Receiver) set(logical int, b float64) {
	for _, ch := range r.channels[logical] {
		if ch < 0 || ch >= r.sink.Len() {
			continue
		}
		v := b
		if !hardware.IsPWM(r.sink, ch) {
			v = analysis.Binarize(v)
		}
		if err := r.sink.SetChannel(ch, v); err != nil {
			rlog.Debugf("channel %d: %v", ch, err)
		}
	}
}

// Ensure Receiver satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*Receiver)(nil)
