// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"

	"lightshow/internal/config"
	applog "lightshow/internal/log"
)

// Sender transmits one encoded datagram.
type Sender interface {
	Send(data []byte) error
}

// Publisher is the server side of the broadcast channel. Frames are encoded
// on the caller's goroutine and queued; a single goroutine drains the queue
// into the Sender. A full queue drops the frame so the streaming loop never
// waits on the network.
type Publisher struct {
	sender Sender
	queue  chan []byte

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects started/stopped during Start/Stop.
	started  bool
	stopped  bool

	dropped uint64
}

// NewPublisher creates a Publisher over sender with room for queueSize
// pending frames. A non-positive queueSize uses the configured default.
func NewPublisher(sender Sender, queueSize int) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = config.DefaultQueueSize
		applog.Warnf("UDPPublisher: Invalid queue size, defaulting to %d", queueSize)
	}
	return &Publisher{
		sender:   sender,
		queue:    make(chan []byte, queueSize),
		doneChan: make(chan struct{}),
	}, nil
}

// NewBroadcastPublisher opens a broadcast socket for the network section and
// starts a Publisher on it.
func NewBroadcastPublisher(n config.NetworkConfig) (*Publisher, error) {
	sender, err := NewUDPSender(n.BroadcastAddress, n.Port)
	if err != nil {
		return nil, err
	}
	p, err := NewPublisher(sender, n.QueueSize)
	if err != nil {
		sender.Close()
		return nil, err
	}
	p.Start()
	return p, nil
}

// Start launches the drain goroutine. Subsequent calls are no-ops.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (queue %d)", cap(p.queue))
		for {
			select {
			case data := <-p.queue:
				p.send(data)
			case <-p.doneChan:
				// Flush what was queued before Stop so the final frames
				// of a song still go out.
				for {
					select {
					case data := <-p.queue:
						p.send(data)
					default:
						return
					}
				}
			}
		}
	}()
}

func (p *Publisher) send(data []byte) {
	if err := p.sender.Send(data); err != nil {
		applog.Debugf("UDPPublisher: %v", err)
	}
}

// SendFilename announces a new song.
func (p *Publisher) SendFilename(name string) {
	p.publish(FilenameFrame(name))
}

// SendPin broadcasts a single-channel event, used while no song is playing.
func (p *Publisher) SendPin(pin int, brightness float64) {
	p.publish(PinFrame(pin, brightness))
}

// SendLevels broadcasts one chunk's levels with the baseline the receivers
// should map them against.
func (p *Publisher) SendLevels(levels, mean, std []float64) {
	p.publish(LevelsFrame(levels, mean, std))
}

// Dropped reports how many frames were discarded because the queue was full.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Publisher) publish(f Frame) {
	data, err := f.MarshalBinary()
	if err != nil {
		applog.Debugf("UDPPublisher: Error encoding %v frame: %v", f.Kind, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.queue <- data:
	default:
		p.dropped++
		applog.Debugf("UDPPublisher: Queue full, dropping %v frame", f.Kind)
	}
}

// Stop drains pending frames and waits for the goroutine to exit. It is safe
// to call Stop multiple times.
func (p *Publisher) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.doneChan)
	})
	p.wg.Wait()
	return nil
}

// Close stops the publisher and closes the sender if it holds a socket.
func (p *Publisher) Close() error {
	applog.Debugf("UDPPublisher: Close called, stopping publisher...")
	p.Stop()
	if c, ok := p.sender.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Ensure Publisher satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*Publisher)(nil)
