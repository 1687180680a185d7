package udp

import (
	"errors"
	"sync"
	"testing"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []Frame
	err    error
	closed bool
}

func (s *recordingSender) Send(data []byte) error {
	f, err := Decode(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return s.err
}

func (s *recordingSender) Close() error {
	s.closed = true
	return nil
}

func (s *recordingSender) sent() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

func TestPublisherDeliversInOrder(t *testing.T) {
	sender := &recordingSender{}
	p, err := NewPublisher(sender, 8)
	if err != nil {
		t.Fatal(err)
	}
	p.Start()

	p.SendFilename("song.wav")
	p.SendLevels([]float64{1, 2}, []float64{12, 12}, []float64{1.5, 1.5})
	p.SendPin(1, 1)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	got := sender.sent()
	want := []Kind{KindFilename, KindLevels, KindPin}
	if len(got) != len(want) {
		t.Fatalf("sent %d frames, want %d", len(got), len(want))
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("frame %d kind = %v, want %v", i, got[i].Kind, k)
		}
	}
	if !sender.closed {
		t.Error("Close did not close the sender")
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	sender := &recordingSender{}
	p, err := NewPublisher(sender, 2)
	if err != nil {
		t.Fatal(err)
	}

	// Not started yet, so nothing drains the queue.
	for i := range 5 {
		p.SendPin(i, 1)
	}
	if got := p.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}

	p.Start()
	p.Stop()
	if got := len(sender.sent()); got != 2 {
		t.Errorf("sent %d frames, want the 2 queued", got)
	}
}

func TestPublisherIgnoresSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("network unreachable")}
	p, _ := NewPublisher(sender, 4)
	p.Start()
	p.SendPin(0, 1)
	p.SendPin(1, 1)
	p.Stop()
	if got := len(sender.sent()); got != 2 {
		t.Errorf("sent %d frames, want 2", got)
	}
}

func TestPublisherStopIdempotent(t *testing.T) {
	p, _ := NewPublisher(&recordingSender{}, 1)
	p.Start()
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	// Publishing after Stop is a silent no-op.
	p.SendPin(0, 1)
	if p.Dropped() != 0 {
		t.Error("frames after Stop should not count as dropped")
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(nil, 4); err == nil {
		t.Error("expected error for nil sender")
	}
	p, err := NewPublisher(&recordingSender{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cap(p.queue) <= 0 {
		t.Error("queue size should fall back to the default")
	}
}
