// Package streamlite adapts external producers into the buffer's single
// writer: a Source owns whatever upstream connection it wraps (a
// channel, a socket, a file tailer) and pumps payloads into a
// diskbuf.Writer until stopped.
package streamlite

import (
	"context"
	"sync"
	"time"

	"github.com/dsjohal14/ledgerbuf/internal/diskbuf"
)

// Source represents a producer feeding records into a buffer's Writer.
type Source interface {
	Name() string
	Start(ctx context.Context, w *diskbuf.Writer) error
	Stop() error
}

// BaseSource provides the name/lifecycle bookkeeping shared by every
// concrete Source.
type BaseSource struct {
	name      string
	startedAt time.Time
}

// NewBaseSource creates a new base source.
func NewBaseSource(name string) *BaseSource {
	return &BaseSource{name: name}
}

// Name returns the source's name.
func (s *BaseSource) Name() string {
	return s.name
}

// MarkStarted records the time Start was entered; concrete sources
// call this at the top of their own Start implementation.
func (s *BaseSource) MarkStarted() {
	s.startedAt = time.Now()
}

// StartedAt reports when the source was last started; the zero time if
// it hasn't been started yet.
func (s *BaseSource) StartedAt() time.Time {
	return s.startedAt
}

// ChannelSource feeds every []byte sent on a channel into the buffer as
// a single-event record, in receive order, until the channel is closed
// or the source is stopped.
type ChannelSource struct {
	*BaseSource
	in chan []byte

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewChannelSource returns a ChannelSource that reads payloads from in.
func NewChannelSource(name string, in chan []byte) *ChannelSource {
	return &ChannelSource{BaseSource: NewBaseSource(name), in: in}
}

// Start begins draining the source's channel into w. It returns once
// the pump goroutine has been launched. A write error ends the pump
// goroutine; the error itself is not reported, since a Source has no
// caller to report a mid-stream write failure to.
func (s *ChannelSource) Start(ctx context.Context, w *diskbuf.Writer) error {
	s.MarkStarted()

	s.mu.Lock()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case payload, ok := <-s.in:
				if !ok {
					return
				}
				if _, err := w.Write(ctx, payload, 1); err != nil {
					return
				}
			}
		}
	}()

	return nil
}

// Stop halts the pump goroutine and waits for it to exit.
func (s *ChannelSource) Stop() error {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)
	<-doneCh
	return nil
}
