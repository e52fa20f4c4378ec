package service

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"
)

var ErrPoolClosed = errors.New("service: stream pool closed")

// Stream is the part of a QUIC stream the pool and client need.
type Stream interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// StreamOpener opens new streams on demand.
type StreamOpener interface {
	OpenStream(ctx context.Context) (Stream, error)
}

// StreamPool reuses request streams. At most maxSize streams are open at once;
// Acquire blocks when all of them are in use.
type StreamPool struct {
	opener StreamOpener
	idle   chan Stream
	slots  chan struct{}
	closed atomic.Bool
}

// NewStreamPool creates a pool that can manage up to maxSize concurrent streams.
func NewStreamPool(opener StreamOpener, maxSize int) *StreamPool {
	if maxSize <= 0 {
		maxSize = 8
	}
	return &StreamPool{
		opener: opener,
		idle:   make(chan Stream, maxSize),
		slots:  make(chan struct{}, maxSize),
	}
}

// Acquire gets an idle stream or opens a new one if under the limit.
func (p *StreamPool) Acquire(ctx context.Context) (Stream, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	select {
	case s := <-p.idle:
		return s, nil
	case p.slots <- struct{}{}:
		s, err := p.opener.OpenStream(ctx)
		if err != nil {
			<-p.slots
			return nil, err
		}
		if p.closed.Load() {
			p.Discard(s)
			return nil, ErrPoolClosed
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a healthy stream for reuse.
func (p *StreamPool) Release(s Stream) {
	if p.closed.Load() {
		p.Discard(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.Discard(s)
		return
	}
	// Close may have drained idle before s landed there.
	if p.closed.Load() {
		p.drain()
	}
}

// Discard closes a stream that must not be reused (for example after a
// partial read) and frees its slot.
func (p *StreamPool) Discard(s Stream) {
	_ = s.Close()
	<-p.slots
}

// Close closes all idle streams. Streams in use are closed on Release.
func (p *StreamPool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.drain()
	return nil
}

func (p *StreamPool) drain() {
	for {
		select {
		case s := <-p.idle:
			p.Discard(s)
		default:
			return
		}
	}
}

// Idle returns the number of pooled streams waiting for reuse.
func (p *StreamPool) Idle() int { return len(p.idle) }

// Open returns the number of streams currently open.
func (p *StreamPool) Open() int { return len(p.slots) }
