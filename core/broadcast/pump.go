package broadcast

import (
	"context"
	"errors"
	"sync"
)

// DefaultPumpBuffer is the number of chunks a listener may fall behind.
const DefaultPumpBuffer = 16

var (
	// ErrSlowListener is returned by Pump.Write when the listener's buffer is full.
	ErrSlowListener = errors.New("listener buffer full")
	// ErrListenerClosed is returned by Pump.Write after the pump stopped.
	ErrListenerClosed = errors.New("listener closed")
)

// Pump is a registry sink that decouples the broadcaster from a network
// connection. Write only enqueues; Run delivers queued chunks in order on the
// connection's own goroutine.
type Pump struct {
	send chan []byte
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// NewPump creates a pump that buffers up to buffer chunks.
func NewPump(buffer int) *Pump {
	if buffer <= 0 {
		buffer = DefaultPumpBuffer
	}
	return &Pump{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Write queues chunk without blocking.
func (p *Pump) Write(chunk []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.closedErr()
	default:
	}

	select {
	case p.send <- chunk:
		return len(chunk), nil
	default:
		return 0, ErrSlowListener
	}
}

// Close stops the pump. It is safe to call more than once.
func (p *Pump) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Done is closed once the pump has stopped.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Err returns the delivery error that stopped the pump, if any.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pump) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	p.Close()
}

func (p *Pump) closedErr() error {
	if err := p.Err(); err != nil {
		return err
	}
	return ErrListenerClosed
}

// Run delivers queued chunks with deliver until the pump is closed, ctx is
// done, or deliver fails. The failure is kept so the next Write reports it.
func (p *Pump) Run(ctx context.Context, deliver func(chunk []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			p.fail(ctx.Err())
			return ctx.Err()
		case <-p.done:
			return nil
		case chunk := <-p.send:
			if err := deliver(chunk); err != nil {
				p.fail(err)
				return err
			}
		}
	}
}
