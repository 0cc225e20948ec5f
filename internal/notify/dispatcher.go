// Package notify owns the asynchronous boundary between the engine and the
// outbound notifier. Engine flows enqueue a message and return; delivery
// happens on a worker goroutine and delivery failures are observable only
// through counters and the warn log, never through a caller's result.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// Kind selects the notification template.
type Kind uint8

const (
	// KindConfirmation carries a registration confirmation code.
	KindConfirmation Kind = iota
	// KindRecovery carries a password recovery code.
	KindRecovery
)

// Message is a single outbound notification: an address, a template kind,
// and the one opaque code the template embeds.
type Message struct {
	Address string
	Kind    Kind
	Code    string
}

// Sender delivers a single message. Implementations are provided by the
// host application (SMTP, queue, test recorder).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards messages to a [Sender] from a worker goroutine.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	warn      func(format string, args ...any)
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(cfg Config, sender Sender, warn func(string, ...any)) *Dispatcher {
	if !cfg.Enabled || sender == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		warn:   warn,
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	if err := d.sender.Send(context.Background(), msg); err != nil {
		d.failed.Add(1)
		if d.warn != nil {
			d.warn("authkit: notification delivery failed: %v", err)
		}
	}
}

// Emit enqueues a message. With DropIfFull set a full buffer drops the
// message and bumps the dropped counter; otherwise Emit blocks until the
// buffer drains, ctx is done, or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, msg Message) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- msg:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- msg:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close drains the buffer and stops the worker. Safe to call twice.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many messages were discarded due to a full buffer.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed reports how many delivery attempts returned an error.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
