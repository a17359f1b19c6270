package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecosync/core/internal/infrastructure/logging"
	"github.com/ecosync/core/internal/protocol"
	"github.com/ecosync/core/internal/transport"
)

var (
	ErrNotConnected   = errors.New("link: not connected")
	ErrRequestTimeout = errors.New("link: request timed out")
	ErrClosed         = errors.New("link: closed")
	ErrQueueFull      = errors.New("link: request queue full")
)

// Defaults applied by New when the corresponding dep is zero.
const (
	defaultTimeout          = 5 * time.Second
	defaultRetries          = 3
	defaultReconnectInitial = time.Second
	defaultReconnectMax     = time.Minute
	requestQueueSize        = 64
)

// Deps carries the link's dependencies and tuning.
type Deps struct {
	Transport transport.Transport
	Logger    *logging.Logger

	// Timeout is the per-transmission response deadline. Retries is how
	// many retransmissions follow a timed-out transmission before the
	// request fails.
	Timeout time.Duration
	Retries int

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// OnFrame receives frames that match no pending request. Called from
	// the link's dispatch goroutine; handlers must not block.
	OnFrame func(*protocol.Frame)

	// OnUp and OnDown observe connection state transitions. Optional.
	OnUp   func()
	OnDown func(error)
}

// Link is the request/response correlator. Create with New, run with
// Start, issue exchanges with Request.
type Link struct {
	deps Deps
	log  *logging.Logger

	requests chan *request
	frames   chan *protocol.Frame
	connLost chan error

	connected atomic.Bool
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

type request struct {
	ctx   context.Context
	frame *protocol.Frame
	done  chan result
}

type result struct {
	frame *protocol.Frame
	err   error
}

// New validates deps and returns an unstarted link.
func New(deps Deps) (*Link, error) {
	if deps.Transport == nil {
		return nil, errors.New("link: transport is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultTimeout
	}
	if deps.Retries < 0 {
		deps.Retries = defaultRetries
	}
	if deps.ReconnectInitial <= 0 {
		deps.ReconnectInitial = defaultReconnectInitial
	}
	if deps.ReconnectMax <= 0 {
		deps.ReconnectMax = defaultReconnectMax
	}

	return &Link{
		deps:     deps,
		log:      deps.Logger.With("component", "link"),
		requests: make(chan *request, requestQueueSize),
		frames:   make(chan *protocol.Frame, 16),
		connLost: make(chan error, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start connects the transport and runs the link until ctx is cancelled
// or Close is called. It returns once the dispatch and connection
// goroutines are running; it does not wait for the first connection.
func (l *Link) Start(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("link: already started")
	}
	go l.dispatch()
	go l.manageConnection(ctx)
	return nil
}

// Close stops the link. Pending and queued requests fail with ErrClosed.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.closing)
		l.deps.Transport.Close()
		if l.started.Load() {
			<-l.done
		}
	})
	return nil
}

// Connected reports whether the transport is currently up.
func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Request transmits frame and waits for the matching response. It fails
// fast with ErrNotConnected while the link is down, respects ctx for both
// queue wait and response wait, and returns ErrRequestTimeout after the
// retry budget is exhausted.
func (l *Link) Request(ctx context.Context, frame *protocol.Frame) (*protocol.Frame, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if !l.connected.Load() {
		return nil, ErrNotConnected
	}

	req := &request{
		ctx:   ctx,
		frame: frame,
		done:  make(chan result, 1),
	}

	select {
	case l.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closing:
		return nil, ErrClosed
	default:
		return nil, ErrQueueFull
	}

	select {
	case res := <-req.done:
		return res.frame, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closing:
		return nil, ErrClosed
	}
}

// manageConnection opens the transport and reconnects with backoff after
// read failures until shutdown.
func (l *Link) manageConnection(ctx context.Context) {
	backoff := &transport.Backoff{
		Initial: l.deps.ReconnectInitial,
		Max:     l.deps.ReconnectMax,
	}

	for {
		if l.stopping(ctx) {
			return
		}

		if err := l.deps.Transport.Open(ctx); err != nil {
			if l.stopping(ctx) {
				return
			}
			delay := backoff.Next()
			l.log.Warn("connect failed", "error", err, "retry_in", delay)
			if !l.sleep(ctx, delay) {
				return
			}
			continue
		}

		backoff.Reset()
		l.connected.Store(true)
		l.log.Info("link up")
		if l.deps.OnUp != nil {
			l.deps.OnUp()
		}

		err := l.readFrames()

		l.connected.Store(false)
		l.deps.Transport.Close()
		select {
		case l.connLost <- err:
		default:
		}
		if l.deps.OnDown != nil {
			l.deps.OnDown(err)
		}

		if l.stopping(ctx) {
			return
		}
		delay := backoff.Next()
		l.log.Warn("link down", "error", err, "retry_in", delay)
		if !l.sleep(ctx, delay) {
			return
		}
	}
}

// readFrames pumps decoded frames to the dispatch goroutine until the
// transport fails.
func (l *Link) readFrames() error {
	scanner := protocol.NewScanner(transport.Reader{T: l.deps.Transport})
	for {
		f, err := scanner.Next()
		if err != nil {
			return err
		}
		select {
		case l.frames <- f:
		case <-l.closing:
			return ErrClosed
		}
	}
}

// dispatch owns the pending slot. It dequeues a request only when none is
// in flight, matches responses, and drives the timeout/retry cycle.
func (l *Link) dispatch() {
	defer close(l.done)

	var (
		pending  *request
		encoded  []byte
		attempts int
	)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	fail := func(err error) {
		if pending != nil {
			pending.done <- result{err: err}
			pending = nil
		}
		stopTimer(timer)
	}

	for {
		// Gate the queue: while a request is in flight, new requests
		// stay queued.
		reqCh := l.requests
		if pending != nil {
			reqCh = nil
		}

		select {
		case req := <-reqCh:
			if req.ctx.Err() != nil {
				req.done <- result{err: req.ctx.Err()}
				continue
			}
			b, err := req.frame.Encode()
			if err != nil {
				req.done <- result{err: err}
				continue
			}
			pending, encoded, attempts = req, b, 1
			if err := l.send(encoded); err != nil {
				fail(err)
				continue
			}
			timer.Reset(l.deps.Timeout)

		case f := <-l.frames:
			if pending != nil && matches(pending.frame, f) {
				pending.done <- result{frame: f}
				pending = nil
				stopTimer(timer)
				continue
			}
			if l.deps.OnFrame != nil {
				l.deps.OnFrame(f)
			}

		case <-timer.C:
			if pending == nil {
				continue
			}
			if attempts > l.deps.Retries {
				l.log.Warn("request failed",
					"type", pending.frame.Type,
					"recipient", pending.frame.Recipient,
					"transmissions", attempts)
				fail(ErrRequestTimeout)
				continue
			}
			attempts++
			l.log.Debug("retransmitting",
				"type", pending.frame.Type,
				"attempt", attempts)
			if err := l.send(encoded); err != nil {
				fail(err)
				continue
			}
			timer.Reset(l.deps.Timeout)

		case <-l.connLost:
			fail(ErrNotConnected)
			l.failQueued(ErrNotConnected)

		case <-l.closing:
			fail(ErrClosed)
			l.failQueued(ErrClosed)
			return
		}
	}
}

func (l *Link) send(b []byte) error {
	if err := l.deps.Transport.Send(b); err != nil {
		if errors.Is(err, transport.ErrClosed) || errors.Is(err, transport.ErrNotOpen) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}

// failQueued drains the queue, failing every waiting request.
func (l *Link) failQueued(err error) {
	for {
		select {
		case req := <-l.requests:
			req.done <- result{err: err}
		default:
			return
		}
	}
}

// matches reports whether f answers req: right sender, paired frame type.
func matches(req, f *protocol.Frame) bool {
	return f.Sender == req.Recipient && f.Type.IsResponseTo(req.Type)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (l *Link) stopping(ctx context.Context) bool {
	select {
	case <-l.closing:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (l *Link) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-l.closing:
		return false
	}
}
