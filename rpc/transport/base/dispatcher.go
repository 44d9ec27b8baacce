package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrDuplicateAction = errors.New("action already registered")
	ErrRegistryFrozen  = errors.New("handler registry is frozen")
	ErrEmptyAction     = errors.New("action name must not be empty")
)

// -----------------------------------------------------------
// Handler Registry
// -----------------------------------------------------------

// registry maps action names to handlers. It accepts registrations until it
// is frozen; lookups are lock free.
type registry struct {
	handlers *xsync.MapOf[string, transport.Handler]
	mu       sync.Mutex
	frozen   bool
}

func newRegistry() *registry {
	return &registry{handlers: xsync.NewMapOf[string, transport.Handler]()}
}

// Register binds handler to action
func (r *registry) Register(action string, handler transport.Handler) error {
	if action == "" {
		return ErrEmptyAction
	}
	if handler == nil {
		return fmt.Errorf("nil handler for action %q", action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, action)
	}
	if _, loaded := r.handlers.LoadOrStore(action, handler); loaded {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, action)
	}
	return nil
}

// Freeze rejects all further registrations
func (r *registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the handler bound to action
func (r *registry) Lookup(action string) (transport.Handler, bool) {
	return r.handlers.Load(action)
}

// Clone returns an unfrozen copy, used to give each connection its own registry
func (r *registry) Clone() *registry {
	c := newRegistry()
	r.handlers.Range(func(action string, h transport.Handler) bool {
		c.handlers.Store(action, h)
		return true
	})
	return c
}

// -----------------------------------------------------------
// Dispatcher
// -----------------------------------------------------------

// sendFunc writes a frame to the connection
type sendFunc func(frame *protocol.Frame) error

// dispatcher runs inbound requests on their handlers. It never blocks the
// caller: every request, including rejected and unknown ones, is answered
// from its own goroutine. Each of those goroutines counts as a task until its
// response was written, and drain waits for all tasks, including the ones
// rejected while closing.
type dispatcher struct {
	*registry
	send        sendFunc
	observe     func(common.Event)
	maxInflight int

	mu       sync.Mutex
	inflight int // running handlers, bounded by maxInflight
	tasks    int // goroutines still owing a response
	closing  bool
	idle     chan struct{} // closed once closing and no task is left
	drained  bool
}

func newDispatcher(reg *registry, send sendFunc, observe func(common.Event), maxInflight int) *dispatcher {
	return &dispatcher{
		registry:    reg,
		send:        send,
		observe:     observe,
		maxInflight: maxInflight,
	}
}

// dispatch routes one inbound request frame. ctx is handed to the handler
// and is canceled when the connection shuts down.
func (d *dispatcher) dispatch(ctx context.Context, frame *protocol.Frame) {
	action := frame.Header.Action
	req := transport.NewRequest(frame, d.responder(&frame.Header))
	handler, found := d.Lookup(action)

	d.mu.Lock()
	switch {
	case d.drained:
		// the socket is about to close, there is no one left to answer
		d.mu.Unlock()
		Logger.Debugf("Dropping request %d (%s) received after drain", req.RequestID, action)
		return
	case d.closing:
		d.tasks++
		d.mu.Unlock()
		go func() {
			defer d.finish()
			d.reject(req, common.KindRejected, "connection is closing", common.ErrRejected)
		}()
		return
	case !found:
		d.tasks++
		d.mu.Unlock()
		go func() {
			defer d.finish()
			d.reject(req, common.KindUnknownAction, "", common.ErrUnknownAction)
		}()
		return
	case d.maxInflight > 0 && d.inflight >= d.maxInflight:
		d.tasks++
		d.mu.Unlock()
		go func() {
			defer d.finish()
			d.reject(req, common.KindRejected, fmt.Sprintf("too many inflight requests (max %d)", d.maxInflight), common.ErrRejected)
		}()
		return
	}
	d.inflight++
	d.tasks++
	d.mu.Unlock()

	go d.run(ctx, handler, req)
}

// run executes a handler and guarantees a response
func (d *dispatcher) run(ctx context.Context, handler transport.Handler, req *transport.Request) {
	start := time.Now()
	defer func() {
		d.mu.Lock()
		d.inflight--
		d.mu.Unlock()
		d.finish()
	}()

	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Handler for action %q panicked: %v", req.Action, r)
			d.reject(req, common.KindHandlerFailed, fmt.Sprintf("panic: %v", r), common.ErrHandlerFailed)
		}
	}()

	payload, err := handler(ctx, req)
	if err != nil {
		d.reject(req, common.KindHandlerFailed, err.Error(), common.ErrHandlerFailed)
		return
	}

	if err := req.Respond(payload); err != nil && !errors.Is(err, transport.ErrAlreadyResponded) {
		if errors.Is(err, protocol.ErrTooLarge) {
			d.reject(req, common.KindHandlerFailed, err.Error(), common.ErrHandlerFailed)
			return
		}
		Logger.Errorf("Failed to write response for request %d (%s): %v", req.RequestID, req.Action, err)
		return
	}

	d.observe(common.Event{
		Kind:      common.EventRequestDispatched,
		Action:    req.Action,
		RequestID: req.RequestID,
		Duration:  time.Since(start),
	})
}

// reject answers a request with an error body, unless it was answered already
func (d *dispatcher) reject(req *transport.Request, kind, message string, cause error) {
	err := req.RespondError(common.NewErrorBody(kind, req.Action, message))
	if errors.Is(err, transport.ErrAlreadyResponded) {
		return
	}
	if err != nil {
		Logger.Debugf("Failed to write %s response for request %d: %v", kind, req.RequestID, err)
	}
	d.observe(common.Event{
		Kind:      common.EventDispatchError,
		Action:    req.Action,
		RequestID: req.RequestID,
		Err:       cause,
	})
}

// responder returns the exactly once response function for a request
func (d *dispatcher) responder(h *protocol.TransportHeader) transport.RespondFunc {
	var responded atomic.Bool
	id := h.RequestID
	version := h.Version

	return func(status protocol.Status, payload []byte) error {
		if !responded.CompareAndSwap(false, true) {
			return transport.ErrAlreadyResponded
		}
		err := d.send(&protocol.Frame{
			Header: protocol.TransportHeader{
				Kind:      protocol.KindResponse,
				Status:    status,
				Version:   version,
				RequestID: id,
			},
			Payload: payload,
		})
		if errors.Is(err, protocol.ErrTooLarge) {
			// nothing was written, the request can still be answered
			responded.Store(false)
		}
		return err
	}
}

// finish marks one task as answered
func (d *dispatcher) finish() {
	d.mu.Lock()
	d.tasks--
	d.markIdle()
	d.mu.Unlock()
}

// markIdle closes idle once closing and every task is done. Requests arriving
// after that are dropped. Must be called with mu held.
func (d *dispatcher) markIdle() {
	if d.idle != nil && !d.drained && d.tasks == 0 {
		d.drained = true
		close(d.idle)
	}
}

// drain stops accepting requests and waits up to timeout for running
// handlers and pending rejections. It reports whether all of them finished
// in time.
func (d *dispatcher) drain(timeout time.Duration) bool {
	d.mu.Lock()
	d.closing = true
	if d.idle == nil {
		d.idle = make(chan struct{})
	}
	d.markIdle()
	done := d.idle
	d.mu.Unlock()

	if timeout <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// running returns the number of handlers currently executing
func (d *dispatcher) running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}
