package base

import (
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"github.com/puzpuzpuz/xsync/v3"
	"math"
	"sync/atomic"
	"time"
)

// errLateResponse marks a response for a request whose caller already gave up
var errLateResponse = errors.New("late response for abandoned request")

// -----------------------------------------------------------
// Pending Request
// -----------------------------------------------------------

const (
	statePending int32 = iota
	stateResolved
	stateAbandoned
)

// responseResult contains the result of a request
type responseResult struct {
	frame *protocol.Frame
	err   error
}

// pendingRequest is the single resolution slot of one outstanding request.
// Whoever wins the CAS out of statePending owns the slot: resolve sends the
// result, abandon turns the slot into a reservation.
type pendingRequest struct {
	id     uint32
	action string
	start  time.Time
	state  atomic.Int32
	done   chan responseResult // buffered, receives exactly one result
}

func (p *pendingRequest) resolve(r responseResult) bool {
	if !p.state.CompareAndSwap(statePending, stateResolved) {
		return false
	}
	p.done <- r
	return true
}

func (p *pendingRequest) abandon() bool {
	return p.state.CompareAndSwap(statePending, stateAbandoned)
}

// -----------------------------------------------------------
// Correlator
// -----------------------------------------------------------

// correlator matches responses to outstanding requests by id. Abandoned
// requests keep their id reserved until the late response arrives or the
// connection closes, so a late response can never be routed to a newer
// request that reused the id.
type correlator struct {
	pending *xsync.MapOf[uint32, *pendingRequest]
	lastID  atomic.Uint32
	closed  atomic.Bool
}

func newCorrelator() *correlator {
	return &correlator{
		pending: xsync.NewMapOf[uint32, *pendingRequest](),
	}
}

// register allocates the next free id and inserts a pending slot for it.
// Id 0 is never used and ids still in the table are skipped.
func (c *correlator) register(action string) (*pendingRequest, error) {
	if c.closed.Load() {
		return nil, common.ErrConnectionClosed
	}

	p := &pendingRequest{
		action: action,
		start:  time.Now(),
		done:   make(chan responseResult, 1),
	}

	for attempt := uint64(0); attempt <= math.MaxUint32; attempt++ {
		if uint64(c.pending.Size()) >= math.MaxUint32 {
			break
		}
		id := c.lastID.Add(1)
		if id == 0 {
			continue
		}
		p.id = id
		if _, loaded := c.pending.LoadOrStore(id, p); loaded {
			continue
		}

		// closeAll may have swept the table between the check above and the store
		if c.closed.Load() {
			c.pending.Delete(id)
			return nil, common.ErrConnectionClosed
		}
		return p, nil
	}
	return nil, common.ErrIDSpaceExhausted
}

// complete resolves the request the response belongs to. It returns
// ErrDuplicateResponse for unknown ids and errLateResponse when the caller
// already abandoned the request; in both cases the frame is dropped.
func (c *correlator) complete(frame *protocol.Frame) (*pendingRequest, error) {
	p, ok := c.pending.LoadAndDelete(frame.Header.RequestID)
	if !ok {
		return nil, common.ErrDuplicateResponse
	}
	if !p.resolve(responseResult{frame: frame}) {
		return p, errLateResponse
	}
	return p, nil
}

// abandon gives up on a request after a timeout or cancellation. It returns
// false when the request was resolved concurrently, in which case the result
// is waiting in p.done.
func (c *correlator) abandon(p *pendingRequest) bool {
	return p.abandon()
}

// remove drops a request that never made it onto the wire
func (c *correlator) remove(p *pendingRequest) {
	if p.abandon() {
		c.pending.Delete(p.id)
	}
}

// closeAll resolves every pending request with err and releases all
// reservations. Later registrations fail with ErrConnectionClosed.
func (c *correlator) closeAll(err error) int {
	c.closed.Store(true)

	resolved := 0
	c.pending.Range(func(id uint32, p *pendingRequest) bool {
		c.pending.Delete(id)
		if p.resolve(responseResult{err: err}) {
			resolved++
		}
		return true
	})
	return resolved
}

// size returns the number of table entries including reservations
func (c *correlator) size() int {
	return c.pending.Size()
}

// waiting returns the number of requests a caller is still waiting for
func (c *correlator) waiting() int {
	n := 0
	c.pending.Range(func(_ uint32, p *pendingRequest) bool {
		if p.state.Load() == statePending {
			n++
		}
		return true
	})
	return n
}
