package base

import (
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func responseFrame(id uint32, payload string) *protocol.Frame {
	return &protocol.Frame{
		Header:  protocol.TransportHeader{Kind: protocol.KindResponse, RequestID: id},
		Payload: []byte(payload),
	}
}

func receive(t *testing.T, p *pendingRequest) responseResult {
	t.Helper()
	select {
	case r := <-p.done:
		return r
	case <-time.After(time.Second):
		t.Fatalf("request %d was not resolved", p.id)
		return responseResult{}
	}
}

// TestCorrelatorShuffledResponses completes requests in random order
func TestCorrelatorShuffledResponses(t *testing.T) {
	c := newCorrelator()

	const n = 200
	pending := make([]*pendingRequest, n)
	for i := range pending {
		p, err := c.register("test")
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		pending[i] = p
	}

	order := rand.New(rand.NewSource(7)).Perm(n)
	for _, i := range order {
		id := pending[i].id
		if _, err := c.complete(responseFrame(id, string(rune('A'+i%26)))); err != nil {
			t.Fatalf("complete(%d) failed: %v", id, err)
		}
	}

	for i, p := range pending {
		r := receive(t, p)
		if r.err != nil {
			t.Fatalf("request %d: unexpected error %v", p.id, r.err)
		}
		if r.frame.Header.RequestID != p.id || string(r.frame.Payload) != string(rune('A'+i%26)) {
			t.Errorf("request %d got response for %d (%q)", p.id, r.frame.Header.RequestID, r.frame.Payload)
		}
	}
	if c.size() != 0 {
		t.Errorf("table size = %d, want 0", c.size())
	}
}

// TestCorrelatorUniqueIDs registers concurrently and checks for collisions
func TestCorrelatorUniqueIDs(t *testing.T) {
	c := newCorrelator()

	var mu sync.Mutex
	seen := make(map[uint32]bool)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p, err := c.register("test")
				if err != nil {
					t.Errorf("register failed: %v", err)
					return
				}
				mu.Lock()
				if seen[p.id] {
					t.Errorf("id %d allocated twice", p.id)
				}
				seen[p.id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 4000 {
		t.Errorf("allocated %d ids, want 4000", len(seen))
	}
}

// TestCorrelatorDuplicateResponse checks that unknown and repeated ids are dropped
func TestCorrelatorDuplicateResponse(t *testing.T) {
	c := newCorrelator()

	if _, err := c.complete(responseFrame(99, "")); !errors.Is(err, common.ErrDuplicateResponse) {
		t.Errorf("unknown id: got %v, want ErrDuplicateResponse", err)
	}

	p, _ := c.register("test")
	if _, err := c.complete(responseFrame(p.id, "first")); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	if _, err := c.complete(responseFrame(p.id, "second")); !errors.Is(err, common.ErrDuplicateResponse) {
		t.Errorf("second complete: got %v, want ErrDuplicateResponse", err)
	}
	if r := receive(t, p); string(r.frame.Payload) != "first" {
		t.Errorf("got payload %q, want first", r.frame.Payload)
	}
}

// TestCorrelatorAbandonedLateResponse checks that a late response never
// reaches a newer request
func TestCorrelatorAbandonedLateResponse(t *testing.T) {
	c := newCorrelator()

	old, _ := c.register("slow")
	if !c.abandon(old) {
		t.Fatal("abandon failed on a pending request")
	}

	// force the allocator around so the next candidate is the abandoned id
	c.lastID.Store(old.id - 1)
	fresh, err := c.register("fast")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if fresh.id == old.id {
		t.Fatalf("abandoned id %d was reused while reserved", old.id)
	}

	// the late response is dropped and releases the reservation
	if _, err := c.complete(responseFrame(old.id, "late")); !errors.Is(err, errLateResponse) {
		t.Errorf("late response: got %v, want errLateResponse", err)
	}
	select {
	case r := <-fresh.done:
		t.Fatalf("late response was routed to request %d: %+v", fresh.id, r)
	default:
	}
	if _, ok := c.pending.Load(old.id); ok {
		t.Error("reservation still present after the late response")
	}
}

// TestCorrelatorAbandonRace checks that a response winning over a timeout is kept
func TestCorrelatorAbandonRace(t *testing.T) {
	c := newCorrelator()
	p, _ := c.register("test")

	if _, err := c.complete(responseFrame(p.id, "ok")); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if c.abandon(p) {
		t.Fatal("abandon succeeded on a resolved request")
	}
	if r := receive(t, p); r.err != nil || string(r.frame.Payload) != "ok" {
		t.Errorf("got %+v", r)
	}
}

// TestCorrelatorWraparound checks that id 0 and ids in use are skipped
func TestCorrelatorWraparound(t *testing.T) {
	c := newCorrelator()

	c.lastID.Store(math.MaxUint32 - 2)
	a, _ := c.register("a") // MaxUint32-1
	b, _ := c.register("b") // MaxUint32
	if a.id != math.MaxUint32-1 || b.id != math.MaxUint32 {
		t.Fatalf("got ids %d, %d", a.id, b.id)
	}

	// wrap: 0 is skipped, 1 and 2 are taken
	c.lastID.Store(0)
	one, _ := c.register("one")
	two, _ := c.register("two")
	c.lastID.Store(math.MaxUint32 - 2)

	next, err := c.register("next")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if next.id != 3 {
		t.Errorf("got id %d, want 3 (skipping %d, %d, 0, %d, %d)", next.id, a.id, b.id, one.id, two.id)
	}
}

// TestCorrelatorCloseAll checks that every pending request is resolved
func TestCorrelatorCloseAll(t *testing.T) {
	c := newCorrelator()

	var pending []*pendingRequest
	for i := 0; i < 50; i++ {
		p, _ := c.register("test")
		pending = append(pending, p)
	}
	c.abandon(pending[0])

	if n := c.closeAll(common.ErrConnectionClosed); n != 49 {
		t.Errorf("closeAll resolved %d requests, want 49", n)
	}
	for _, p := range pending[1:] {
		if r := receive(t, p); !errors.Is(r.err, common.ErrConnectionClosed) {
			t.Errorf("request %d: got %v, want ErrConnectionClosed", p.id, r.err)
		}
	}
	if c.size() != 0 {
		t.Errorf("table size = %d after closeAll, want 0", c.size())
	}
	if _, err := c.register("after"); !errors.Is(err, common.ErrConnectionClosed) {
		t.Errorf("register after closeAll: got %v, want ErrConnectionClosed", err)
	}
}
