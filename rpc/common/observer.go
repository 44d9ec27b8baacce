package common

import (
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// EventKind enumerates the things a session reports to its observer
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventDecodeError
	EventDispatchError
	EventDuplicateResponse
	EventRequestCompleted
	EventRequestDispatched
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventDecodeError:
		return "decode_error"
	case EventDispatchError:
		return "dispatch_error"
	case EventDuplicateResponse:
		return "duplicate_response"
	case EventRequestCompleted:
		return "request_completed"
	case EventRequestDispatched:
		return "request_dispatched"
	default:
		return "unknown"
	}
}

// Event describes a single observation. Fields that do not apply to the
// kind are left zero.
type Event struct {
	Kind      EventKind
	Remote    string
	Action    string
	RequestID uint32
	Duration  time.Duration
	Err       error
}

// IObserver receives session events. Implementations must not block, they
// are called from the connection's reader goroutine.
type IObserver interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to IObserver
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// --------------------------------------------------------------------------
// Log Observer
// --------------------------------------------------------------------------

// LogObserver writes every event to the transport logger
type LogObserver struct{}

func (LogObserver) Observe(ev Event) {
	switch ev.Kind {
	case EventConnect, EventDisconnect:
		Logger.Infof("%s remote=%s", ev.Kind, ev.Remote)
	case EventDecodeError:
		Logger.Errorf("%s remote=%s: %v", ev.Kind, ev.Remote, ev.Err)
	case EventDispatchError, EventDuplicateResponse:
		Logger.Warningf("%s action=%q request_id=%d: %v", ev.Kind, ev.Action, ev.RequestID, ev.Err)
	default:
		Logger.Debugf("%s action=%q request_id=%d took %s err=%v", ev.Kind, ev.Action, ev.RequestID, ev.Duration, ev.Err)
	}
}

// MultiObserver fans an event out to several observers
type MultiObserver []IObserver

func (m MultiObserver) Observe(ev Event) {
	for _, o := range m {
		o.Observe(ev)
	}
}
