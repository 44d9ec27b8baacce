package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/common"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Session
// -----------------------------------------------------------

// Session owns one connection: the socket, the write lock, the table of
// outstanding requests and the dispatcher for inbound requests.
//
// States only move forward: connecting, established, closing, closed.
// Every path to closed goes through closing.
type Session struct {
	conn     net.Conn
	config   common.SessionConfig
	limits   protocol.Limits
	reader   *protocol.FrameReader
	observer common.IObserver

	state atomic.Int32
	peer  transport.HandshakeInfo

	writeMu    sync.Mutex
	correlator *correlator
	dispatcher *dispatcher

	// handler context, canceled once handlers were drained
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}

	// opened is set once the connect event was reported, so a disconnect is
	// only reported for sessions that were established
	eventMu sync.Mutex
	opened  bool
}

// NewSession wraps an established socket. The session starts in the
// connecting state; Dial or Accept performs the handshake.
func NewSession(conn net.Conn, config common.SessionConfig, reg *registry, observer common.IObserver) *Session {
	if observer == nil {
		observer = common.LogObserver{}
	}
	limits := protocol.Limits{MaxFrameSize: config.MaxFrameSize, MaxHeaderSize: config.MaxHeaderSize}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:       conn,
		config:     config,
		limits:     limits,
		reader:     protocol.NewFrameReader(conn, limits),
		observer:   observer,
		correlator: newCorrelator(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.dispatcher = newDispatcher(reg, s.send, s.observe, config.MaxInflightHandlers)
	s.state.Store(int32(transport.StateConnecting))
	return s
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISession)
// --------------------------------------------------------------------------

func (s *Session) State() transport.SessionState {
	return transport.SessionState(s.state.Load())
}

func (s *Session) Peer() transport.HandshakeInfo {
	return s.peer
}

func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) Pending() int {
	return s.correlator.waiting()
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.closeErr
	default:
		return nil
	}
}

func (s *Session) Execute(ctx context.Context, action string, payload []byte, opts ...transport.ExecuteOption) (*transport.Response, error) {
	if s.State() != transport.StateEstablished {
		return nil, &common.RequestError{Action: action, Kind: common.ErrConnectionClosed}
	}
	if action == "" {
		return nil, ErrEmptyAction
	}
	if err := s.limits.CheckPayload(len(payload)); err != nil {
		return nil, err
	}

	options := transport.ApplyOptions(transport.ExecuteOptions{
		Timeout:  s.config.DefaultTimeout,
		Features: s.config.Features,
	}, opts...)

	p, err := s.correlator.register(action)
	if err != nil {
		return nil, &common.RequestError{Action: action, Kind: err}
	}

	err = s.send(&protocol.Frame{
		Header: protocol.TransportHeader{
			Kind:          protocol.KindRequest,
			Version:       protocol.CurrentVersion,
			RequestID:     p.id,
			Action:        action,
			Features:      options.Features,
			ThreadContext: options.Headers,
		},
		Payload: payload,
	})
	if err != nil {
		s.correlator.remove(p)
		if errors.Is(err, protocol.ErrMalformed) || errors.Is(err, protocol.ErrTooLarge) {
			return nil, err
		}
		return nil, &common.RequestError{Action: action, RequestID: p.id, Kind: common.ErrConnectionClosed, Err: err}
	}

	result, err := s.await(ctx, p, options.Timeout)
	s.observe(common.Event{
		Kind:      common.EventRequestCompleted,
		Action:    action,
		RequestID: p.id,
		Duration:  time.Since(p.start),
		Err:       err,
	})
	return result, err
}

// await blocks until p is resolved, the timeout fires or ctx is done
func (s *Session) await(ctx context.Context, p *pendingRequest, timeout time.Duration) (*transport.Response, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var result responseResult
	select {
	case result = <-p.done:
	case <-timeoutCh:
		if s.correlator.abandon(p) {
			return nil, &common.RequestError{Action: p.action, RequestID: p.id, Kind: common.ErrTimeout}
		}
		result = <-p.done
	case <-ctx.Done():
		if s.correlator.abandon(p) {
			kind := ctx.Err()
			if errors.Is(kind, context.DeadlineExceeded) {
				kind = common.ErrTimeout
			}
			return nil, &common.RequestError{Action: p.action, RequestID: p.id, Kind: kind, Err: ctx.Err()}
		}
		result = <-p.done
	}

	if result.err != nil {
		return nil, &common.RequestError{Action: p.action, RequestID: p.id, Kind: result.err}
	}

	h := &result.frame.Header
	if h.IsError() {
		return nil, common.NewRemoteError(p.action, p.id, result.frame.Payload)
	}
	return &transport.Response{
		RequestID: h.RequestID,
		Headers:   h.ThreadContext,
		Features:  h.Features,
		Payload:   result.frame.Payload,
	}, nil
}

func (s *Session) Shutdown(ctx context.Context) error {
	s.beginClose(nil)
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Handshake
// --------------------------------------------------------------------------

// Dial performs the handshake as the connecting side and starts the reader
func (s *Session) Dial(ctx context.Context) error {
	if err := s.dialHandshake(ctx); err != nil {
		s.beginClose(err)
		<-s.done
		return err
	}
	s.established()
	return nil
}

// Accept performs the handshake as the accepting side and starts the reader
func (s *Session) Accept(ctx context.Context) error {
	if err := s.acceptHandshake(ctx); err != nil {
		s.beginClose(err)
		<-s.done
		return err
	}
	s.established()
	return nil
}

// established moves the session out of connecting and starts the reader
func (s *Session) established() {
	s.dispatcher.Freeze()

	s.eventMu.Lock()
	if s.state.CompareAndSwap(int32(transport.StateConnecting), int32(transport.StateEstablished)) {
		s.opened = true
		s.observe(common.Event{Kind: common.EventConnect, Remote: s.remote()})
	}
	s.eventMu.Unlock()

	go s.readLoop()
}

func (s *Session) localInfo() transport.HandshakeInfo {
	return transport.HandshakeInfo{
		Version:  protocol.CurrentVersion,
		NodeName: s.config.NodeName,
		Features: s.config.Features,
	}
}

// handshakeDeadline bounds the handshake by the config and ctx
func (s *Session) handshakeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if s.config.HandshakeTimeout > 0 {
		deadline = time.Now().Add(s.config.HandshakeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

func (s *Session) dialHandshake(ctx context.Context) error {
	if err := s.conn.SetDeadline(s.handshakeDeadline(ctx)); err != nil {
		return err
	}
	defer s.conn.SetDeadline(time.Time{})

	info, _ := s.localInfo().MarshalBinary()
	p, err := s.correlator.register(transport.HandshakeAction)
	if err != nil {
		return err
	}
	defer s.correlator.remove(p)

	err = s.send(&protocol.Frame{
		Header: protocol.TransportHeader{
			Kind:      protocol.KindRequest,
			Version:   protocol.CurrentVersion,
			RequestID: p.id,
			Action:    transport.HandshakeAction,
		},
		Payload: info,
	})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	frame, err := s.reader.ReadFrame()
	if err != nil {
		s.frameFailed(err)
		return fmt.Errorf("handshake: %w", err)
	}
	if frame.Header.IsRequest() || frame.Header.RequestID != p.id {
		return fmt.Errorf("handshake: %w: unexpected %s for request %d", protocol.ErrMalformed, frame.Header.Kind, frame.Header.RequestID)
	}
	if frame.Header.IsError() {
		return fmt.Errorf("handshake: %w", common.NewRemoteError(transport.HandshakeAction, p.id, frame.Payload))
	}

	var peer transport.HandshakeInfo
	if err := peer.UnmarshalBinary(frame.Payload); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if peer.Version != protocol.CurrentVersion {
		return fmt.Errorf("handshake: unsupported peer version %d", peer.Version)
	}
	s.peer = peer
	return nil
}

func (s *Session) acceptHandshake(ctx context.Context) error {
	if err := s.conn.SetDeadline(s.handshakeDeadline(ctx)); err != nil {
		return err
	}
	defer s.conn.SetDeadline(time.Time{})

	frame, err := s.reader.ReadFrame()
	if err != nil {
		s.frameFailed(err)
		return fmt.Errorf("handshake: %w", err)
	}
	h := frame.Header
	if !h.IsRequest() || h.Action != transport.HandshakeAction {
		s.writeHandshakeError(h, common.NewErrorBody(common.KindRejected, h.Action, "handshake required"))
		return fmt.Errorf("handshake: %w: expected handshake request, got %s %q", protocol.ErrMalformed, h.Kind, h.Action)
	}

	var peer transport.HandshakeInfo
	if err := peer.UnmarshalBinary(frame.Payload); err != nil {
		s.writeHandshakeError(h, common.NewErrorBody(common.KindRejected, h.Action, err.Error()))
		return fmt.Errorf("handshake: %w", err)
	}
	if peer.Version != protocol.CurrentVersion {
		msg := fmt.Sprintf("unsupported version %d", peer.Version)
		s.writeHandshakeError(h, common.NewErrorBody(common.KindRejected, h.Action, msg))
		return fmt.Errorf("handshake: %s", msg)
	}
	s.peer = peer

	info, _ := s.localInfo().MarshalBinary()
	err = s.send(&protocol.Frame{
		Header: protocol.TransportHeader{
			Kind:      protocol.KindResponse,
			Version:   protocol.CurrentVersion,
			RequestID: h.RequestID,
		},
		Payload: info,
	})
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

func (s *Session) writeHandshakeError(h protocol.TransportHeader, body []byte) {
	if h.Kind != protocol.KindRequest {
		return
	}
	err := s.send(&protocol.Frame{
		Header: protocol.TransportHeader{
			Kind:      protocol.KindResponse,
			Status:    protocol.StatusError,
			Version:   protocol.CurrentVersion,
			RequestID: h.RequestID,
		},
		Payload: body,
	})
	if err != nil {
		Logger.Debugf("Failed to write handshake error: %v", err)
	}
}

// --------------------------------------------------------------------------
// Reading and writing
// --------------------------------------------------------------------------

// readLoop is the single reader of the connection. It routes requests to the
// dispatcher and responses to the correlator until the stream fails.
func (s *Session) readLoop() {
	for {
		frame, err := s.reader.ReadFrame()
		if err != nil {
			s.readFailed(err)
			return
		}

		if frame.Header.IsRequest() {
			s.dispatcher.dispatch(s.ctx, frame)
			continue
		}

		p, err := s.correlator.complete(frame)
		switch {
		case errors.Is(err, common.ErrDuplicateResponse):
			Logger.Warningf("Dropping response for unknown request id %d from %s", frame.Header.RequestID, s.remote())
			s.observe(common.Event{
				Kind:      common.EventDuplicateResponse,
				RequestID: frame.Header.RequestID,
				Remote:    s.remote(),
				Err:       err,
			})
		case errors.Is(err, errLateResponse):
			Logger.Debugf("Dropping late response for abandoned request %d (%s)", p.id, p.action)
		}
	}
}

// readFailed classifies a read error and closes the session
func (s *Session) readFailed(err error) {
	switch {
	case s.State() >= transport.StateClosing:
		Logger.Debugf("Reader for %s stopped: %v", s.remote(), err)
	case errors.Is(err, io.EOF):
		Logger.Infof("Connection closed by peer %s", s.remote())
	case s.frameFailed(err):
	default:
		Logger.Errorf("Error reading from %s: %v", s.remote(), err)
	}
	s.beginClose(err)
}

// frameFailed reports err as a decode error when the stream carried an
// invalid frame
func (s *Session) frameFailed(err error) bool {
	if !isFrameError(err) {
		return false
	}
	Logger.Errorf("Invalid frame from %s: %v", s.remote(), err)
	s.observe(common.Event{Kind: common.EventDecodeError, Remote: s.remote(), Err: err})
	return true
}

// send writes a frame under the write lock. A failed write leaves the stream
// in an unknown state and closes the session.
func (s *Session) send(frame *protocol.Frame) error {
	if err := s.limits.CheckPayload(len(frame.Payload)); err != nil {
		return err
	}

	s.writeMu.Lock()
	if s.config.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			s.writeMu.Unlock()
			return err
		}
	}
	err := protocol.WriteFrame(s.conn, frame)
	s.writeMu.Unlock()

	if err != nil && !errors.Is(err, protocol.ErrMalformed) {
		// called from handler goroutines which the teardown waits for
		go s.beginClose(fmt.Errorf("write failed: %w", err))
	}
	return err
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// beginClose moves the session to closing exactly once. cause is nil for a
// local shutdown and the fatal error otherwise.
func (s *Session) beginClose(cause error) {
	s.closeOnce.Do(func() {
		s.closeErr = cause
		s.state.Store(int32(transport.StateClosing))
		go s.teardown(cause)
	})
}

func (s *Session) teardown(cause error) {
	if cause != nil {
		// no response can arrive anymore
		s.correlator.closeAll(common.ErrConnectionClosed)
	}

	if !s.dispatcher.drain(s.config.DrainTimeout) {
		Logger.Warningf("%d handlers still running after %s drain timeout, canceling", s.dispatcher.running(), s.config.DrainTimeout)
	}
	s.cancel()

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		Logger.Debugf("Error closing connection to %s: %v", s.remote(), err)
	}
	if n := s.correlator.closeAll(common.ErrConnectionClosed); n > 0 {
		Logger.Debugf("Resolved %d pending requests with connection closed", n)
	}

	s.state.Store(int32(transport.StateClosed))

	s.eventMu.Lock()
	if s.opened {
		s.observe(common.Event{Kind: common.EventDisconnect, Remote: s.remote(), Err: cause})
	}
	s.eventMu.Unlock()
	close(s.done)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// isFrameError reports whether err comes from decoding a frame
func isFrameError(err error) bool {
	return errors.Is(err, protocol.ErrTruncated) ||
		errors.Is(err, protocol.ErrMalformed) ||
		errors.Is(err, protocol.ErrTooLarge) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func (s *Session) observe(ev common.Event) {
	s.observer.Observe(ev)
}

func (s *Session) remote() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
