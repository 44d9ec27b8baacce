package common

import (
	"encoding/json"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// Dispatch errors are scoped to one inbound request and travel back to the
// peer as an error response. They never close the connection.
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrHandlerFailed = errors.New("handler failed")
	ErrRejected      = errors.New("request rejected")
)

// Correlation errors are returned to the caller of Execute.
var (
	ErrTimeout           = errors.New("request timed out")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrDuplicateResponse = errors.New("duplicate or unknown response")
	ErrIDSpaceExhausted  = errors.New("no free request id")
)

// Wire names of the dispatch error kinds, as carried in the "error" field of
// an error response payload.
const (
	KindUnknownAction = "unknown_action"
	KindHandlerFailed = "handler_failed"
	KindRejected      = "rejected"
)

// kindSentinels maps wire kinds to the local sentinel errors
var kindSentinels = map[string]error{
	KindUnknownAction: ErrUnknownAction,
	KindHandlerFailed: ErrHandlerFailed,
	KindRejected:      ErrRejected,
}

// --------------------------------------------------------------------------
// RequestError
// --------------------------------------------------------------------------

// RequestError is returned by Execute when a request did not produce a
// response. Kind is one of the correlation sentinels (or context.Canceled)
// so callers can use errors.Is to decide whether a retry makes sense.
type RequestError struct {
	Action    string
	RequestID uint32
	Kind      error
	Err       error // optional underlying cause
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (action=%q, request_id=%d): %v", e.Kind, e.Action, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s (action=%q, request_id=%d)", e.Kind, e.Action, e.RequestID)
}

func (e *RequestError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// --------------------------------------------------------------------------
// RemoteError
// --------------------------------------------------------------------------

// ErrorBody is the JSON payload of every error response written by the
// dispatcher, e.g. {"error":"unknown_action","action":"missing"}
type ErrorBody struct {
	Error   string `json:"error"`
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// NewErrorBody encodes an error response payload
func NewErrorBody(kind, action, message string) []byte {
	b, err := json.Marshal(ErrorBody{Error: kind, Action: action, Message: message})
	if err != nil {
		// a struct of three strings always marshals
		panic(err)
	}
	return b
}

// RemoteError is returned by Execute when the peer answered with status=Error
type RemoteError struct {
	Action    string
	RequestID uint32
	Kind      string
	Message   string
	Payload   []byte // raw payload, kept when it is not an ErrorBody
}

// NewRemoteError builds a RemoteError from an error response payload. Payloads
// which are not a JSON ErrorBody are kept verbatim.
func NewRemoteError(action string, requestID uint32, payload []byte) *RemoteError {
	e := &RemoteError{Action: action, RequestID: requestID}
	var body ErrorBody
	if err := json.Unmarshal(payload, &body); err != nil || body.Error == "" {
		e.Kind = "remote_error"
		e.Payload = payload
		return e
	}
	e.Kind = body.Error
	e.Message = body.Message
	if body.Action != "" {
		e.Action = body.Action
	}
	return e
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("remote %s (action=%q, request_id=%d)", e.Kind, e.Action, e.RequestID)
	if e.Message != "" {
		msg += ": " + e.Message
	} else if len(e.Payload) > 0 {
		msg += ": " + string(e.Payload)
	}
	return msg
}

// Is lets errors.Is match a RemoteError against the dispatch sentinels
func (e *RemoteError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}
