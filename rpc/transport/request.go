package transport

import (
	"context"
	"errors"
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"time"
)

// ErrAlreadyResponded is returned when a handler tries to answer a request
// a second time
var ErrAlreadyResponded = errors.New("request already answered")

// Handler serves one inbound request. The returned payload is sent as the
// success response and a returned error as a handler_failed error response,
// unless the handler already answered through Request.Respond.
type Handler func(ctx context.Context, req *Request) ([]byte, error)

// RespondFunc writes the response frame for a request
type RespondFunc func(status protocol.Status, payload []byte) error

// --------------------------------------------------------------------------
// Request
// --------------------------------------------------------------------------

// Request is an inbound request as seen by a handler
type Request struct {
	RequestID uint32
	Action    string
	Version   byte
	Headers   map[string]string // the peer's thread context
	Features  []string
	Payload   []byte

	respond RespondFunc
}

// NewRequest creates a request for the given frame. respond is called at
// most once per successful Respond or RespondError.
func NewRequest(frame *protocol.Frame, respond RespondFunc) *Request {
	return &Request{
		RequestID: frame.Header.RequestID,
		Action:    frame.Header.Action,
		Version:   frame.Header.Version,
		Headers:   frame.Header.ThreadContext,
		Features:  frame.Header.Features,
		Payload:   frame.Payload,
		respond:   respond,
	}
}

// Respond sends a success response
func (r *Request) Respond(payload []byte) error {
	return r.respond(protocol.StatusSuccess, payload)
}

// RespondError sends an error response with a raw payload
func (r *Request) RespondError(payload []byte) error {
	return r.respond(protocol.StatusError, payload)
}

// --------------------------------------------------------------------------
// Response
// --------------------------------------------------------------------------

// Response is the successful answer to an Execute call
type Response struct {
	RequestID uint32
	Headers   map[string]string
	Features  []string
	Payload   []byte
}

// --------------------------------------------------------------------------
// Execute options
// --------------------------------------------------------------------------

// ExecuteOptions holds the per request settings
type ExecuteOptions struct {
	Timeout  time.Duration
	Headers  map[string]string
	Features []string
}

// ExecuteOption modifies ExecuteOptions
type ExecuteOption func(*ExecuteOptions)

// WithTimeout overrides the session default timeout. Zero disables the
// timeout, leaving only the context to end the wait.
func WithTimeout(d time.Duration) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Timeout = d
	}
}

// WithHeaders sets the thread context sent with the request
func WithHeaders(headers map[string]string) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Headers = headers
	}
}

// WithFeatures overrides the features sent with the request
func WithFeatures(features ...string) ExecuteOption {
	return func(o *ExecuteOptions) {
		o.Features = features
	}
}

// ApplyOptions folds opts over the given defaults
func ApplyOptions(defaults ExecuteOptions, opts ...ExecuteOption) ExecuteOptions {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}
