package transport

import (
	"github.com/Infopercept/opensearch-sdk-go/rpc/protocol"
	"reflect"
	"testing"
	"time"
)

func TestApplyOptions(t *testing.T) {
	defaults := ExecuteOptions{Timeout: 30 * time.Second, Features: []string{"a"}}

	got := ApplyOptions(defaults)
	if !reflect.DeepEqual(got, defaults) {
		t.Errorf("no options changed the defaults: %+v", got)
	}

	got = ApplyOptions(defaults,
		WithTimeout(time.Second),
		WithHeaders(map[string]string{"trace": "1"}),
		WithFeatures("b", "c"),
	)
	want := ExecuteOptions{
		Timeout:  time.Second,
		Headers:  map[string]string{"trace": "1"},
		Features: []string{"b", "c"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestNewRequest(t *testing.T) {
	frame := &protocol.Frame{
		Header: protocol.TransportHeader{
			Kind:          protocol.KindRequest,
			Version:       protocol.CurrentVersion,
			RequestID:     9,
			Action:        "act",
			Features:      []string{"f"},
			ThreadContext: map[string]string{"k": "v"},
		},
		Payload: []byte("body"),
	}

	var status protocol.Status
	var sent []byte
	req := NewRequest(frame, func(s protocol.Status, payload []byte) error {
		status, sent = s, payload
		return nil
	})
	if req.RequestID != 9 || req.Action != "act" || req.Headers["k"] != "v" || string(req.Payload) != "body" {
		t.Errorf("request = %+v", req)
	}

	if err := req.RespondError([]byte("bad")); err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if status != protocol.StatusError || string(sent) != "bad" {
		t.Errorf("status %d payload %q", status, sent)
	}
}

func TestHandshakeInfoBinary(t *testing.T) {
	info := HandshakeInfo{Version: 1, NodeName: "node-1", Features: []string{"security", "ml"}}
	data, err := info.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got HandshakeInfo
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(got, info) {
		t.Errorf("got %+v, want %+v", got, info)
	}

	for i := 0; i < len(data); i++ {
		if err := new(HandshakeInfo).UnmarshalBinary(data[:i]); err == nil {
			t.Fatalf("prefix of %d bytes accepted", i)
		}
	}
}
