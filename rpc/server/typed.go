package server

import (
	"context"
	"fmt"
	"github.com/Infopercept/opensearch-sdk-go/rpc/serializer"
	"github.com/Infopercept/opensearch-sdk-go/rpc/transport"
)

// TypedHandler adapts a function working on decoded values to a
// transport.Handler. The request payload is deserialized into a Req, the
// returned Resp is serialized with the same serializer.
//
// Usage:
//
//	s.Register("hello", server.TypedHandler(s.Serializer(),
//		func(ctx context.Context, req HelloRequest) (HelloResponse, error) {
//			return HelloResponse{Greeting: "hello " + req.Name}, nil
//		}))
func TypedHandler[Req, Resp any](
	s serializer.IRPCSerializer,
	fn func(ctx context.Context, req Req) (Resp, error),
) transport.Handler {
	return func(ctx context.Context, r *transport.Request) ([]byte, error) {
		var req Req
		if len(r.Payload) > 0 {
			if err := s.Deserialize(r.Payload, &req); err != nil {
				return nil, fmt.Errorf("failed to deserialize request: %w", err)
			}
		}

		resp, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}

		payload, err := s.Serialize(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize response: %w", err)
		}
		return payload, nil
	}
}
