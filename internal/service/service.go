// Package service defines the request/response contract shared by the
// verifier's collaborators and the RPC adapter.
package service

import "context"

// Service handles one request and returns its response.
// Implementations must be safe for concurrent use unless documented otherwise.
type Service[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (Resp, error)
}

// Func adapts an ordinary function to Service.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f Func[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Map wraps svc so that requests of type From are converted before being handled.
func Map[From, Req, Resp any](svc Service[Req, Resp], convert func(From) Req) Service[From, Resp] {
	return Func[From, Resp](func(ctx context.Context, req From) (Resp, error) {
		return svc.Call(ctx, convert(req))
	})
}
