// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// RemoteEngine is an [Engine] backed by a host process on the far side of a
// reader/writer pair, typically the stdin/stdout of a child process running
// [RunStdio]. Each primitive is one request/response exchange on the wire.
//
// RemoteEngine serializes calls internally, so it is safe for concurrent use,
// but calls block each other; the underlying transport carries one exchange
// at a time.
type RemoteEngine struct {
	mu       sync.Mutex
	r        io.Reader
	w        io.Writer
	compress bool
}

// RemoteOption configures a [RemoteEngine].
type RemoteOption func(*RemoteEngine)

// WithCompression enables zstd compression of request bodies.
func WithCompression() RemoteOption {
	return func(e *RemoteEngine) { e.compress = true }
}

// NewRemoteEngine returns an [Engine] that forwards every primitive over the
// given transport. The reader carries host responses and the writer carries
// requests.
func NewRemoteEngine(r io.Reader, w io.Writer, opts ...RemoteOption) *RemoteEngine {
	e := &RemoteEngine{r: r, w: w}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RemoteEngine) roundTrip(ctx context.Context, op string, payload *Payload) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	requestID := uuid.NewString()
	if err := writeRequest(e.w, op, requestID, payload, e.compress); err != nil {
		return nil, &EngineError{Op: op, Message: "writing request: " + err.Error()}
	}

	resp, respID, err := readResponse(e.r)
	if err != nil {
		return nil, err
	}
	if respID != "" && respID != requestID {
		return nil, &EngineError{Op: op,
			Message: "response request id " + respID + " does not match request " + requestID}
	}
	return resp, nil
}

func (e *RemoteEngine) Eval(ctx context.Context, statement string) error {
	_, err := e.roundTrip(ctx, OpEval, &Payload{Statement: statement})
	return err
}

func (e *RemoteEngine) EvalReturning(ctx context.Context, expr string, resultCount int) ([]any, error) {
	resp, err := e.roundTrip(ctx, OpEvalReturning, &Payload{Statement: expr, Count: resultCount})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (e *RemoteEngine) Call(ctx context.Context, name string, args ...any) error {
	_, err := e.roundTrip(ctx, OpCall, &Payload{Name: name, Args: args})
	return err
}

func (e *RemoteEngine) CallReturning(ctx context.Context, name string, resultCount int, args ...any) ([]any, error) {
	resp, err := e.roundTrip(ctx, OpCallReturning, &Payload{Name: name, Count: resultCount, Args: args})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (e *RemoteEngine) SetVar(ctx context.Context, name string, value any) error {
	_, err := e.roundTrip(ctx, OpSetVar, &Payload{Name: name, Value: value})
	return err
}

func (e *RemoteEngine) GetVar(ctx context.Context, name string) (any, error) {
	resp, err := e.roundTrip(ctx, OpGetVar, &Payload{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (e *RemoteEngine) BoundNames(ctx context.Context) ([]string, error) {
	resp, err := e.roundTrip(ctx, OpBoundNames, &Payload{})
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}
