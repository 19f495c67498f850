// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
)

// Serve runs the host loop on the given reader/writer pair, answering engine
// primitives against eng until the peer closes the transport.
func Serve(eng Engine, r io.Reader, w io.Writer) {
	ServeWithContext(context.Background(), eng, r, w)
}

// ServeWithContext runs the host loop with a context. The context is passed
// to every engine primitive; cancelling it aborts in-flight work but the
// loop itself exits on transport EOF.
func ServeWithContext(ctx context.Context, eng Engine, r io.Reader, w io.Writer) {
	for {
		if err := serveOne(ctx, eng, r, w); err != nil {
			if err == io.EOF {
				return
			}
			// Only log unexpected errors (not broken pipe / connection reset)
			if !isTransportClosed(err) {
				slog.Error("engine host loop error", "err", err)
			}
			return
		}
	}
}

// RunStdio runs the host loop reading from stdin and writing to stdout.
// If stdin or stdout is connected to a terminal, a warning is printed to
// stderr.
func RunStdio(eng Engine) {
	// Ignore SIGPIPE so writes to closed pipes return errors instead of
	// killing the process. Transport errors are already handled by
	// isTransportClosed() in the host loop.
	signal.Ignore(syscall.SIGPIPE)

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process communicates via Arrow IPC on stdin/stdout "+
				"and is not intended to be run interactively.\n"+
				"It should be launched as a subprocess by an engine client "+
				"(e.g. mlink.NewRemoteEngine).")
	}
	Serve(eng, os.Stdin, os.Stdout)
}

// serveOne handles one complete request-response cycle.
func serveOne(ctx context.Context, eng Engine, r io.Reader, w io.Writer) error {
	req, err := ReadRequest(r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		// Try to write error response
		if engErr, ok := err.(*EngineError); ok {
			_ = WriteErrorResponse(w, req, engErr)
			return nil // continue serving
		}
		return err // transport error, stop serving
	}

	payload, err := dispatchPrimitive(ctx, eng, req)
	if err != nil {
		return WriteErrorResponse(w, req, err)
	}
	return WriteResponse(w, req, payload, false)
}

// dispatchPrimitive executes one engine primitive named by the request op.
func dispatchPrimitive(ctx context.Context, eng Engine, req *Request) (Payload, error) {
	switch req.Op {
	case OpEval:
		return Payload{}, eng.Eval(ctx, req.Payload.Statement)
	case OpEvalReturning:
		results, err := eng.EvalReturning(ctx, req.Payload.Statement, req.Payload.Count)
		return Payload{Results: results}, err
	case OpCall:
		return Payload{}, eng.Call(ctx, req.Payload.Name, req.Payload.Args...)
	case OpCallReturning:
		results, err := eng.CallReturning(ctx, req.Payload.Name, req.Payload.Count, req.Payload.Args...)
		return Payload{Results: results}, err
	case OpSetVar:
		return Payload{}, eng.SetVar(ctx, req.Payload.Name, req.Payload.Value)
	case OpGetVar:
		value, err := eng.GetVar(ctx, req.Payload.Name)
		return Payload{Value: value}, err
	case OpBoundNames:
		names, err := eng.BoundNames(ctx)
		return Payload{Names: names}, err
	default:
		return Payload{}, &EngineError{Op: req.Op, Message: "unknown op: '" + req.Op + "'"}
	}
}

// isTransportClosed returns true for errors that indicate the transport was closed normally.
func isTransportClosed(err error) bool {
	if err == io.EOF {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}
