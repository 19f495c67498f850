// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
)

func TestReadRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := &Payload{Name: "sum_pair", Count: 1, Args: []any{2.0, 3.0}}
	if err := writeRequest(&buf, OpCallReturning, "req-1", payload, false); err != nil {
		t.Fatalf("writeRequest: %v", err)
	}

	req, err := ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Op != OpCallReturning || req.Version != ProtocolVersion || req.RequestID != "req-1" {
		t.Fatalf("req = %+v", req)
	}
	if req.Payload.Name != "sum_pair" || req.Payload.Count != 1 || len(req.Payload.Args) != 2 {
		t.Fatalf("payload = %+v", req.Payload)
	}
	if req.Payload.Args[0] != 2.0 {
		t.Fatalf("args = %v", req.Payload.Args)
	}
}

func TestReadResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Op: OpGetVar, RequestID: "req-2"}
	if err := WriteResponse(&buf, req, Payload{Value: []float64{1, 2}}, false); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	payload, requestID, err := readResponse(&buf)
	if err != nil {
		t.Fatalf("readResponse: %v", err)
	}
	if requestID != "req-2" {
		t.Fatalf("requestID = %q", requestID)
	}
	got, ok := payload.Value.([]float64)
	if !ok || len(got) != 2 {
		t.Fatalf("value = %#v", payload.Value)
	}
}

func TestErrorResponseRehydrates(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Op: OpEval, RequestID: "req-3"}
	cause := &EngineError{Op: "eval", Message: "parse failure"}
	if err := WriteErrorResponse(&buf, req, cause); err != nil {
		t.Fatalf("WriteErrorResponse: %v", err)
	}

	_, _, err := readResponse(&buf)
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("err = %v, want engine error", err)
	}
	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("err = %T", err)
	}
	if engErr.Op != "eval" || engErr.Message != "parse failure" {
		t.Fatalf("engErr = %+v", engErr)
	}
}

func TestReadRequestRejectsWrongVersion(t *testing.T) {
	var buf bytes.Buffer
	meta := arrow.NewMetadata(
		[]string{MetaOp, MetaRequestVersion},
		[]string{OpEval, "99"},
	)
	if err := writeMessage(&buf, meta, &Payload{Statement: "x = 1;"}, false); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	_, err := ReadRequest(&buf)
	if err == nil || !strings.Contains(err.Error(), "unsupported request version") {
		t.Fatalf("err = %v, want version error", err)
	}
}

func TestReadRequestEmptyTransport(t *testing.T) {
	var buf bytes.Buffer
	if _, err := ReadRequest(&buf); err == nil {
		t.Fatal("expected error on empty transport")
	}
}
