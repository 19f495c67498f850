// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func init() {
	// Concrete types carried inside Payload interface fields must be
	// registered for gob. Callers moving custom types across the wire
	// register them with RegisterWireType.
	gob.Register([]any(nil))
	gob.Register([]float64(nil))
	gob.Register([]string(nil))
	gob.Register([]int(nil))
	gob.Register([]int64(nil))
	gob.Register([]bool(nil))
	gob.Register(Matrix{})
}

// RegisterWireType registers a concrete value type for transfer through the
// wire protocol's dynamically typed payload fields.
func RegisterWireType(v any) {
	gob.Register(v)
}

// payloadSchema is the Arrow schema of every wire message: a single binary
// column holding the gob-encoded payload.
var payloadSchema = arrow.NewSchema([]arrow.Field{
	{Name: "payload", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// Payload carries the op-specific fields of a request or response. Unused
// fields stay zero and are omitted from the encoding.
type Payload struct {
	Statement string   // eval / eval_returning input
	Name      string   // function or variable name
	Count     int      // expected result count
	Args      []any    // positional arguments
	Value     any      // set_var input / get_var output
	Results   []any    // returning-op output
	Names     []string // bound_names output
}

// Request is one parsed engine-primitive request from the wire.
type Request struct {
	Op        string
	Version   string
	RequestID string
	Payload   Payload
}

// ReadRequest reads one complete IPC stream from the reader and decodes the
// engine-primitive request it carries. It returns io.EOF when the peer has
// closed the transport.
func ReadRequest(r io.Reader) (*Request, error) {
	meta, payload, err := readMessage(r)
	if err != nil {
		return nil, err
	}

	op, ok := meta.GetValue(MetaOp)
	if !ok {
		return nil, &EngineError{Op: "read", Message: "missing '" + MetaOp + "' in request batch custom_metadata"}
	}
	version, ok := meta.GetValue(MetaRequestVersion)
	if !ok {
		return nil, &EngineError{Op: op, Message: "missing '" + MetaRequestVersion + "' in request batch custom_metadata"}
	}
	if version != ProtocolVersion {
		return nil, &EngineError{Op: op,
			Message: fmt.Sprintf("unsupported request version %q, expected %q", version, ProtocolVersion)}
	}
	requestID, _ := meta.GetValue(MetaRequestID)

	req := &Request{Op: op, Version: version, RequestID: requestID}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&req.Payload); err != nil {
		return nil, &EngineError{Op: op, Message: "decoding request payload: " + err.Error()}
	}
	return req, nil
}

// WriteResponse writes a successful response for the given request.
func WriteResponse(w io.Writer, req *Request, payload Payload, compress bool) error {
	meta := arrow.NewMetadata(
		[]string{MetaOp, MetaRequestVersion, MetaRequestID},
		[]string{req.Op, ProtocolVersion, req.RequestID},
	)
	return writeMessage(w, meta, &payload, compress)
}

// WriteErrorResponse writes a zero-row error batch for the given request.
// The error crosses the wire as metadata and is rehydrated into an
// *EngineError on the client side.
func WriteErrorResponse(w io.Writer, req *Request, cause error) error {
	op := ""
	if engErr, ok := cause.(*EngineError); ok {
		op = engErr.Op
	}
	if op == "" && req != nil {
		op = req.Op
	}

	keys := []string{MetaErrorMessage, MetaErrorOp, MetaRequestVersion}
	vals := []string{errorMessage(cause), op, ProtocolVersion}
	if req != nil && req.RequestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, req.RequestID)
	}

	return writeMessage(w, arrow.NewMetadata(keys, vals), nil, false)
}

// errorMessage strips the EngineError prefix so the message is not doubled
// when the client rebuilds the error.
func errorMessage(err error) string {
	if engErr, ok := err.(*EngineError); ok {
		return engErr.Message
	}
	return err.Error()
}

// writeRequest writes one engine-primitive request as a complete IPC stream.
func writeRequest(w io.Writer, op, requestID string, payload *Payload, compress bool) error {
	meta := arrow.NewMetadata(
		[]string{MetaOp, MetaRequestVersion, MetaRequestID},
		[]string{op, ProtocolVersion, requestID},
	)
	return writeMessage(w, meta, payload, compress)
}

// readResponse reads one complete IPC stream and decodes the response it
// carries. Error batches are rehydrated into *EngineError.
func readResponse(r io.Reader) (*Payload, string, error) {
	meta, data, err := readMessage(r)
	if err != nil {
		return nil, "", err
	}

	if msg, ok := meta.GetValue(MetaErrorMessage); ok {
		op, _ := meta.GetValue(MetaErrorOp)
		return nil, "", &EngineError{Op: op, Message: msg}
	}

	requestID, _ := meta.GetValue(MetaRequestID)
	var payload Payload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, "", &EngineError{Op: "read", Message: "decoding response payload: " + err.Error()}
	}
	return &payload, requestID, nil
}

// writeMessage writes one complete IPC stream holding a single batch: a
// one-row payload batch when payload is set, or a zero-row metadata-only
// batch for errors.
func writeMessage(w io.Writer, meta arrow.Metadata, payload *Payload, compress bool) error {
	mem := memory.NewGoAllocator()

	var cols []arrow.Array
	rows := int64(0)
	if payload != nil {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		b.Append(buf.Bytes())
		arr := b.NewArray()
		b.Release()
		defer arr.Release()
		cols = []arrow.Array{arr}
		rows = 1
	} else {
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		arr := b.NewArray()
		b.Release()
		defer arr.Release()
		cols = []arrow.Array{arr}
	}

	batch := array.NewRecordBatchWithMetadata(payloadSchema, cols, rows, meta)
	defer batch.Release()

	opts := []ipc.Option{ipc.WithSchema(payloadSchema)}
	if compress {
		opts = append(opts, ipc.WithZstd())
	}
	writer := ipc.NewWriter(w, opts...)
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing wire batch: %w", err)
	}
	return writer.Close()
}

// readMessage reads one complete IPC stream and returns the first batch's
// metadata and payload bytes (nil for zero-row batches).
func readMessage(r io.Reader) (arrow.Metadata, []byte, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		if err == io.EOF {
			return arrow.Metadata{}, nil, io.EOF
		}
		return arrow.Metadata{}, nil, fmt.Errorf("reading wire IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil && err != io.EOF {
			return arrow.Metadata{}, nil, fmt.Errorf("reading wire batch: %w", err)
		}
		return arrow.Metadata{}, nil, io.EOF
	}
	batch := reader.RecordBatch()

	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}

	var payload []byte
	if batch.NumRows() > 0 {
		col, ok := batch.Column(0).(*array.Binary)
		if !ok {
			return arrow.Metadata{}, nil, fmt.Errorf("wire batch column is %T, expected binary", batch.Column(0))
		}
		payload = bytes.Clone(col.Value(0))
	}

	// Drain remaining batches (read to EOS).
	for reader.Next() {
		// discard
	}
	return meta, payload, nil
}
