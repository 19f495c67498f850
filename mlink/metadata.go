// © Copyright 2026, The mlink Authors
// SPDX-License-Identifier: Apache-2.0

package mlink

// Well-known metadata keys used in the mlink wire protocol. These appear as
// custom_metadata on Arrow IPC RecordBatch messages.
const (
	MetaOp             = "mlink.op"
	MetaRequestVersion = "mlink.request_version"
	MetaRequestID      = "mlink.request_id"
	MetaErrorMessage   = "mlink.error_message"
	MetaErrorOp        = "mlink.error_op"

	ProtocolVersion = "1"
)

// Engine primitives carried in MetaOp.
const (
	OpEval          = "eval"
	OpEvalReturning = "eval_returning"
	OpCall          = "call"
	OpCallReturning = "call_returning"
	OpSetVar        = "set_var"
	OpGetVar        = "get_var"
	OpBoundNames    = "bound_names"
)
