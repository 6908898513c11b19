// Package kerneltransport implements the kernel transport client (C6): a
// request/reply protocol over a persistent byte stream, newline-delimited
// JSON framing grounded on steveyegge-beads' internal/rpc client
// (bufio writer + trailing '\n' + bufio reader ReadBytes('\n')).
//
// Two message families ride the same frame: LRP carries execution requests
// and replies, LDP carries debug protocol operations (evaluate, step,
// continue, breakpoints). The transport owns request/reply correlation so
// callers only ever see their own call's result, even with other calls
// in flight on the same connection.
package kerneltransport

import "encoding/json"

// MessageKind tags which protocol family and operation an envelope carries.
type MessageKind string

const (
	KindExecuteRequest MessageKind = "execute_request"
	KindExecuteReply   MessageKind = "execute_reply"
	KindDebugRequest   MessageKind = "debug_request"
	KindDebugReply     MessageKind = "debug_reply"
	KindHealthRequest  MessageKind = "health_request"
	KindHealthReply    MessageKind = "health_reply"
	KindShutdown       MessageKind = "shutdown_request"
)

// Envelope is the wire frame: one JSON object per line. RequestID
// correlates a reply to the request that produced it.
type Envelope struct {
	RequestID string          `json:"request_id"`
	Kind      MessageKind     `json:"kind"`
	Body      json.RawMessage `json:"body"`
}

// ExecuteRequest is the LRP execution request body.
type ExecuteRequest struct {
	Code            string                 `json:"code"`
	Silent          bool                   `json:"silent"`
	StoreHistory    bool                   `json:"store_history"`
	UserExpressions map[string]string      `json:"user_expressions,omitempty"`
	AllowStdin      bool                   `json:"allow_stdin"`
	StopOnError     bool                   `json:"stop_on_error"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// ExecuteStatus is the LRP reply status.
type ExecuteStatus string

const (
	StatusOK    ExecuteStatus = "ok"
	StatusError ExecuteStatus = "error"
	StatusAbort ExecuteStatus = "abort"
)

// ExecuteReply is the LRP execution reply body.
type ExecuteReply struct {
	Status       ExecuteStatus     `json:"status"`
	Payload      []json.RawMessage `json:"payload,omitempty"`
	ErrorName    string            `json:"error_name,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// DebugCommand names an LDP operation.
type DebugCommand string

const (
	DebugEvaluate   DebugCommand = "evaluate"
	DebugStep       DebugCommand = "step"
	DebugNext       DebugCommand = "next"
	DebugContinue   DebugCommand = "continue"
	DebugSetBreak   DebugCommand = "set_breakpoint"
	DebugClearBreak DebugCommand = "clear_breakpoint"
	DebugStackTrace DebugCommand = "stack_trace"
	DebugScopes     DebugCommand = "scopes"
	DebugVariables  DebugCommand = "variables"
)

// DebugRequest is the LDP request body.
type DebugRequest struct {
	Command    DebugCommand `json:"command"`
	Expression string       `json:"expression,omitempty"`
	FrameID    *int         `json:"frame_id,omitempty"`
	Context    string       `json:"context,omitempty"`
	Format     string       `json:"format,omitempty"`
	Line       int          `json:"line,omitempty"`
	File       string       `json:"file,omitempty"`
}

// DebugReply is the LDP response body. Only the fields relevant to the
// issued command are populated; the rest are zero values.
type DebugReply struct {
	AllThreadsContinued bool         `json:"all_threads_continued,omitempty"`
	Result              string       `json:"result,omitempty"`
	Type                string       `json:"type,omitempty"`
	StackFrames         []StackFrame `json:"stack_frames,omitempty"`
	Variables           []Variable   `json:"variables,omitempty"`
	Stopped             bool         `json:"stopped,omitempty"`
	StopReason          string       `json:"stop_reason,omitempty"`
}

// StackFrame is one frame in a DebugReply's stack trace.
type StackFrame struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Variable is one binding in a DebugReply's variable list.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}
