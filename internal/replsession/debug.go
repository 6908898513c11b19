package replsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantumflow/quantumflow-memory/internal/kerneltransport"
)

// DebugState is a node in the debug sub-session state machine:
//
//	Detached --start--> Running --breakpoint hit--> Paused
//	Paused --step/next/finish/continue--> Running
//	Paused --detach / .exit--> Detached
//	Running --detach--> Detached
type DebugState string

const (
	DebugDetached DebugState = "detached"
	DebugRunning  DebugState = "running"
	DebugPaused   DebugState = "paused"
)

// PauseEvent is published when the debug sub-session pauses at a breakpoint,
// carrying enough for the UI to show where execution stopped and why.
type PauseEvent struct {
	File   string
	Line   int
	Reason string
}

// ErrNotPaused is returned by commands that require the debug sub-session to
// be paused (locals, backtrace, frame n) when it is not.
var ErrNotPaused = fmt.Errorf("replsession: debug sub-session is not paused")

// ErrNoTransport is returned by debug commands when the session has no
// kernel transport client attached (a direct/in-process executor has no
// LDP channel to carry debug operations over).
var ErrNoTransport = fmt.Errorf("replsession: no kernel transport attached for debugging")

// DebugSession tracks the state machine and relays LDP calls through a
// kernel transport client.
type DebugSession struct {
	client *kerneltransport.Client

	mu     sync.Mutex
	state  DebugState
	pauses chan PauseEvent
}

// NewDebugSession builds a detached debug sub-session bound to client.
// Pauses is a buffered channel the caller drains to observe pause events;
// it is never closed by the session.
func NewDebugSession(client *kerneltransport.Client, pauses chan PauseEvent) *DebugSession {
	return &DebugSession{client: client, state: DebugDetached, pauses: pauses}
}

func (d *DebugSession) State() DebugState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *DebugSession) setState(s DebugState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Start transitions Detached -> Running.
func (d *DebugSession) Start() {
	d.setState(DebugRunning)
}

// Detach transitions Running or Paused -> Detached.
func (d *DebugSession) Detach() {
	d.setState(DebugDetached)
}

func (d *DebugSession) publishPause(reply kerneltransport.DebugReply) {
	d.setState(DebugPaused)
	if d.pauses == nil {
		return
	}
	ev := PauseEvent{File: "", Line: 0, Reason: reply.StopReason}
	if len(reply.StackFrames) > 0 {
		ev.Line = reply.StackFrames[0].Line
	}
	select {
	case d.pauses <- ev:
	default:
	}
}

// continueLike issues a step/next/finish/continue-shaped command, moving to
// Running and then back to Paused if the kernel reports another stop, or
// leaving Running if execution completed.
func (d *DebugSession) continueLike(ctx context.Context, cmd kerneltransport.DebugCommand) (kerneltransport.DebugReply, error) {
	if d.client == nil {
		return kerneltransport.DebugReply{}, ErrNoTransport
	}
	d.setState(DebugRunning)
	reply, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: cmd})
	if err != nil {
		return reply, err
	}
	if reply.Stopped {
		d.publishPause(reply)
	}
	return reply, nil
}

func (d *DebugSession) Step(ctx context.Context) (kerneltransport.DebugReply, error) {
	return d.continueLike(ctx, kerneltransport.DebugStep)
}

func (d *DebugSession) Next(ctx context.Context) (kerneltransport.DebugReply, error) {
	return d.continueLike(ctx, kerneltransport.DebugNext)
}

func (d *DebugSession) Continue(ctx context.Context) (kerneltransport.DebugReply, error) {
	return d.continueLike(ctx, kerneltransport.DebugContinue)
}

// Finish behaves like continue in this transport's vocabulary: the kernel
// distinguishes "run to return" from "run to next breakpoint" by the
// expression field, not a separate command kind.
func (d *DebugSession) Finish(ctx context.Context) (kerneltransport.DebugReply, error) {
	if d.client == nil {
		return kerneltransport.DebugReply{}, ErrNoTransport
	}
	d.setState(DebugRunning)
	reply, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugContinue, Expression: "finish"})
	if err != nil {
		return reply, err
	}
	if reply.Stopped {
		d.publishPause(reply)
	}
	return reply, nil
}

func (d *DebugSession) SetBreakpoint(ctx context.Context, file string, line int) error {
	if d.client == nil {
		return ErrNoTransport
	}
	_, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugSetBreak, File: file, Line: line})
	return err
}

func (d *DebugSession) ClearBreakpoint(ctx context.Context, file string, line int) error {
	if d.client == nil {
		return ErrNoTransport
	}
	_, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugClearBreak, File: file, Line: line})
	return err
}

// requirePaused returns ErrNotPaused without calling the kernel when the
// sub-session isn't paused, so locals/backtrace/frame fail cleanly.
func (d *DebugSession) requirePaused() error {
	if d.State() != DebugPaused {
		return ErrNotPaused
	}
	return nil
}

func (d *DebugSession) Locals(ctx context.Context) ([]kerneltransport.Variable, error) {
	if err := d.requirePaused(); err != nil {
		return nil, err
	}
	reply, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugVariables})
	if err != nil {
		return nil, err
	}
	return reply.Variables, nil
}

func (d *DebugSession) Backtrace(ctx context.Context) ([]kerneltransport.StackFrame, error) {
	if err := d.requirePaused(); err != nil {
		return nil, err
	}
	reply, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugStackTrace})
	if err != nil {
		return nil, err
	}
	return reply.StackFrames, nil
}

func (d *DebugSession) Frame(ctx context.Context, n int) (kerneltransport.StackFrame, error) {
	if err := d.requirePaused(); err != nil {
		return kerneltransport.StackFrame{}, err
	}
	reply, err := d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugStackTrace})
	if err != nil {
		return kerneltransport.StackFrame{}, err
	}
	if n < 0 || n >= len(reply.StackFrames) {
		return kerneltransport.StackFrame{}, fmt.Errorf("replsession: frame %d out of range (0..%d)", n, len(reply.StackFrames)-1)
	}
	return reply.StackFrames[n], nil
}

func (d *DebugSession) Print(ctx context.Context, expr string) (kerneltransport.DebugReply, error) {
	if err := d.requirePaused(); err != nil {
		return kerneltransport.DebugReply{}, err
	}
	return d.client.SendDebugCommand(ctx, kerneltransport.DebugRequest{Command: kerneltransport.DebugEvaluate, Expression: expr})
}
