// Package replsession implements the interactive session (C8): a REPL loop
// that drives the kernel transport (C6), tracks per-session statistics, and
// owns a debug sub-session that observes breakpoint stops and stepping.
package replsession

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/quantumflow/quantumflow-memory/internal/kerneltransport"
	"github.com/quantumflow/quantumflow-memory/internal/scriptexec"
)

// Session is one REPL attached to a kernel. It owns session-local state
// (vars, cwd, history, debug sub-session, statistics) and nothing about the
// kernel's own state, which lives on the other side of the transport.
type Session struct {
	client *kerneltransport.Client
	direct scriptexec.Executor

	in  *bufio.Scanner
	out io.Writer

	stats   *Stats
	history *History
	debug   *DebugSession
	bps     *breakpointTable

	vars map[string]string
	cwd  string

	executing int32 // atomic: 1 while an Execute call is in flight

	logger *zap.Logger
}

// NewSession builds a session. client drives executions and debug commands
// over the kernel transport; direct, if non-nil, is used instead when no
// transport client is attached (an in-process kernel exposing the
// scriptexec contract directly). At least one of the two must be non-nil.
func NewSession(client *kerneltransport.Client, direct scriptexec.Executor, in io.Reader, out io.Writer, historyPath string, logger *zap.Logger) (*Session, error) {
	if client == nil && direct == nil {
		return nil, fmt.Errorf("replsession: need a kernel transport client or a direct executor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	history, err := LoadHistory(historyPath)
	if err != nil {
		return nil, fmt.Errorf("replsession: load history: %w", err)
	}

	cwd, _ := os.Getwd()

	s := &Session{
		client:  client,
		direct:  direct,
		in:      bufio.NewScanner(in),
		out:     out,
		stats:   NewStats(),
		history: history,
		bps:     newBreakpointTable(),
		vars:    make(map[string]string),
		cwd:     cwd,
		logger:  logger,
	}
	s.debug = NewDebugSession(client, make(chan PauseEvent, 16))
	return s, nil
}

// Run drives the read-accumulate-dispatch loop until the input is
// exhausted, `.exit` is issued, or ctx is cancelled. Ctrl-C interrupts the
// in-flight execution if one is running; at an idle prompt it discards the
// accumulated buffer once the next line is read (the line-editor's job in a
// real terminal, approximated here since no external line-editor is wired).
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var execCancel atomic.Value // holds context.CancelFunc
	execCancel.Store(context.CancelFunc(func() {}))
	var clearPending int32 // atomic: 1 after Ctrl-C at an idle prompt
	go func() {
		for range sigCh {
			if atomic.LoadInt32(&s.executing) == 1 {
				execCancel.Load().(context.CancelFunc)()
			} else {
				atomic.StoreInt32(&clearPending, 1)
			}
		}
	}()

	defer func() {
		_ = s.history.Save()
	}()

	var buf strings.Builder
	for {
		fmt.Fprint(s.out, s.prompt(buf.Len() > 0))
		if !s.in.Scan() {
			break
		}
		if atomic.SwapInt32(&clearPending, 0) == 1 {
			buf.Reset()
		}
		line := s.in.Text()
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(line)

		if !IsComplete(buf.String()) {
			continue
		}

		cmd := strings.TrimSpace(buf.String())
		buf.Reset()
		if cmd == "" {
			continue
		}
		s.history.Append(cmd)

		execCtx, cancelExec := context.WithCancel(ctx)
		execCancel.Store(cancelExec)
		exit := s.dispatch(execCtx, cmd)
		cancelExec()
		if exit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return s.in.Err()
}

func (s *Session) prompt(continuation bool) string {
	if continuation {
		return "... "
	}
	return "> "
}

// dispatch routes one complete input unit to Execute, Meta, or Debug
// handling, and reports whether the session should exit.
func (s *Session) dispatch(ctx context.Context, cmd string) (exit bool) {
	switch {
	case strings.HasPrefix(cmd, "."):
		return s.dispatchDot(ctx, cmd)
	default:
		s.executeAndReport(ctx, cmd)
		return false
	}
}

var debugCommands = map[string]bool{
	".break": true, ".delete": true, ".list": true, ".enable": true, ".disable": true,
	".step": true, ".next": true, ".finish": true, ".continue": true, ".pause": true,
	".locals": true, ".backtrace": true, ".frame": true, ".print": true, ".watch": true, ".unwatch": true,
}

func (s *Session) dispatchDot(ctx context.Context, cmd string) (exit bool) {
	fields := strings.Fields(cmd)
	name := fields[0]
	args := fields[1:]

	if debugCommands[name] {
		s.dispatchDebug(ctx, name, args)
		return false
	}
	return s.dispatchMeta(ctx, name, args)
}

// executeAndReport runs code through the attached kernel, tracking
// statistics and interruption.
func (s *Session) executeAndReport(ctx context.Context, code string) {
	memBefore := memRSSBytes()
	atomic.StoreInt32(&s.executing, 1)
	start := time.Now()

	result, errored := s.execute(ctx, code)

	latency := time.Since(start)
	atomic.StoreInt32(&s.executing, 0)
	memAfter := memRSSBytes()

	s.stats.Record(ExecutionRecord{
		Latency:    latency,
		MemBefore:  memBefore,
		MemAfter:   memAfter,
		PeakMem:    maxInt64(memBefore, memAfter),
		Errored:    errored,
		ExecutedAt: start,
	})
	fmt.Fprintln(s.out, result)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (s *Session) execute(ctx context.Context, code string) (string, bool) {
	if s.client != nil {
		reply, err := s.client.Execute(ctx, kerneltransport.ExecuteRequest{Code: code, StoreHistory: true})
		if err != nil {
			return fmt.Sprintf("error: %v", err), true
		}
		if reply.Status != kerneltransport.StatusOK {
			return fmt.Sprintf("%s: %s", reply.ErrorName, reply.ErrorMessage), true
		}
		return joinPayload(reply.Payload), false
	}

	result, err := s.direct.ExecuteDirect(ctx, code)
	if err != nil {
		return fmt.Sprintf("error: %v", err), true
	}
	return result, false
}

// joinPayload renders an execute reply's raw JSON payload items as
// newline-separated text for display at the prompt.
func joinPayload(payload []json.RawMessage) string {
	parts := make([]string, len(payload))
	for i, p := range payload {
		parts[i] = string(p)
	}
	return strings.Join(parts, "\n")
}

// Stats returns the session's running statistics snapshot.
func (s *Session) Stats() Snapshot {
	return s.stats.Snapshot()
}

// Debug returns the attached debug sub-session.
func (s *Session) Debug() *DebugSession {
	return s.debug
}

// parseFileLine splits a "file:line" breakpoint spec.
func parseFileLine(spec string) (string, int, error) {
	idx := strings.LastIndexByte(spec, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("replsession: expected file:line, got %q", spec)
	}
	line, err := strconv.Atoi(spec[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("replsession: invalid line in %q: %w", spec, err)
	}
	return spec[:idx], line, nil
}
