package replsession

import (
	"context"
	"fmt"
	"strconv"

	"github.com/quantumflow/quantumflow-memory/internal/kerneltransport"
)

// dispatchDebug handles the Debug(...) command family, manipulating the
// debug sub-session bound to the kernel.
func (s *Session) dispatchDebug(ctx context.Context, name string, args []string) {
	switch name {
	case ".break":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .break file:line")
			return
		}
		file, line, err := parseFileLine(args[0])
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		bp := s.bps.add(file, line)
		if err := s.debug.SetBreakpoint(ctx, file, line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "breakpoint %d at %s:%d\n", bp.ID, bp.File, bp.Line)

	case ".delete":
		id, err := requireIntArg(args, ".delete id")
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		bp, ok := s.bps.remove(id)
		if !ok {
			fmt.Fprintf(s.out, "no such breakpoint: %d\n", id)
			return
		}
		if err := s.debug.ClearBreakpoint(ctx, bp.File, bp.Line); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}

	case ".list":
		for _, bp := range s.bps.list() {
			state := "enabled"
			if !bp.Enabled {
				state = "disabled"
			}
			fmt.Fprintf(s.out, "%d: %s:%d (%s)\n", bp.ID, bp.File, bp.Line, state)
		}

	case ".enable":
		id, err := requireIntArg(args, ".enable id")
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		if _, ok := s.bps.setEnabled(id, true); !ok {
			fmt.Fprintf(s.out, "no such breakpoint: %d\n", id)
		}

	case ".disable":
		id, err := requireIntArg(args, ".disable id")
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		if _, ok := s.bps.setEnabled(id, false); !ok {
			fmt.Fprintf(s.out, "no such breakpoint: %d\n", id)
		}

	case ".step":
		s.reportDebugReply(s.debug.Step(ctx))

	case ".next":
		s.reportDebugReply(s.debug.Next(ctx))

	case ".finish":
		s.reportDebugReply(s.debug.Finish(ctx))

	case ".continue":
		s.reportDebugReply(s.debug.Continue(ctx))

	case ".pause":
		s.debug.Start()
		fmt.Fprintln(s.out, "debug session started")

	case ".locals":
		vars, err := s.debug.Locals(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		for _, v := range vars {
			fmt.Fprintf(s.out, "%s: %s = %s\n", v.Name, v.Type, v.Value)
		}

	case ".backtrace":
		frames, err := s.debug.Backtrace(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		for _, f := range frames {
			fmt.Fprintf(s.out, "#%d %s line %d\n", f.ID, f.Name, f.Line)
		}

	case ".frame":
		n, err := requireIntArg(args, ".frame n")
		if err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
		frame, err := s.debug.Frame(ctx, n)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(s.out, "#%d %s:%d\n", frame.ID, frame.Name, frame.Line)

	case ".print":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .print expr")
			return
		}
		s.reportDebugReply(s.debug.Print(ctx, args[0]))

	case ".watch":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .watch expr")
			return
		}
		s.bps.addWatch(args[0])

	case ".unwatch":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .unwatch expr")
			return
		}
		if !s.bps.removeWatch(args[0]) {
			fmt.Fprintf(s.out, "not watching: %s\n", args[0])
		}
	}
}

func (s *Session) reportDebugReply(reply kerneltransport.DebugReply, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if reply.Stopped {
		fmt.Fprintf(s.out, "stopped: %s\n", reply.StopReason)
		return
	}
	if reply.Result != "" {
		fmt.Fprintln(s.out, reply.Result)
		return
	}
	fmt.Fprintln(s.out, "ok")
}

func requireIntArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("expected an integer, got %q", args[0])
	}
	return n, nil
}
