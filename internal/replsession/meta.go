package replsession

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const helpText = `Commands:
  .help              show this text
  .exit              save history and quit
  .save <file>       write history to file
  .load <file>       replace history with file's contents
  .history           list session history
  .vars              list session variables
  .set k v           set a session variable
  .unset k           remove a session variable
  .cd <dir>          change working directory
  .pwd               print working directory
  .ls [dir]          list directory contents
  .info              show session and debug state
  .reset             clear statistics and variables
  .run <file>        execute a file's contents
  .perf              show aggregated statistics
  .clear             clear the terminal
  .clearhistory      clear session history
Debug:
  .break file:line   set a breakpoint
  .delete id         remove a breakpoint
  .list              list breakpoints
  .enable id / .disable id
  .step / .next / .finish / .continue / .pause
  .locals / .backtrace / .frame n / .print expr
  .watch expr / .unwatch expr
`

// dispatchMeta handles the Meta(...) command family: session state changes
// and introspection that never touch the debug sub-session.
func (s *Session) dispatchMeta(ctx context.Context, name string, args []string) (exit bool) {
	switch name {
	case ".help":
		fmt.Fprint(s.out, helpText)

	case ".exit":
		return true

	case ".save":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .save <file>")
			return false
		}
		if err := s.saveHistoryTo(args[0]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}

	case ".load":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .load <file>")
			return false
		}
		if err := s.loadHistoryFrom(args[0]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}

	case ".history":
		for i, e := range s.history.Entries() {
			fmt.Fprintf(s.out, "%4d  %s\n", i+1, e)
		}

	case ".vars":
		for k, v := range s.vars {
			fmt.Fprintf(s.out, "%s=%s\n", k, v)
		}

	case ".set":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "usage: .set <name> <value>")
			return false
		}
		s.vars[args[0]] = strings.Join(args[1:], " ")

	case ".unset":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .unset <name>")
			return false
		}
		delete(s.vars, args[0])

	case ".cd":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .cd <dir>")
			return false
		}
		if err := os.Chdir(args[0]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		cwd, _ := os.Getwd()
		s.cwd = cwd

	case ".pwd":
		fmt.Fprintln(s.out, s.cwd)

	case ".ls":
		dir := s.cwd
		if len(args) == 1 {
			dir = args[0]
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		for _, e := range entries {
			fmt.Fprintln(s.out, e.Name())
		}

	case ".info":
		snap := s.Stats()
		fmt.Fprintf(s.out, "cwd: %s\ndebug state: %s\ncommands executed: %d\nerrors: %d\n",
			s.cwd, s.debug.State(), snap.CommandsExecuted, snap.Errors)

	case ".reset":
		s.stats.Reset()
		s.vars = make(map[string]string)

	case ".run":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: .run <file>")
			return false
		}
		s.runFile(ctx, args[0])

	case ".perf":
		snap := s.Stats()
		fmt.Fprintf(s.out, "commands=%d errors=%d min=%s avg=%s max=%s total=%s last_mem_delta=%d\n",
			snap.CommandsExecuted, snap.Errors, snap.MinLatency, snap.AvgLatency, snap.MaxLatency, snap.TotalLatency, snap.LastMemDelta)

	case ".clear":
		fmt.Fprint(s.out, "\033[H\033[2J")

	case ".clearhistory":
		s.history.Clear()

	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", name)
	}
	return false
}

func (s *Session) saveHistoryTo(path string) error {
	h := &History{path: path, entries: s.history.Entries()}
	return h.Save()
}

func (s *Session) loadHistoryFrom(path string) error {
	h, err := LoadHistory(path)
	if err != nil {
		return err
	}
	s.history.entries = h.entries
	return nil
}

func (s *Session) runFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	s.executeAndReport(ctx, string(data))
}
