package replsession

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumflow/quantumflow-memory/internal/scriptexec"
)

type echoExecutor struct{}

func (echoExecutor) ExecuteDirect(ctx context.Context, code string) (string, error) {
	return "=> " + code, nil
}
func (echoExecutor) SetDebugContext(ctx scriptexec.DebugContext) {}

func newTestSession(t *testing.T, input string) (*Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s, err := NewSession(nil, echoExecutor{}, strings.NewReader(input), &out, "", nil)
	require.NoError(t, err)
	return s, &out
}

func TestNewSessionRequiresClientOrDirect(t *testing.T) {
	_, err := NewSession(nil, nil, strings.NewReader(""), &bytes.Buffer{}, "", nil)
	require.Error(t, err)
}

func TestSessionExecutesCodeThroughDirectExecutor(t *testing.T) {
	s, out := newTestSession(t, "1 + 1\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "=> 1 + 1")
}

func TestSessionSetAndVars(t *testing.T) {
	s, out := newTestSession(t, ".set name bob\n.vars\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "name=bob")
}

func TestSessionUnsetRemovesVar(t *testing.T) {
	s, out := newTestSession(t, ".set name bob\n.unset name\n.vars\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.NotContains(t, out.String(), "name=bob")
}

func TestSessionPerfReflectsExecutions(t *testing.T) {
	s, out := newTestSession(t, "foo\nbar\n.perf\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "commands=2")
}

func TestSessionHistoryListsPriorCommands(t *testing.T) {
	s, out := newTestSession(t, "foo\n.history\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "foo")
}

func TestSessionDebugCommandsFailWithoutTransport(t *testing.T) {
	s, out := newTestSession(t, ".continue\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), ErrNoTransport.Error())
}

func TestSessionMultilineAccumulatesUntilComplete(t *testing.T) {
	s, out := newTestSession(t, "if x then\n  y\nend\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "=> if x then\n  y\nend")
}

func TestSessionUnknownMetaCommandReportsError(t *testing.T) {
	s, out := newTestSession(t, ".bogus\n.exit\n")
	require.NoError(t, s.Run(context.Background()))
	require.Contains(t, out.String(), "unknown command")
}
