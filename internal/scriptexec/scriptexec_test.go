package scriptexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	debugAttached bool
}

func (f *fakeExecutor) ExecuteDirect(ctx context.Context, code string) (string, error) {
	return "echo:" + code, nil
}

func (f *fakeExecutor) SetDebugContext(ctx DebugContext) {
	f.debugAttached = ctx != nil
}

func TestFakeExecutorSatisfiesInterface(t *testing.T) {
	var exec Executor = &fakeExecutor{}
	result, err := exec.ExecuteDirect(context.Background(), "1+1")
	require.NoError(t, err)
	require.Equal(t, "echo:1+1", result)
}

type fakeDebugContext struct{}

func TestSetDebugContextAttachAndDetach(t *testing.T) {
	f := &fakeExecutor{}
	var exec Executor = f
	exec.SetDebugContext(fakeDebugContext{})
	require.True(t, f.debugAttached)
	exec.SetDebugContext(nil)
	require.False(t, f.debugAttached)
}
