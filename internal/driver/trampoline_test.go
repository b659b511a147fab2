package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func TestRunTrampoline_DropsBeforeExec(t *testing.T) {
	var calls []string
	drop := func() error {
		calls = append(calls, "drop")
		return nil
	}
	var gotPath string
	var gotArgs []string
	execve := func(path string, argv, _ []string) error {
		calls = append(calls, "exec")
		gotPath, gotArgs = path, argv
		return errors.New("exec stub")
	}

	code := runTrampoline(nil, []string{"/usr/bin/chromedriver", "--port=4444", "--verbose"}, drop, execve)

	assert.Equal(t, exitExecFailure, code)
	assert.Equal(t, []string{"drop", "exec"}, calls)
	assert.Equal(t, "/usr/bin/chromedriver", gotPath)
	assert.Equal(t, []string{"/usr/bin/chromedriver", "--port=4444", "--verbose"}, gotArgs)
}

func TestRunTrampoline_DropFailureNeverExecs(t *testing.T) {
	r, w := pipe(t)
	executed := false

	code := runTrampoline(w,
		[]string{"/usr/bin/chromedriver"},
		func() error { return errors.New("capset: operation not permitted") },
		func(string, []string, []string) error {
			executed = true
			return nil
		})
	require.NoError(t, w.Close())

	assert.Equal(t, exitPrivilegeDrop, code)
	assert.False(t, executed)

	msg, err := io.ReadAll(r)
	require.NoError(t, err)
	err = parseTrampolineStatus(string(msg))
	assert.ErrorIs(t, err, ErrPrivilegeDrop)
	assert.Contains(t, err.Error(), "operation not permitted")
}

func TestRunTrampoline_ExecFailureReported(t *testing.T) {
	r, w := pipe(t)

	code := runTrampoline(w,
		[]string{"/usr/bin/chromedriver"},
		func() error { return nil },
		func(string, []string, []string) error { return errors.New("no such file or directory") })
	require.NoError(t, w.Close())

	assert.Equal(t, exitExecFailure, code)
	msg, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.ErrorIs(t, parseTrampolineStatus(string(msg)), ErrSpawn)
}

func TestRunTrampoline_MissingArgs(t *testing.T) {
	code := runTrampoline(nil, nil,
		func() error {
			t.Fatal("drop must not run without a driver path")
			return nil
		},
		func(string, []string, []string) error { return nil })
	assert.Equal(t, exitExecFailure, code)
}

func TestParseTrampolineStatus(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		wantErr error
	}{
		{name: "exec succeeded", msg: "", wantErr: nil},
		{name: "capability drop failed", msg: "caps: capset: operation not permitted", wantErr: ErrPrivilegeDrop},
		{name: "exec failed", msg: "exec: permission denied", wantErr: ErrSpawn},
		{name: "garbage", msg: "something else", wantErr: ErrSpawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseTrampolineStatus(tt.msg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadTrampolineStatus_EOFIsSuccess(t *testing.T) {
	r, w := pipe(t)
	require.NoError(t, w.Close())

	assert.NoError(t, readTrampolineStatus(context.Background(), r))
}

func TestReadTrampolineStatus_ContextCancelled(t *testing.T) {
	r, _ := pipe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := readTrampolineStatus(ctx, r)
	require.ErrorIs(t, err, ErrSpawn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
