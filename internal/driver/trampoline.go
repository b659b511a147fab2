package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"syscall"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// The Go runtime offers no hook between fork and exec, so the driver is
// launched through a trampoline: driverd re-executes itself under this
// argv[0], the trampoline drops capabilities and then execs the real driver
// in place. The driver therefore never runs with the parent's privileges.
const trampolineName = "driverd-dropcaps"

// statusFD is where the trampoline finds the write end of the status pipe
// (the first entry of exec.Cmd.ExtraFiles).
const statusFD = 3

// Status pipe messages are prefixed with the failing stage.
const (
	statusCaps = "caps:"
	statusExec = "exec:"
)

// Trampoline exit codes, used when the status pipe is unreadable.
const (
	exitPrivilegeDrop = 125
	exitExecFailure   = 127
)

// execFunc has the signature of syscall.Exec.
type execFunc func(argv0 string, argv []string, envv []string) error

func init() {
	reexec.Register(trampolineName, func() {
		status := os.NewFile(statusFD, "trampoline-status")
		os.Exit(runTrampoline(status, os.Args[1:], clearCapabilities, syscall.Exec))
	})
}

// runTrampoline drops privileges and replaces the process image with
// args[0]. It only returns if something failed, yielding the exit code.
func runTrampoline(status *os.File, args []string, drop func() error, execve execFunc) int {
	if len(args) == 0 {
		reportStatus(status, statusExec, errors.New("missing driver path"))
		return exitExecFailure
	}

	// Capabilities are per-thread and execve keeps the calling thread's set,
	// so the drop and the exec must happen on the same OS thread.
	runtime.LockOSThread()

	if err := drop(); err != nil {
		reportStatus(status, statusCaps, err)
		return exitPrivilegeDrop
	}

	// A successful exec closes the pipe, which the parent reads as success.
	if status != nil {
		unix.CloseOnExec(int(status.Fd()))
	}

	err := execve(args[0], args, os.Environ())
	reportStatus(status, statusExec, err)
	return exitExecFailure
}

func reportStatus(status *os.File, stage string, err error) {
	msg := stage + " " + err.Error()
	fmt.Fprintln(os.Stderr, trampolineName+": "+msg)
	if status != nil {
		_, _ = status.WriteString(msg)
	}
}

// readTrampolineStatus waits for the trampoline to either exec (pipe closes
// with no data) or report a failure.
func readTrampolineStatus(ctx context.Context, r *os.File) error {
	type result struct {
		msg []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := io.ReadAll(io.LimitReader(r, 4096))
		ch <- result{msg: msg, err: err}
	}()

	select {
	case res := <-ch:
		_ = r.Close()
		if res.err != nil {
			return fmt.Errorf("%w: read trampoline status: %w", ErrSpawn, res.err)
		}
		return parseTrampolineStatus(string(res.msg))
	case <-ctx.Done():
		_ = r.Close()
		return fmt.Errorf("%w: %w", ErrSpawn, ctx.Err())
	}
}

func parseTrampolineStatus(msg string) error {
	switch {
	case msg == "":
		return nil
	case strings.HasPrefix(msg, statusCaps):
		return fmt.Errorf("%w: %s", ErrPrivilegeDrop, strings.TrimSpace(strings.TrimPrefix(msg, statusCaps)))
	case strings.HasPrefix(msg, statusExec):
		return fmt.Errorf("%w: %s", ErrSpawn, strings.TrimSpace(strings.TrimPrefix(msg, statusExec)))
	default:
		return fmt.Errorf("%w: unexpected trampoline status %q", ErrSpawn, msg)
	}
}
