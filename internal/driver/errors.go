package driver

import "errors"

var (
	// ErrPrivilegeDrop reports that the child could not clear its capability
	// sets before exec. The driver program never ran.
	ErrPrivilegeDrop = errors.New("could not set process capabilities")

	// ErrSpawn reports an OS-level failure launching the driver.
	ErrSpawn = errors.New("could not launch driver")

	// ErrPortInUse reports that the driver port was already bound.
	ErrPortInUse = errors.New("driver port not available")

	// ErrNotReady reports that the driver did not answer its status endpoint in time.
	ErrNotReady = errors.New("driver did not become ready")

	// ErrAlreadyStarted is returned by Start on a supervisor that has already
	// launched its process. A supervisor runs at most one process in its lifetime.
	ErrAlreadyStarted = errors.New("driver already started")

	// ErrClosed is returned by Start once Close has been called.
	ErrClosed = errors.New("driver supervisor closed")

	// ErrNotRunning is returned by Kill when there is no live process.
	// Callers tearing down should treat it as success.
	ErrNotRunning = errors.New("driver not running")
)
