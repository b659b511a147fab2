//go:build linux

package driver

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Securebits, see capabilities(7). Not exported by x/sys/unix.
const (
	secbitNoRoot       = 1 << 0
	secbitNoRootLocked = 1 << 1
)

// clearCapabilities empties the effective, permitted, inheritable and ambient
// capability sets of the calling thread, and stops execve from granting a
// root caller a fresh full set. Capabilities are per-thread, so the caller
// must hold the OS thread locked through the following exec.
func clearCapabilities() error {
	// Needs CAP_SETPCAP, so it has to happen before the sets are cleared.
	if err := unix.Prctl(unix.PR_SET_SECUREBITS, secbitNoRoot|secbitNoRootLocked, 0, 0, 0); err != nil {
		// Without root, exec cannot regain capabilities anyway.
		if os.Geteuid() == 0 {
			return fmt.Errorf("set securebits: %w", err)
		}
	}

	if err := unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("clear ambient capabilities: %w", err)
	}

	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData

	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capget: %w", err)
	}
	for i := range data {
		data[i].Effective = 0
		data[i].Permitted = 0
		data[i].Inheritable = 0
	}
	if err := unix.Capset(&hdr, &data[0]); err != nil {
		return fmt.Errorf("capset: %w", err)
	}
	return nil
}

// effectiveCapabilities returns the effective set of the calling thread as a
// 64-bit mask.
func effectiveCapabilities() (uint64, error) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return 0, fmt.Errorf("capget: %w", err)
	}
	return uint64(data[1].Effective)<<32 | uint64(data[0].Effective), nil
}
