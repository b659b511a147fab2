//go:build !linux

package driver

// clearCapabilities is a no-op where the OS has no capability sets.
func clearCapabilities() error {
	return nil
}

func effectiveCapabilities() (uint64, error) {
	return 0, nil
}
