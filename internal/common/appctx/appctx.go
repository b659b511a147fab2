// Package appctx provides context utilities for cleanup and background operations.
package appctx

import (
	"context"
	"time"
)

// Detached returns a new context that is not tied to the parent's cancellation
// but inherits its values (trace span, request ID). Use this for cleanup that
// must run even after the request was cancelled.
// The returned context is cancelled when stopCh is closed or the timeout expires.
// A nil stopCh is allowed.
func Detached(parent context.Context, stopCh <-chan struct{}, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), timeout)

	if stopCh != nil {
		go func() {
			select {
			case <-stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return ctx, cancel
}
