// Package natsutil holds NATS-specific helpers kept out of the types package.
package natsutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/sourcecoord/types"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// WrapStoreError annotates err with op and, for connectivity failures,
// types.ErrConnectivity so callers can match it with errors.Is.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectivityError(err) && !errors.Is(err, types.ErrConnectivity) {
		return fmt.Errorf("%s: %w: %w", op, types.ErrConnectivity, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
