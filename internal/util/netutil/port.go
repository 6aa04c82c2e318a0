// Package netutil provides network helpers used by reachability checks.
package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// DefaultDialTimeout bounds a single probe when the caller passes zero.
const DefaultDialTimeout = 5 * time.Second

// ProbePort makes one TCP connection attempt to host:port. It returns nil if
// the connection was accepted.
func ProbePort(ctx context.Context, host string, port int, timeout time.Duration) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	_ = conn.Close()
	return nil
}

// WaitForPort probes host:port every interval until it accepts a connection
// or timeout elapses.
func WaitForPort(ctx context.Context, host string, port int, interval, timeout time.Duration) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ProbePort(ctx, host, port, interval); err == nil {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout waiting for %s", address)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := ProbePort(ctx, host, port, interval); err == nil {
				return nil
			}
		}
	}
}
