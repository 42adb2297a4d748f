// Package sysprobe wraps a TCP dial with the socket-option tuning
// golang.org/x/sys/unix exposes, for the server liveness monitor's
// reachability probes (C8, spec.md §4.8). The connect deadline comes from
// the caller's context, so one unreachable host never stalls the probe
// round for every other server sharing the tick.
//
// The teacher carries golang.org/x/sys only indirectly (as golang.org/x/
// term's dependency for terminal ioctls); this package is ployer's first
// direct use of it, applying the same socket-control-function idiom
// net.Dialer.Control documents.
package sysprobe

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// DialTCPTuned dials host:port with TCP_NODELAY set on the socket. It sets
// no timeout of its own: the dial gives up when ctx is done.
func DialTCPTuned(ctx context.Context, host string, port int) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := net.Dialer{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	return dialer.DialContext(ctx, "tcp", addr)
}
