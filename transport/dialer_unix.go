//go:build !windows
// +build !windows

package transport

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketBufferSize enlarges the kernel send/receive buffers beyond the
// default, cutting down on short reads during a burst of container
// traffic (§4.1 framing assumes whole frames arrive promptly). Grounded on
// network/sockopts_unix.go's client-irrelevant listener tuning, trimmed to
// the options a dialing connection can still use.
const socketBufferSize = 256 * 1024

// DialTCPTuned is a Connector like DialTCP but additionally applies
// TCP_QUICKACK and enlarged socket buffers to the dialed connection via
// net.Dialer.Control, grounded on network/sockopts_unix.go's
// setSocketReuseAddrPort (SO_REUSEADDR/SO_REUSEPORT are listener-only and
// dropped here; the buffer-size and TCP_QUICKACK tuning survive since they
// benefit an outbound client connection equally).
var DialTCPTuned Connector = ConnectorFunc(func(ctx context.Context, address string) (net.Conn, error) {
	d := net.Dialer{Control: tuneSocket}
	return d.DialContext(ctx, "tcp", address)
})

func tuneSocket(_, _ string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufferSize)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufferSize)
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
}
