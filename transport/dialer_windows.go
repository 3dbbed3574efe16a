//go:build windows
// +build windows

package transport

import (
	"context"
	"net"
	"syscall"
)

// socketBufferSize matches network/sockopts_windows.go's enlarged buffer,
// sized for the same Telegram-client-like throughput target.
const socketBufferSize = 1024 * 1024

// DialTCPTuned is the Windows counterpart to the unix build's DialTCPTuned:
// enlarges socket buffers and disables Nagle's algorithm on the dialed
// connection, grounded on network/sockopts_windows.go's
// setSocketReuseAddrPort trimmed to its non-listener-only options.
var DialTCPTuned Connector = ConnectorFunc(func(ctx context.Context, address string) (net.Conn, error) {
	d := net.Dialer{Control: tuneSocket}
	return d.DialContext(ctx, "tcp", address)
})

func tuneSocket(_, _ string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF, socketBufferSize)
		_ = syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_SNDBUF, socketBufferSize)
		_ = syscall.SetsockoptInt(syscall.Handle(fd), syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	})
}
