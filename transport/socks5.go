package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/txthinking/socks5"
)

// SOCKS5Connector is a Connector that dials through a SOCKS5 proxy,
// exercising the same github.com/txthinking/socks5 dependency the teacher
// repository carries for its own outbound connections to Telegram. It is
// the concrete answer to §6's "user-supplied connector hook" extension
// point.
type SOCKS5Connector struct {
	// ProxyAddress is the host:port of the SOCKS5 proxy.
	ProxyAddress string
	// Username/Password are optional SOCKS5 auth credentials.
	Username, Password string
}

// Connect implements Connector.
func (s *SOCKS5Connector) Connect(ctx context.Context, address string) (net.Conn, error) {
	client, err := socks5.NewClient(s.ProxyAddress, s.Username, s.Password, 0, 10)
	if err != nil {
		return nil, fmt.Errorf("transport: cannot build socks5 client: %w", err)
	}

	// socks5.Client has no native context support; the caller is expected
	// to bound ctx with a deadline upstream and treat a slow proxy as a
	// transport error (§4.1 "any I/O error terminates the transport").
	conn, err := client.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: socks5 dial to %s via %s failed: %w", address, s.ProxyAddress, err)
	}

	return conn, nil
}
