package transport_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtprotogo/core/transport"
)

// pipeConnector hands out one fixed side of a net.Pipe, ignoring address.
type pipeConnector struct {
	conn net.Conn
}

func (p *pipeConnector) Connect(_ context.Context, _ string) (net.Conn, error) {
	return p.conn, nil
}

func TestIntermediateFramingRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan []byte, 1)

	go func() {
		var marker [4]byte
		readFullHelper(server, marker[:])

		var length [4]byte
		readFullHelper(server, length[:])

		size := int(length[0]) | int(length[1])<<8 | int(length[2])<<16 | int(length[3])<<24
		payload := make([]byte, size)
		readFullHelper(server, payload)

		done <- payload
	}()

	conn, err := transport.Connect(context.Background(), &pipeConnector{conn: client}, "ignored", transport.ModeIntermediate)
	require.NoError(t, err)

	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, conn.Send(frame))

	got := <-done
	require.Equal(t, frame, got)
}

func readFullHelper(conn net.Conn, buf []byte) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return
		}
		total += n
	}
}

func TestAbridgedFramingRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan []byte, 1)

	go func() {
		var marker [1]byte
		readFullHelper(server, marker[:])

		var lenByte [1]byte
		readFullHelper(server, lenByte[:])

		words := int(lenByte[0])
		payload := make([]byte, words*4)
		readFullHelper(server, payload)

		done <- payload
	}()

	conn, err := transport.Connect(context.Background(), &pipeConnector{conn: client}, "ignored", transport.ModeAbridged)
	require.NoError(t, err)

	frame := []byte{9, 9, 9, 9}
	require.NoError(t, conn.Send(frame))

	got := <-done
	require.Equal(t, frame, got)
}
