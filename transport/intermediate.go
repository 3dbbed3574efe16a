package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// intermediateConn implements §4.1's Intermediate framing: a bare 4-byte
// little-endian length prefix, no sequence counter, no CRC. Frame length
// must be a multiple of 4.
type intermediateConn struct {
	conn net.Conn
}

// intermediateMarker is the initial 4-byte magic a client sends to tell
// the server "speak Intermediate from here on".
var intermediateMarker = [4]byte{0xee, 0xee, 0xee, 0xee}

func newIntermediateConn(raw net.Conn) (Conn, error) {
	if _, err := raw.Write(intermediateMarker[:]); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: cannot send intermediate marker: %w", err)
	}

	return &intermediateConn{conn: raw}, nil
}

func (c *intermediateConn) Send(frame []byte) error {
	if len(frame)%4 != 0 {
		return fmt.Errorf("transport: intermediate frame length %d is not a multiple of 4", len(frame))
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(frame)))

	if _, err := c.conn.Write(header[:]); err != nil {
		return fmt.Errorf("transport: cannot write intermediate length: %w", err)
	}

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("transport: cannot write intermediate frame: %w", err)
	}

	return nil
}

func (c *intermediateConn) Recv() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, fmt.Errorf("transport: cannot read intermediate length: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])

	frame := make([]byte, length)
	if _, err := io.ReadFull(c.conn, frame); err != nil {
		return nil, fmt.Errorf("transport: cannot read intermediate frame: %w", err)
	}

	return frame, nil
}

func (c *intermediateConn) Close() error {
	return c.conn.Close()
}

func (c *intermediateConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
