package transport

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"net"
)

// fullConn implements §4.1's Full framing: 4-byte length + 4-byte sequence
// prefix, 4-byte CRC32 suffix. Each direction keeps its own sequence
// counter, so a client and server exchanging frames never need to agree on
// a shared counter.
type fullConn struct {
	conn   net.Conn
	sendSq uint32
	recvSq uint32
}

func newFullConn(raw net.Conn) (Conn, error) {
	return &fullConn{conn: raw}, nil
}

func (c *fullConn) Send(frame []byte) error {
	total := 4 + 4 + len(frame) + 4

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], c.sendSq)
	copy(buf[8:8+len(frame)], frame)

	crc := crc32.ChecksumIEEE(buf[:8+len(frame)])
	binary.LittleEndian.PutUint32(buf[8+len(frame):], crc)

	c.sendSq++

	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("transport: cannot write full frame: %w", err)
	}

	return nil
}

func (c *fullConn) Recv() ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, fmt.Errorf("transport: cannot read full header: %w", err)
	}

	total := binary.LittleEndian.Uint32(header[0:4])
	seq := binary.LittleEndian.Uint32(header[4:8])

	if total < 12 {
		return nil, fmt.Errorf("transport: full frame length %d too small", total)
	}

	rest := make([]byte, total-8)
	if _, err := io.ReadFull(c.conn, rest); err != nil {
		return nil, fmt.Errorf("transport: cannot read full frame body: %w", err)
	}

	payload := rest[:len(rest)-4]
	wantCRC := binary.LittleEndian.Uint32(rest[len(rest)-4:])

	gotCRC := crc32.ChecksumIEEE(append(append([]byte{}, header[:]...), payload...))
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("transport: full frame CRC mismatch")
	}

	if seq != c.recvSq {
		return nil, fmt.Errorf("transport: full frame out-of-order sequence: got %d, want %d", seq, c.recvSq)
	}

	c.recvSq++

	return payload, nil
}

func (c *fullConn) Close() error {
	return c.conn.Close()
}

func (c *fullConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
