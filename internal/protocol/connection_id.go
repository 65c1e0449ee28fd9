package protocol

import (
	"crypto/rand"
	"fmt"
	"io"
)

const maxConnectionIDLen = 20

// A ConnectionID in QUIC.
// It is an opaque byte sequence of 0 to 20 bytes.
// The zero value is the empty (zero-length) connection ID.
// ConnectionIDs are comparable and can be used as map keys;
// two ConnectionIDs are equal iff their byte contents are equal.
type ConnectionID struct {
	b [20]byte
	l uint8
}

// GenerateConnectionID generates a connection ID using cryptographic random
func GenerateConnectionID(l int) (ConnectionID, error) {
	var c ConnectionID
	c.l = uint8(l)
	_, err := rand.Read(c.b[:l])
	return c, err
}

// ConnectionIDFromBytes interprets b as a ConnectionID.
// It panics if b is longer than 20 bytes.
func ConnectionIDFromBytes(b []byte) ConnectionID {
	if len(b) > maxConnectionIDLen {
		panic("invalid conn id length")
	}
	var c ConnectionID
	c.l = uint8(len(b))
	copy(c.b[:], b)
	return c
}

// ParseConnectionID interprets b as a ConnectionID.
// It panics if b is longer than 20 bytes.
func ParseConnectionID(b []byte) ConnectionID {
	return ConnectionIDFromBytes(b)
}

// ReadConnectionID reads a connection ID of length l from the given io.Reader.
// It returns io.EOF if there are not enough bytes to read.
func ReadConnectionID(r io.Reader, l int) (ConnectionID, error) {
	var c ConnectionID
	if l == 0 {
		return c, nil
	}
	if l > maxConnectionIDLen {
		return c, fmt.Errorf("invalid connection ID length: %d bytes", l)
	}
	c.l = uint8(l)
	_, err := io.ReadFull(r, c.b[:l])
	if err == io.ErrUnexpectedEOF {
		return c, io.EOF
	}
	return c, err
}

// Len returns the length of the connection ID in bytes
func (c ConnectionID) Len() int {
	return int(c.l)
}

// Bytes returns the byte representation
func (c ConnectionID) Bytes() []byte {
	return c.b[:c.l]
}

func (c ConnectionID) String() string {
	if c.Len() == 0 {
		return "(empty)"
	}
	return fmt.Sprintf("%x", c.Bytes())
}
