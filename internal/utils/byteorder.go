package utils

import "io"

// A ByteOrder specifies how to convert byte sequences into 32-bit unsigned integers.
type ByteOrder interface {
	ReadUint32(io.ByteReader) (uint32, error)
}

// BigEndian is the big-endian implementation of ByteOrder.
var BigEndian ByteOrder = bigEndian{}

type bigEndian struct{}

var _ ByteOrder = &bigEndian{}

func (bigEndian) ReadUint32(b io.ByteReader) (uint32, error) {
	var result uint32
	for i := 0; i < 4; i++ {
		byt, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		result = result<<8 + uint32(byt)
	}
	return result, nil
}
