package quicmux

import (
	"sync"

	"github.com/quicmux/quicmux/internal/protocol"
)

type packetBuffer struct {
	Data []byte
}

// Release puts the packetBuffer back into the pool.
// The buffer must not be used afterwards.
func (b *packetBuffer) Release() {
	if cap(b.Data) != int(protocol.MaxPacketBufferSize) {
		panic("quicmux: released a packet buffer of the wrong size")
	}
	b.Data = b.Data[:0]
	bufferPool.Put(b)
}

var bufferPool sync.Pool

func getPacketBuffer() *packetBuffer {
	return bufferPool.Get().(*packetBuffer)
}

func init() {
	bufferPool.New = func() interface{} {
		return &packetBuffer{
			Data: make([]byte, 0, protocol.MaxPacketBufferSize),
		}
	}
}
