package kfmt

import "io"

// earlyBufferSize is large enough to hold the boot banner and a full memory
// map dump. It must be a power of 2.
const earlyBufferSize = 4096

// earlyBuffer is a fixed-size ring that keeps the most recent output written
// before any console exists. Once full, new bytes overwrite the oldest ones.
type earlyBuffer struct {
	data        [earlyBufferSize]byte
	head, count int
}

// Write appends p to the ring, dropping the oldest bytes on overflow.
func (b *earlyBuffer) Write(p []byte) (int, error) {
	for _, ch := range p {
		b.data[(b.head+b.count)&(earlyBufferSize-1)] = ch
		if b.count == earlyBufferSize {
			b.head = (b.head + 1) & (earlyBufferSize - 1)
			continue
		}
		b.count++
	}

	return len(p), nil
}

// Read drains up to len(p) bytes from the ring. It returns io.EOF once the
// ring is empty.
func (b *earlyBuffer) Read(p []byte) (int, error) {
	if b.count == 0 {
		return 0, io.EOF
	}

	n := 0
	for ; n < len(p) && b.count > 0; n++ {
		p[n] = b.data[b.head]
		b.head = (b.head + 1) & (earlyBufferSize - 1)
		b.count--
	}

	return n, nil
}

// Len returns the number of unread bytes.
func (b *earlyBuffer) Len() int {
	return b.count
}
