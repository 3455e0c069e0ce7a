package kfmt

import "io"

// earlyBufferSize is the capacity of the buffer that holds Printf output
// produced before an output sink is registered. It fits the memory map dump
// of a typical firmware. The size must be a power of 2.
const earlyBufferSize = 4096

// ringBuffer is a fixed-size byte queue. When full, new writes overwrite the
// oldest unread bytes.
type ringBuffer struct {
	data           [earlyBufferSize]byte
	rIndex, wIndex int
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & (earlyBufferSize - 1)
}

// Write appends p to the buffer. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.data[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (earlyBufferSize - 1)
		if rb.wIndex == rb.rIndex {
			rb.rIndex = (rb.rIndex + 1) & (earlyBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read copies up to len(p) unread bytes into p. It returns io.EOF once the
// buffer is drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Copy the contiguous chunk up to the write index or the end of the
	// backing array, whichever comes first.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = earlyBufferSize
	}

	n := copy(p, rb.data[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & (earlyBufferSize - 1)
	return n, nil
}
