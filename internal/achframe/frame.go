// Package achframe implements the wire framing used between achd peers:
// an 8-byte magic, an 8-byte little-endian length, and a payload of that
// many bytes. It mirrors achd.c's ach_pipe_frame_t layout.
package achframe

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is the fixed 8-byte preamble every frame starts with.
const Magic = "achpipe\x00"

// PrefixSize is the length in bytes of the magic+length header that
// precedes every frame's payload on the wire.
const PrefixSize = 16

// ErrBadMagic is returned by ReadFrame when a frame's preamble doesn't
// match Magic; the pull side treats this as end-of-stream, matching
// achd_pull_tcp's memcmp("achpipe", frame->magic, 8) check.
var ErrBadMagic = fmt.Errorf("achframe: bad magic")

// Buffer is a growable byte buffer used to hold one frame's payload
// across its lifetime in a session. Unlike bytes.Buffer it never shrinks
// on read: capacity only grows, so a session that sees one oversized
// frame doesn't pay a reallocation on every subsequent smaller one.
type Buffer struct {
	data []byte
}

// NewBuffer returns a Buffer with initial capacity n.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// Grow ensures the buffer's backing array is at least n bytes, growing
// it (and copying no existing content, since frame payloads are always
// fully overwritten before use) if necessary. This is the monotone
// growth primitive: capacity never decreases.
func (b *Buffer) Grow(n int) {
	if cap(b.data) >= n {
		b.data = b.data[:n]
		return
	}
	b.data = make([]byte, n)
}

// Bytes returns the buffer's current contents.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the buffer's current logical length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// WriteFrame writes payload to w as a complete frame: magic, little-
// endian length, then the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var prefix [PrefixSize]byte
	copy(prefix[:8], Magic)
	binary.LittleEndian.PutUint64(prefix[8:], uint64(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("achframe: write prefix: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("achframe: write payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r into buf, growing buf as needed, and
// returns the slice of buf holding the payload. maxSize caps the
// accepted payload length so a corrupt or hostile peer can't force an
// unbounded allocation.
func ReadFrame(r io.Reader, buf *Buffer, maxSize uint64) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	if string(prefix[:8]) != Magic {
		return nil, ErrBadMagic
	}
	size := binary.LittleEndian.Uint64(prefix[8:])
	if size > maxSize {
		return nil, fmt.Errorf("achframe: frame size %d exceeds max %d", size, maxSize)
	}
	buf.Grow(int(size))
	if size == 0 {
		return buf.Bytes()[:0], nil
	}
	if _, err := io.ReadFull(r, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("achframe: read payload: %w", err)
	}
	return buf.Bytes(), nil
}
