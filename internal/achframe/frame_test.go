package achframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	payload := []byte("hello, ach")
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload))

	fb := NewBuffer(4)
	got, err := ReadFrame(&buf, fb, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	fb := NewBuffer(4)
	got, err := ReadFrame(&buf, fb, 1<<20)
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestReadFrameBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("notmagic")
	buf.Write(make([]byte, 8))

	fb := NewBuffer(4)
	_, err := ReadFrame(&buf, fb, 1<<20)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReadFrameExceedsMax(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 100)))

	fb := NewBuffer(4)
	_, err := ReadFrame(&buf, fb, 10)
	assert.Error(t, err)
}

func TestBufferGrowIsMonotone(t *testing.T) {
	b := NewBuffer(4)
	b.Grow(100)
	c := cap(b.Bytes())
	assert.GreaterOrEqual(t, c, 100)
	b.Grow(10)
	assert.GreaterOrEqual(t, cap(b.Bytes()), c)
}
