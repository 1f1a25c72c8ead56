package achd

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeadersBasic(t *testing.T) {
	in := strings.NewReader(
		"channel-name: test-chan # a comment\n" +
			"frame-size: 4096\n" +
			"frame-count: 10\n" +
			"transport: tcp\n" +
			"direction: push\n" +
			"tcp-nodelay: yes\n" +
			"retry: no\n" +
			"\n" +
			".\n" +
			"ignored after dot\n")

	h, err := ParseHeaders(bufio.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "test-chan", h.ChanName)
	assert.Equal(t, 4096, h.FrameSize)
	assert.Equal(t, 10, h.FrameCount)
	assert.Equal(t, TransportTCP, h.Transport)
	assert.Equal(t, DirectionPush, h.Direction)
	assert.True(t, h.TCPNoDelay)
	assert.False(t, h.Retry)
}

func TestParseHeadersBooleanWordlist(t *testing.T) {
	for _, word := range []string{"yes", "true", "1", "t", "y", "+", "aye", "YES"} {
		h, err := ParseHeaders(bufio.NewReader(strings.NewReader("retry: " + word + "\n.\n")))
		require.NoError(t, err)
		assert.True(t, h.Retry, word)
	}
	for _, word := range []string{"no", "false", "0", "f", "n", "-", "nay"} {
		h, err := ParseHeaders(bufio.NewReader(strings.NewReader("retry: " + word + "\n.\n")))
		require.NoError(t, err)
		assert.False(t, h.Retry, word)
	}
}

func TestParseHeadersInvalidBoolean(t *testing.T) {
	_, err := ParseHeaders(bufio.NewReader(strings.NewReader("retry: maybe\n.\n")))
	assert.Error(t, err)
}

func TestParseHeadersUnknownKey(t *testing.T) {
	_, err := ParseHeaders(bufio.NewReader(strings.NewReader("bogus-key: 1\n.\n")))
	assert.Error(t, err)
}

func TestParseHeadersMalformedLine(t *testing.T) {
	_, err := ParseHeaders(bufio.NewReader(strings.NewReader("not a valid header line\n.\n")))
	assert.Error(t, err)
}

func TestParseHeadersMultiWordValue(t *testing.T) {
	h, err := ParseHeaders(bufio.NewReader(strings.NewReader("message: invalid header nosuchkey\n.\n")))
	require.NoError(t, err)
	assert.Equal(t, "invalid header nosuchkey", h.Message)
}

func TestChannelNameFallsBackToRemote(t *testing.T) {
	h := &Headers{RemoteChanName: "remote-chan"}
	assert.Equal(t, "remote-chan", h.ChannelName())
	h.ChanName = "local-chan"
	assert.Equal(t, "local-chan", h.ChannelName())
}

func TestEmitRoundTrip(t *testing.T) {
	h := &Headers{
		ChanName:   "test-chan",
		FrameSize:  4096,
		FrameCount: 10,
		Transport:  TransportTCP,
		Direction:  DirectionPull,
		Retry:      true,
	}
	var buf bytes.Buffer
	require.NoError(t, h.Emit(&buf))

	got, err := ParseHeaders(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, h.ChanName, got.ChanName)
	assert.Equal(t, h.FrameSize, got.FrameSize)
	assert.Equal(t, h.Transport, got.Transport)
	assert.Equal(t, h.Direction, got.Direction)
	assert.True(t, got.Retry)
}

func TestEmitStatusOKComment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Headers{Status: 0}).Emit(&buf))
	assert.Contains(t, buf.String(), "status: 0 # ok")
}

func TestEmitStatusErrorComment(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Headers{Status: 1, Message: "boom"}).Emit(&buf))
	assert.Contains(t, buf.String(), "status: 1 # error")
}
