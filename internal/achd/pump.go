package achd

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rswindell/ach/internal/achchan"
	"github.com/rswindell/ach/internal/achframe"
	"github.com/rswindell/ach/internal/achutil"
)

// initBufSize is the pump's starting frame buffer size, grown on demand
// when a channel produces a larger frame than it currently holds.
const initBufSize = 512

// defaultMaxFrameSize bounds how large a single frame PullTCP will accept
// from the peer, protecting the pulling side from a runaway peer. PushTCP
// does not apply it; its frame size comes from the local channel.
const defaultMaxFrameSize = 64 << 20

// PushTCP reads frames out of ch and writes them to conn, one at a
// time, until the channel closes, ctx is cancelled, or the write side
// fails. headers.GetLast selects "always the newest frame" semantics
// over "every frame in order".
func PushTCP(ctx context.Context, log *achutil.Logger, headers *Headers, ch achchan.Channel, conn io.ReadWriter) error {
	w := bufio.NewWriter(conn)
	buf := make([]byte, initBufSize)
	opts := achchan.GetOptions{Wait: true, Last: headers.GetLast}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := ch.Get(ctx, buf, opts)
		if err != nil {
			return fmt.Errorf("achd: push: get: %w", err)
		}
		switch res.Status {
		case achchan.StatusClosed:
			return nil
		case achchan.StatusOverflow:
			buf = make([]byte, res.RequiredSize)
			continue
		}

		if err := achframe.WriteFrame(w, buf[:res.Size]); err != nil {
			return fmt.Errorf("achd: push: write: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("achd: push: flush: %w", err)
		}
	}
}

// PullTCP reads frames off conn and puts each one into ch, until the
// stream ends, a frame fails its magic check, or ctx is cancelled.
func PullTCP(ctx context.Context, log *achutil.Logger, headers *Headers, ch achchan.Channel, conn io.ReadWriter) error {
	r := bufio.NewReader(conn)
	buf := achframe.NewBuffer(initBufSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := achframe.ReadFrame(r, buf, defaultMaxFrameSize)
		if err != nil {
			return nil // peer closed the stream; a clean end of session.
		}
		if _, err := ch.Put(payload); err != nil {
			return fmt.Errorf("achd: pull: put: %w", err)
		}
	}
}
