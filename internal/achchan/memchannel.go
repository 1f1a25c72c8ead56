package achchan

import (
	"context"
	"sync"
)

// registry is a process-local name -> channel table, mirroring how the
// real ach library resolves channel names against shared memory
// segments under /dev/shm. defaultRegistry is the package-level
// instance Open/Register/Unregister operate on.
type registry struct {
	mu       sync.Mutex
	channels map[string]*memChannel
}

var defaultRegistry = &registry{channels: make(map[string]*memChannel)}

func (r *registry) open(name string) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[name]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *registry) register(name string, frameCount, frameSize int) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := newMemChannel(name, frameCount, frameSize)
	r.channels[name] = c
	return c
}

func (r *registry) unregister(name string) {
	r.mu.Lock()
	c, ok := r.channels[name]
	delete(r.channels, name)
	r.mu.Unlock()
	if ok {
		c.Close()
	}
}

// memChannel is a fixed-capacity ring buffer of frames, standing in for
// the external shared-memory channel. It preserves the property tested
// throughout this tree: frames Put in order are Get in the same order
// (subsequence preserved across drops), and a full channel drops its
// oldest frame rather than rejecting the new one.
type memChannel struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	frames [][]byte
	head   int // index of oldest unread-by-next-Get frame
	count  int

	maxFrame int
	closed   bool
}

func newMemChannel(name string, frameCount, frameSize int) *memChannel {
	mc := &memChannel{
		name:     name,
		frames:   make([][]byte, frameCount),
		maxFrame: frameSize,
	}
	mc.cond = sync.NewCond(&mc.mu)
	return mc
}

func (c *memChannel) Name() string { return c.name }

// FrameCount reports the ring buffer's frame capacity, fixed at creation.
func (c *memChannel) FrameCount() int { return len(c.frames) }

// FrameSize reports the maximum frame payload size, fixed at creation.
func (c *memChannel) FrameSize() int { return c.maxFrame }

func (c *memChannel) Put(payload []byte) (Status, error) {
	if len(payload) > c.maxFrame {
		payload = payload[:c.maxFrame]
	}
	frame := make([]byte, len(payload))
	copy(frame, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return StatusClosed, nil
	}

	status := StatusOK
	idx := (c.head + c.count) % len(c.frames)
	if c.count == len(c.frames) {
		// Full: drop the oldest frame to make room.
		c.head = (c.head + 1) % len(c.frames)
		status = StatusOverflow
	} else {
		c.count++
	}
	c.frames[idx] = frame
	c.cond.Broadcast()
	return status, nil
}

func (c *memChannel) Get(ctx context.Context, buf []byte, opts GetOptions) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.closed && c.count == 0 {
			return Result{Status: StatusClosed}, nil
		}
		if c.count > 0 {
			break
		}
		if !opts.Wait {
			return Result{Status: StatusOK, Size: 0}, nil
		}
		if done := c.waitLocked(ctx); done {
			return Result{Status: StatusClosed}, ctx.Err()
		}
	}

	idx := c.head
	missed := false
	if opts.Last {
		// Jump to the newest frame, counting how many we skip.
		skip := c.count - 1
		if skip > 0 {
			missed = true
		}
		idx = (c.head + skip) % len(c.frames)
		c.head = idx
		c.count = 1
	}

	frame := c.frames[idx]
	if len(frame) > len(buf) {
		return Result{Status: StatusOverflow, RequiredSize: len(frame)}, nil
	}
	n := copy(buf, frame)
	c.head = (c.head + 1) % len(c.frames)
	c.count--

	status := StatusOK
	if missed {
		status = StatusMissedFrame
	}
	return Result{Status: status, Size: n, RequiredSize: len(frame)}, nil
}

// waitLocked blocks on c.cond until a frame arrives, the channel closes,
// or ctx is done, returning true if ctx ended the wait. c.mu must be
// held on entry and is held again on return.
func (c *memChannel) waitLocked(ctx context.Context) bool {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-stop:
		}
	}()
	c.cond.Wait()
	close(stop)
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}
