// Package achchan defines the collaborator interface achd's pump and
// achcop's children talk to: the local shared-memory channel. The real
// ach channel library lives outside this module (spec.md's explicit
// non-goal); Open resolves names against an in-process registry of
// bounded ring buffers so the rest of the tree has something concrete
// to run against and be tested with.
package achchan

import (
	"context"
	"fmt"
)

// Status reports the outcome of a Get or Put against a channel.
type Status int

const (
	// StatusOK indicates a normal read or write.
	StatusOK Status = iota
	// StatusOverflow indicates a Put would not fit in the caller's buffer
	// (Get) or that the channel dropped the oldest frame to make room
	// (Put).
	StatusOverflow
	// StatusMissedFrame indicates a Get with Last set returned the newest
	// frame but one or more older, unread frames were skipped.
	StatusMissedFrame
	// StatusClosed indicates the channel has been closed and will never
	// produce more frames.
	StatusClosed
)

// GetOptions controls how Get retrieves the next frame.
type GetOptions struct {
	// Wait blocks until a frame is available (or ctx is done) instead of
	// returning immediately when the channel is empty.
	Wait bool
	// Last requests the newest frame, discarding any older ones still
	// queued, rather than the oldest unread frame.
	Last bool
}

// Result reports sizing information alongside a Get's Status.
type Result struct {
	Status Status
	// Size is the number of bytes actually copied into the caller's buffer.
	Size int
	// RequiredSize is the frame's true size; if it's larger than the
	// caller's buffer, Status is StatusOverflow and Size is 0.
	RequiredSize int
}

// Channel is the local collaborator achd forwards frames to and from.
// Implementations need not be safe for concurrent Put and Get from
// multiple goroutines beyond what a single push or pull session
// requires.
type Channel interface {
	// Name returns the channel's name as given to Open.
	Name() string
	// Get copies the next available frame into buf per opts, blocking per
	// opts.Wait and ctx. If buf is too small, Result.Status is
	// StatusOverflow and Result.RequiredSize reports the needed length;
	// the frame is not consumed.
	Get(ctx context.Context, buf []byte, opts GetOptions) (Result, error)
	// Put writes payload as a new frame. If the channel is full, the
	// oldest frame is dropped to make room and StatusOverflow is
	// returned alongside a nil error.
	Put(payload []byte) (Status, error)
	// Close releases the channel. Pending Get calls return StatusClosed.
	Close() error
	// FrameCount and FrameSize report the channel's sizing, the way
	// achd_serve reads channel.shm->index_cnt/data_size to answer a
	// client's negotiation request.
	FrameCount() int
	FrameSize() int
}

// ErrNotFound is returned by Open when name has no registered channel.
var ErrNotFound = fmt.Errorf("achchan: channel not found")

// Open resolves name against the process-local registry, returning its
// Channel. Use Register to create one first.
func Open(name string) (Channel, error) {
	return defaultRegistry.open(name)
}

// Register creates (or replaces) a channel named name with capacity
// frameCount frames, each up to frameSize bytes, and returns it. Callers
// that don't need to hold onto the handle can discard it and use Open
// to fetch it elsewhere by name.
func Register(name string, frameCount, frameSize int) Channel {
	return defaultRegistry.register(name, frameCount, frameSize)
}

// Unregister removes name from the registry, closing its channel first.
func Unregister(name string) {
	defaultRegistry.unregister(name)
}
