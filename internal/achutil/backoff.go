package achutil

import (
	"time"

	"github.com/cenkalti/backoff"
)

// RestartBackoff paces respawns of a crash-looping child: each
// consecutive failure waits longer, up to a cap, and a stable run resets
// the wait back to the initial interval. This is the REDESIGN behavior
// spec.md §9 flags as missing from the original ("back off restarts
// instead of tight-looping exec").
type RestartBackoff struct {
	b                *backoff.ExponentialBackOff
	minStableRuntime time.Duration
}

// NewRestartBackoff builds a RestartBackoff with the supervisor's
// chosen policy: 500ms initial interval, doubling up to a 30s cap, with
// no overall deadline (a supervised daemon restarts forever). A child
// that runs at least minStableRuntime before exiting is considered to
// have recovered, and the next failure starts the backoff over from the
// initial interval.
func NewRestartBackoff(minStableRuntime time.Duration) *RestartBackoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return &RestartBackoff{b: b, minStableRuntime: minStableRuntime}
}

// NextBackOff reports how long to wait before the next respawn attempt,
// given how long the child that just exited had been running. A run
// longer than minStableRuntime resets the policy before computing the
// interval, so a long-lived child that eventually crashes is treated as
// a fresh failure rather than the continuation of a crash loop.
func (r *RestartBackoff) NextBackOff(ranFor time.Duration) time.Duration {
	if ranFor >= r.minStableRuntime {
		r.b.Reset()
	}
	return r.b.NextBackOff()
}
