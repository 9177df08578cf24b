// Package stopsync provides the cancellation object of one scope pipeline
// run, and the helpers that turn a rate-limit or auth-expired error into a
// stop-sync result.
package stopsync

import (
	"context"
	"sync"

	"github.com/quentier-go/notesync/pkg/sync/syncerr"
	"github.com/quentier-go/notesync/pkg/sync/syncstate"
)

// Canceler wraps a context.Context/CancelFunc pair, used through a pointer.
// scopepipeline.Run creates one per call, so it is shared by the chunk
// download and the full-data fetches of that one scope; other scopes of the
// same orchestrator run each have their own Canceler and are not canceled
// by it.
type Canceler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	trigger error // first stop-sync trigger observed, if any
}

// New derives a cancelable child of parent for one orchestrator run.
func New(parent context.Context) *Canceler {
	ctx, cancel := context.WithCancel(parent)
	return &Canceler{ctx: ctx, cancel: cancel}
}

// Context is the context every suspension point in the run must observe.
func (c *Canceler) Context() context.Context { return c.ctx }

// Cancel stops the run unconditionally (e.g. caller-initiated cancellation).
func (c *Canceler) Cancel() { c.cancel() }

// Trigger records err as the reason the run is stopping and cancels the
// shared context, if err is a stop-sync trigger (rate-limit or
// auth-expired) or OperationCanceled. Only the first trigger observed is
// kept; later calls are no-ops. Returns true if this call recorded the
// trigger.
func (c *Canceler) Trigger(err error) bool {
	if !syncerr.IsStopSyncTrigger(err) && !syncerr.OfKind(err, syncerr.OperationCanceled) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.trigger != nil {
		return false
	}
	c.trigger = err
	c.cancel()
	return true
}

// Err returns the first trigger recorded, if any.
func (c *Canceler) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trigger
}

// Canceled reports whether the shared context has been canceled, for
// callers that want to check without allocating at every suspension point.
func (c *Canceler) Canceled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// FromError translates a propagated error into the StopSyncError embedded
// in a status record. Non-stop-sync errors map to StopSyncNone; callers
// that need to distinguish "no error" from "not a stop-sync error" should
// check the original error separately before calling this.
func FromError(err error) syncstate.StopSyncError {
	se, ok := syncerr.As(err)
	if !ok {
		return syncstate.StopSyncError{Kind: syncstate.StopSyncNone}
	}
	switch se.Kind {
	case syncerr.RateLimitReached:
		return syncstate.RateLimitStopError(se.RateLimitSeconds, se.RateLimitSeconds != 0)
	case syncerr.AuthenticationExpired:
		return syncstate.AuthExpiredStopError()
	default:
		return syncstate.StopSyncError{Kind: syncstate.StopSyncNone}
	}
}
