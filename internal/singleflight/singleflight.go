// Package singleflight coalesces concurrent fetches for the same key so the
// underlying work runs at most once. Unlike a plain Do-style API, ownership
// and completion are split: the owner runs the fetch and calls Complete,
// waiters block on the shared Call with their own context.
package singleflight

import (
	"context"
	"sync"
	"time"
)

// Call is a single in-flight or completed unit of work shared between
// callers. Its result fields are published by Complete before done closes.
type Call struct {
	val     []byte
	err     error
	done    chan struct{}
	started time.Time
}

// Group tracks in-flight calls by key.
type Group struct {
	mu    sync.Mutex
	calls map[string]*Call
}

// New creates an empty Group.
func New() *Group {
	return &Group{
		calls: make(map[string]*Call),
	}
}

// GetOrCreate returns the call registered under key, creating one when
// absent. The second result is true when the caller owns the new call and
// must eventually invoke Complete for it; false means another caller owns
// the work and the returned Call should be waited on.
func (g *Group) GetOrCreate(key string) (*Call, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[key]; ok {
		return c, false
	}

	c := &Call{
		done:    make(chan struct{}),
		started: time.Now(),
	}
	g.calls[key] = c
	return c, true
}

// Complete records the outcome for key, removes the entry, and releases all
// waiters. Completing an unknown key is a no-op.
func (g *Group) Complete(key string, val []byte, err error) {
	g.mu.Lock()
	c, ok := g.calls[key]
	if ok {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	if !ok {
		return
	}

	c.val = val
	c.err = err
	close(c.done)
}

// Forget drops key without completing it. Existing waiters keep waiting on
// the orphaned call; new callers for the key become owners.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// Len reports the number of in-flight calls.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Started returns when the call began.
func (c *Call) Started() time.Time {
	return c.started
}

// Wait blocks until the call completes or ctx is done. Abandoning the wait
// does not cancel the owner's work.
func (c *Call) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
