package session

import (
	"context"
	"sync"
)

// Navigator parks the navigations a manager requests. Handlers take them right
// after the call that caused them, navigations raised by timers or the watcher
// are replayed by the auth middleware on the next request.
type Navigator struct {
	mu      sync.Mutex
	target  string
	reload  bool
	pending bool
}

// Navigate parks target, replacing an earlier navigation.
func (n *Navigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.target = target
	n.reload = false
	n.pending = true

	return nil
}

// Reload parks a reload of the current page.
func (n *Navigator) Reload(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.target = ""
	n.reload = true
	n.pending = true

	return nil
}

// TakePending returns and clears the parked navigation. ok is false when
// nothing is parked.
func (n *Navigator) TakePending() (target string, reload, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	target, reload, ok = n.target, n.reload, n.pending
	n.target, n.reload, n.pending = "", false, false

	return target, reload, ok
}
