package session

import (
	"context"
	"sync"
	"time"
)

// Watcher keeps a manager in step with logins and logouts done by other
// instances sharing its storage. It polls the persisted user key: a removed key
// clears the session and navigates home, a new key reloads the page.
type Watcher struct {
	m        *Manager
	interval time.Duration

	present bool
	primed  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher for m polling every interval.
func NewWatcher(m *Manager, interval time.Duration) *Watcher {
	return &Watcher{
		m:        m,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start polls in the background until Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

// Stop ends the polling and waits for it.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

// poll compares the presence of the persisted key with the last poll.
func (w *Watcher) poll(ctx context.Context) {
	key := w.m.persistedKey()
	if key == "" {
		return
	}

	val, err := w.m.store.Get(key)
	if err != nil {
		w.m.opts.log.Debug().Err(err).Str("key", key).Msg("failed to poll session storage")
		return
	}

	present := len(val) > 0

	if !w.primed {
		w.primed = true
		w.present = present

		return
	}

	if present == w.present {
		return
	}

	w.present = present
	known := w.m.Snapshot() != nil

	// changes made through this manager already match its session cell
	if present == known {
		return
	}

	if !present {
		w.m.opts.log.Info().Msg("session removed by another instance")
		w.m.dropSession()

		if err = w.m.nav.Navigate(ctx, HomePath); err != nil {
			w.m.opts.log.Warn().Err(err).Msg("failed to navigate after remote logout")
		}

		return
	}

	w.m.opts.log.Info().Msg("session added by another instance")

	if err = w.m.nav.Reload(ctx); err != nil {
		w.m.opts.log.Warn().Err(err).Msg("failed to reload after remote login")
	}
}
