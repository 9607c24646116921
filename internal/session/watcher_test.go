package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRemoteLogout(t *testing.T) {
	m, client, nav, store := newLiveManager(t)
	client.user = liveUser(testNow.Unix() + 300)

	ctx := context.Background()
	key := UserKey("https://idp.example.com/realms/x", "app")
	require.NoError(t, store.Set(key, []byte(`{"access_token":"access-1"}`), 0))

	_, err := m.CurrentUser(ctx)
	require.NoError(t, err)

	w := NewWatcher(m, time.Second)
	w.poll(ctx)
	assert.Empty(t, nav.Targets())

	// another instance logged out
	require.NoError(t, store.Delete(key))
	w.poll(ctx)

	assert.Nil(t, m.Snapshot())
	assert.Equal(t, []string{"/"}, nav.Targets())

	w.poll(ctx)
	assert.Len(t, nav.Targets(), 1, "a change is handled once")
}

func TestWatcherRemoteLogin(t *testing.T) {
	m, _, nav, store := newLiveManager(t)

	ctx := context.Background()
	w := NewWatcher(m, time.Second)
	w.poll(ctx)

	require.NoError(t, store.Set(UserKey("https://idp.example.com/realms/x", "app"), []byte(`{}`), 0))
	w.poll(ctx)
	w.poll(ctx)

	assert.Equal(t, 1, nav.Reloads())
	assert.Empty(t, nav.Targets())
}

func TestWatcherIgnoresOwnChanges(t *testing.T) {
	m, _, nav, store := newLiveManager(t)

	ctx := context.Background()
	w := NewWatcher(m, time.Second)
	w.poll(ctx)

	// our own logout: the cell is already empty when the key disappears
	key := UserKey("https://idp.example.com/realms/x", "app")
	require.NoError(t, store.Set(key, []byte(`{}`), 0))
	m.setSession(m.gen, NewSession(liveUser(0), "app"))
	w.poll(ctx)

	require.NoError(t, m.Logout(ctx))
	navigations := len(nav.Targets())
	w.poll(ctx)

	assert.Zero(t, nav.Reloads())
	assert.Len(t, nav.Targets(), navigations)
}

func TestWatcherStartStop(t *testing.T) {
	m, _, nav, store := newLiveManager(t)

	w := NewWatcher(m, 10*time.Millisecond)
	w.Start(context.Background())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, store.Set(UserKey("https://idp.example.com/realms/x", "app"), []byte(`{}`), 0))

	assert.Eventually(t, func() bool { return nav.Reloads() == 1 }, time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
}
