package idlex_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/saccoesb/pkg/idlex"
	"github.com/aussiebroadwan/saccoesb/pkg/slogx"
)

type mockNavigator struct {
	mock.Mock
}

func (m *mockNavigator) Location() string {
	return m.Called().String(0)
}

func (m *mockNavigator) Navigate(path string) {
	m.Called(path)
}

// navigatorAt returns a navigator that reports location and records every
// navigation on the returned channel.
func navigatorAt(location string) (*mockNavigator, chan string) {
	navigated := make(chan string, 16)
	nav := &mockNavigator{}
	nav.On("Location").Return(location).Maybe()
	nav.On("Navigate", mock.Anything).Run(func(args mock.Arguments) {
		navigated <- args.String(0)
	}).Maybe()
	return nav, navigated
}

type fakeSource struct {
	mu         sync.Mutex
	next       int
	subs       map[int]func(idlex.Signal)
	subscribed int
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[int]func(idlex.Signal))}
}

func (s *fakeSource) Subscribe(_ []idlex.Signal, fn func(idlex.Signal)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	s.subs[id] = fn
	s.subscribed++

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *fakeSource) Emit(sig idlex.Signal) {
	s.mu.Lock()
	fns := make([]func(idlex.Signal), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(sig)
	}
}

func (s *fakeSource) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case path := <-ch:
		return path
	case <-time.After(2 * time.Second):
		t.Fatal("no navigation")
		return ""
	}
}

func TestInactivityRoundTrip(t *testing.T) {
	t.Parallel()

	nav, navigated := navigatorAt("/dashboard")

	var locks atomic.Int32
	m := idlex.New(nav, idlex.Config{
		Timeout: 50 * time.Millisecond,
		OnLock:  func(string) { locks.Add(1) },
		Logger:  slogx.Discard(),
	})
	defer m.Stop()

	m.Init()
	require.Equal(t, idlex.Active, m.State())

	require.Equal(t, "/lock", receive(t, navigated))
	require.Equal(t, idlex.Locked, m.State())
	require.Equal(t, "/dashboard", m.PreviousURL())
	require.Eventually(t, func() bool { return locks.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Unlock())
	require.Equal(t, "/dashboard", receive(t, navigated))
	require.Equal(t, idlex.Active, m.State())
	require.Empty(t, m.PreviousURL())

	nav.AssertCalled(t, "Navigate", "/lock")
	nav.AssertCalled(t, "Navigate", "/dashboard")
}

func TestActivityResetsTimer(t *testing.T) {
	t.Parallel()

	nav, navigated := navigatorAt("/transactions")
	src := newFakeSource()

	var accepted atomic.Int32
	m := idlex.New(nav, idlex.Config{
		Timeout:    150 * time.Millisecond,
		Throttle:   time.Millisecond,
		OnActivity: func() { accepted.Add(1) },
		Logger:     slogx.Discard(),
	}, src)
	defer m.Stop()

	m.Init()

	deadline := time.Now().Add(600 * time.Millisecond)
	for time.Now().Before(deadline) {
		src.Emit(idlex.KeyPress)
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, idlex.Active, m.State())
	}
	require.Empty(t, navigated)
	require.Greater(t, accepted.Load(), int32(10))

	// Once activity stops the countdown runs out.
	require.Equal(t, "/lock", receive(t, navigated))
	require.Equal(t, "/transactions", m.PreviousURL())
}

func TestActivityThrottle(t *testing.T) {
	t.Parallel()

	nav, _ := navigatorAt("/dashboard")
	src := newFakeSource()

	var accepted atomic.Int32
	m := idlex.New(nav, idlex.Config{
		Throttle:   time.Hour,
		OnActivity: func() { accepted.Add(1) },
		Logger:     slogx.Discard(),
	}, src)
	defer m.Stop()

	m.Init()
	for _, sig := range idlex.AllSignals {
		src.Emit(sig)
	}
	require.Equal(t, int32(1), accepted.Load())
}

func TestTimerOnExemptViewsRearms(t *testing.T) {
	t.Parallel()

	for _, location := range []string{"/login", "/lock"} {
		t.Run(location, func(t *testing.T) {
			t.Parallel()

			var lookups atomic.Int32
			nav := &mockNavigator{}
			nav.On("Location").Return(location).Run(func(mock.Arguments) { lookups.Add(1) })

			m := idlex.New(nav, idlex.Config{Timeout: 20 * time.Millisecond, Logger: slogx.Discard()})
			defer m.Stop()

			m.Init()
			require.Eventually(t, func() bool { return lookups.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
				"timer should keep firing and re-arming")

			require.Equal(t, idlex.Active, m.State())
			nav.AssertNotCalled(t, "Navigate", mock.Anything)
		})
	}
}

func TestUnlock(t *testing.T) {
	t.Parallel()

	t.Run("not locked", func(t *testing.T) {
		nav, _ := navigatorAt("/dashboard")
		m := idlex.New(nav, idlex.Config{Logger: slogx.Discard()})

		require.ErrorIs(t, m.Unlock(), idlex.ErrNotLocked)
		m.Init()
		defer m.Stop()
		require.ErrorIs(t, m.Unlock(), idlex.ErrNotLocked)
		require.Equal(t, idlex.Active, m.State())
	})

	t.Run("falls back to landing path", func(t *testing.T) {
		nav, navigated := navigatorAt("")
		m := idlex.New(nav, idlex.Config{
			Timeout:     20 * time.Millisecond,
			LandingPath: "/home",
			Logger:      slogx.Discard(),
		})
		defer m.Stop()

		m.Init()
		require.Equal(t, "/lock", receive(t, navigated))

		require.NoError(t, m.Unlock())
		require.Equal(t, "/home", receive(t, navigated))
	})
}

func TestStop(t *testing.T) {
	t.Parallel()

	nav, navigated := navigatorAt("/dashboard")
	src := newFakeSource()

	var accepted atomic.Int32
	m := idlex.New(nav, idlex.Config{
		Timeout:    30 * time.Millisecond,
		Throttle:   time.Millisecond,
		OnActivity: func() { accepted.Add(1) },
		Logger:     slogx.Discard(),
	}, src)

	m.Init()
	require.Equal(t, 1, src.Listeners())

	m.Stop()
	m.Stop()
	require.Equal(t, idlex.Stopped, m.State())
	require.Zero(t, src.Listeners())

	m.Activity()
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, accepted.Load())
	require.Empty(t, navigated)

	t.Run("stop while locked", func(t *testing.T) {
		m.Init()
		require.Equal(t, "/lock", receive(t, navigated))
		require.Equal(t, idlex.Locked, m.State())

		m.Stop()
		require.Equal(t, idlex.Stopped, m.State())
		require.Empty(t, m.PreviousURL())
		require.ErrorIs(t, m.Unlock(), idlex.ErrNotLocked)
	})
}

func TestSync(t *testing.T) {
	t.Parallel()

	nav, navigated := navigatorAt("/dashboard")
	src := newFakeSource()
	m := idlex.New(nav, idlex.Config{Timeout: time.Hour, Logger: slogx.Discard()}, src)
	defer m.Stop()

	m.Sync(false, "/dashboard")
	require.Equal(t, idlex.Stopped, m.State())

	m.Sync(true, "/dashboard")
	require.Equal(t, idlex.Active, m.State())

	m.Sync(true, "/users")
	require.Equal(t, idlex.Active, m.State())
	require.Equal(t, 1, src.subscribed, "already running monitors are not restarted")

	m.Sync(true, "/login")
	require.Equal(t, idlex.Stopped, m.State())
	require.Zero(t, src.Listeners())

	m.Sync(true, "/dashboard")
	m.Sync(true, "/lock")
	require.Equal(t, idlex.Stopped, m.State(), "a manual visit to the lock view stops monitoring")

	m.Sync(true, "/dashboard")
	m.Sync(false, "/dashboard")
	require.Equal(t, idlex.Stopped, m.State())
	require.Empty(t, navigated)
}

func TestSyncLeavesLockedAlone(t *testing.T) {
	t.Parallel()

	nav, navigated := navigatorAt("/entities")
	m := idlex.New(nav, idlex.Config{Timeout: 20 * time.Millisecond, Logger: slogx.Discard()})
	defer m.Stop()

	m.Sync(true, "/entities")
	require.Equal(t, "/lock", receive(t, navigated))

	m.Sync(true, "/lock")
	require.Equal(t, idlex.Locked, m.State())
	require.Equal(t, "/entities", m.PreviousURL())
}

func TestDispatchRunsOutsideLock(t *testing.T) {
	t.Parallel()

	queue := make(chan func(), 4)
	nav, navigated := navigatorAt("/audit")

	m := idlex.New(nav, idlex.Config{
		Timeout:  20 * time.Millisecond,
		Dispatch: func(fn func()) { queue <- fn },
		Logger:   slogx.Discard(),
	})
	defer m.Stop()

	m.Init()

	var fn func()
	select {
	case fn = <-queue:
	case <-time.After(2 * time.Second):
		t.Fatal("nothing dispatched")
	}
	require.Empty(t, navigated, "navigation waits for the UI context")

	// Re-entering the monitor from the UI context must not deadlock.
	require.Equal(t, idlex.Locked, m.State())
	fn()
	require.Equal(t, "/lock", receive(t, navigated))
	m.Sync(true, "/lock")
	require.Equal(t, idlex.Locked, m.State())
}

func TestNilCollaborators(t *testing.T) {
	t.Parallel()

	m := idlex.New(nil, idlex.Config{Timeout: 10 * time.Millisecond, Logger: slogx.Discard()}, nil)
	defer m.Stop()

	require.NotPanics(t, func() {
		m.Init()
		m.Activity()
	})
	require.Eventually(t, func() bool { return m.State() == idlex.Locked }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Unlock())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "stopped", idlex.Stopped.String())
	require.Equal(t, "active", idlex.Active.String())
	require.Equal(t, "locked", idlex.Locked.String())
}
