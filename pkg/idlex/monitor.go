package idlex

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type event int

const (
	evInit event = iota
	evActivity
	evTimeout
	evUnlock
	evStop
)

// effect is what a transition asks to be done once the lock is released.
type effect struct {
	navigate    string
	subscribe   uint64
	unsubscribe []func()
	activity    bool
	locked      bool
	previous    string
	err         error
}

// Monitor is the inactivity state machine. It is safe for concurrent use.
type Monitor struct {
	cfg     Config
	nav     Navigator
	sources []ActivitySource

	mu          sync.Mutex
	state       State
	timer       *time.Timer
	gen         uint64
	run         uint64
	previousURL string
	unsubs      []func()
	throttle    *rate.Limiter
}

// New creates a stopped monitor. A nil navigator makes every navigation a
// no-op.
func New(nav Navigator, cfg Config, sources ...ActivitySource) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:      cfg,
		nav:      nav,
		sources:  sources,
		throttle: rate.NewLimiter(rate.Every(cfg.Throttle), 1),
	}
}

// Init starts monitoring. It is a no-op unless the monitor is Stopped.
func (m *Monitor) Init() { m.do(evInit, 0, "") }

// Activity records an activity signal. Sources call it through their
// subscription; the console also calls it directly for explicit actions.
func (m *Monitor) Activity() { m.do(evActivity, 0, "") }

// Unlock leaves the lock view for the remembered location.
func (m *Monitor) Unlock() error { return m.do(evUnlock, 0, "") }

// Stop cancels the countdown and detaches from all sources. Idempotent.
func (m *Monitor) Stop() { m.do(evStop, 0, "") }

// Sync is the navigation observer: it starts or stops monitoring based on
// the session and the location just navigated to.
func (m *Monitor) Sync(loggedIn bool, location string) {
	switch {
	case !loggedIn || location == m.cfg.LoginPath:
		m.Stop()
	case location == m.cfg.LockPath:
		if m.State() != Locked {
			m.Stop()
		}
	default:
		m.Init()
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PreviousURL returns the location remembered when the monitor locked.
func (m *Monitor) PreviousURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previousURL
}

func (m *Monitor) fire(gen uint64) {
	m.do(evTimeout, gen, m.location())
}

func (m *Monitor) do(ev event, gen uint64, location string) error {
	m.mu.Lock()
	eff := m.transition(ev, gen, location)
	m.mu.Unlock()

	return m.apply(eff)
}

// transition computes the next state. Must be called with mu held; it
// never calls out to the navigator, sources or hooks.
func (m *Monitor) transition(ev event, gen uint64, location string) effect {
	var eff effect

	switch ev {
	case evInit:
		if m.state != Stopped {
			return eff
		}
		m.state = Active
		m.run++
		eff.subscribe = m.run
		m.arm()

	case evActivity:
		if m.state != Active || !m.throttle.Allow() {
			return eff
		}
		m.arm()
		eff.activity = true

	case evTimeout:
		if m.state != Active || gen != m.gen {
			return eff
		}
		if location == m.cfg.LoginPath || location == m.cfg.LockPath {
			m.arm()
			return eff
		}
		m.previousURL = location
		m.state = Locked
		eff.navigate = m.cfg.LockPath
		eff.locked = true
		eff.previous = location

	case evUnlock:
		if m.state != Locked {
			eff.err = ErrNotLocked
			return eff
		}
		eff.navigate = m.previousURL
		if eff.navigate == "" {
			eff.navigate = m.cfg.LandingPath
		}
		m.previousURL = ""
		m.state = Active
		m.arm()

	case evStop:
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.gen++
		m.state = Stopped
		m.previousURL = ""
		eff.unsubscribe = m.unsubs
		m.unsubs = nil
	}

	return eff
}

// arm restarts the countdown. Fires from earlier timers are discarded by
// generation.
func (m *Monitor) arm() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.cfg.Timeout, func() { m.fire(gen) })
}

func (m *Monitor) apply(eff effect) error {
	for _, unsub := range eff.unsubscribe {
		unsub()
	}
	if eff.subscribe != 0 {
		m.subscribe(eff.subscribe)
	}
	if eff.navigate != "" {
		path := eff.navigate
		m.cfg.Dispatch(func() { m.navigate(path) })
	}
	if eff.locked {
		m.cfg.Logger.Info("console locked after inactivity", "previous", eff.previous, "timeout", m.cfg.Timeout)
		if m.cfg.OnLock != nil {
			m.cfg.OnLock(eff.previous)
		}
	}
	if eff.activity && m.cfg.OnActivity != nil {
		m.cfg.OnActivity()
	}
	return eff.err
}

// subscribe attaches to every source for monitoring run. If the monitor was
// stopped meanwhile the new subscriptions are released at once.
func (m *Monitor) subscribe(run uint64) {
	var unsubs []func()
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		if unsub := src.Subscribe(m.cfg.Signals, func(Signal) { m.Activity() }); unsub != nil {
			unsubs = append(unsubs, unsub)
		}
	}

	m.mu.Lock()
	if m.state == Stopped || m.run != run {
		m.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		return
	}
	m.unsubs = append(m.unsubs, unsubs...)
	m.mu.Unlock()
}

func (m *Monitor) location() string {
	if m.nav == nil {
		return ""
	}
	return m.nav.Location()
}

func (m *Monitor) navigate(path string) {
	if m.nav != nil {
		m.nav.Navigate(path)
	}
}
