// Package idlex locks the console after a period without operator activity.
//
// A Monitor counts down from Timeout while Active. Activity signals from
// the attached sources restart the countdown. When it reaches zero the
// monitor remembers the current location, navigates to the lock view and
// becomes Locked until Unlock is called.
package idlex

import (
	"errors"
	"log/slog"
	"time"
)

// Defaults for Config.
const (
	DefaultTimeout     = time.Hour
	DefaultThrottle    = 300 * time.Millisecond
	DefaultLockPath    = "/lock"
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/dashboard"
)

// ErrNotLocked is returned by Unlock when the monitor is not Locked.
var ErrNotLocked = errors.New("idlex: monitor is not locked")

// Signal is a kind of operator activity.
type Signal string

const (
	PointerMove Signal = "pointermove"
	Click       Signal = "click"
	KeyPress    Signal = "keypress"
	Scroll      Signal = "scroll"
	TouchStart  Signal = "touchstart"
)

// AllSignals is the default set of signals a monitor listens for.
var AllSignals = []Signal{PointerMove, Click, KeyPress, Scroll, TouchStart}

// ActivitySource emits activity signals. Subscribe must not call fn
// synchronously.
type ActivitySource interface {
	Subscribe(signals []Signal, fn func(Signal)) (unsubscribe func())
}

// Navigator is the UI router as seen by the monitor.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// State of a Monitor.
type State int

const (
	Stopped State = iota
	Active
	Locked
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Locked:
		return "locked"
	default:
		return "stopped"
	}
}

// Config tunes a Monitor. Zero values take the defaults.
type Config struct {
	Timeout  time.Duration
	Throttle time.Duration

	LockPath    string
	LoginPath   string
	LandingPath string

	Signals []Signal

	// Dispatch runs navigation in the UI context. Defaults to calling the
	// function directly.
	Dispatch func(func())

	// OnActivity runs after an accepted (unthrottled) activity signal.
	OnActivity func()

	// OnLock runs after the monitor locked, with the location it left.
	OnLock func(previous string)

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Throttle <= 0 {
		c.Throttle = DefaultThrottle
	}
	if c.LockPath == "" {
		c.LockPath = DefaultLockPath
	}
	if c.LoginPath == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.LandingPath == "" {
		c.LandingPath = DefaultLandingPath
	}
	if len(c.Signals) == 0 {
		c.Signals = AllSignals
	}
	if c.Dispatch == nil {
		c.Dispatch = func(fn func()) { fn() }
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
