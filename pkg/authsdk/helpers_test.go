package authsdk_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/saccoesb/pkg/authsdk"
	"github.com/aussiebroadwan/saccoesb/pkg/authsdk/authsdktest"
	"github.com/aussiebroadwan/saccoesb/pkg/slogx"
	"github.com/aussiebroadwan/saccoesb/pkg/storex"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(at time.Time) *clock { return &clock{now: at} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	srv       *authsdktest.Server
	store     *storex.Store
	backend   *storex.Memory
	session   *authsdk.Session
	refresher *authsdk.Refresher
	client    *http.Client
}

func newFixture(t *testing.T, cacheCfg authsdk.CacheConfig) *fixture {
	t.Helper()

	srv := authsdktest.NewServer(t)
	backend := storex.NewMemory()
	store := storex.New(backend, slogx.Discard())

	session := authsdk.NewSession(authsdk.NewClient(srv.URL, nil), store, authsdk.SessionOptions{
		Cache:  cacheCfg,
		Logger: slogx.Discard(),
	})
	refresher := authsdk.NewRefresher(session, slogx.Discard())

	return &fixture{
		srv:       srv,
		store:     store,
		backend:   backend,
		session:   session,
		refresher: refresher,
		client:    &http.Client{Transport: authsdk.NewTransport(session, refresher, nil)},
	}
}

func operator() authsdk.Credentials {
	return authsdk.Credentials{Username: authsdktest.Username, Password: authsdktest.Password}
}
