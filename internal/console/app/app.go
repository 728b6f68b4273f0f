package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aussiebroadwan/saccoesb/internal/console/ui"
	"github.com/aussiebroadwan/saccoesb/pkg/authsdk"
	"github.com/aussiebroadwan/saccoesb/pkg/esbapi"
	"github.com/aussiebroadwan/saccoesb/pkg/httpx"
	"github.com/aussiebroadwan/saccoesb/pkg/idlex"
	"github.com/aussiebroadwan/saccoesb/pkg/slogx"
	"github.com/aussiebroadwan/saccoesb/pkg/storex"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the console with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Storage
	backend storex.Backend
	closer  io.Closer
	store   *storex.Store

	// Auth
	session   *authsdk.Session
	refresher *authsdk.Refresher
	keeper    *authsdk.Keeper

	// ESB API over the authenticated transport
	api *esbapi.Client

	// Operator interface
	router  *ui.Router
	shell   *ui.Shell
	monitor *idlex.Monitor
	console *ui.Console
}

// New creates a new Application reading commands from in and writing to out.
func New(cfg Config, in io.Reader, out io.Writer) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "esb-console",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(context.Background()); err != nil {
		return nil, err
	}

	app.initAuth()
	app.initUI(in, out)

	return app, nil
}

// Run restores any persisted session and serves the shell until the
// operator quits or a shutdown signal arrives.
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.logger.Info("console starting", "esb", app.cfg.BaseURL, "store", app.cfg.StoreDriver, "version", BuildVersion)

	if !app.store.IsAvailable(ctx) {
		app.logger.Warn("session store unavailable, sessions will not survive a restart")
	}

	app.keeper.Start()
	app.restore(ctx)

	shellDone := make(chan error, 1)
	go func() {
		shellDone <- app.shell.Run(ctx)
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var runErr error
	select {
	case err := <-shellDone:
		if err != nil {
			runErr = fmt.Errorf("shell failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		cancel()
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return runErr
}

// Shutdown stops the background workers and closes the session store. The
// persisted session is kept so the next start can restore it.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down console...")

	app.monitor.Stop()

	// Give an in-flight keeper refresh a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		app.keeper.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		app.logger.Warn("session keeper did not stop within grace period")
	}

	if err := app.closer.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("console stopped")
	return nil
}

// restore picks up a persisted session and opens the matching view.
func (app *Application) restore(ctx context.Context) {
	if app.session.Restore(ctx) {
		user := app.session.CurrentUser()
		if user != nil {
			app.shell.Printf("welcome back, %s\n", user.Username)
		}
		app.router.Navigate(ui.PathDashboard)
		return
	}
	app.shell.Printf("sign in with: login <username> <password>\n")
	app.router.Navigate(ui.PathLogin)
}

// initStore opens the configured backend
func (app *Application) initStore(ctx context.Context) error {
	backend, closer, err := openBackend(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}
	app.backend = backend
	app.closer = closer
	app.store = storex.New(backend, app.logger)

	if _, sealed := backend.(*storex.Sealed); sealed {
		app.logger.Info("session store sealed with master key")
	}
	app.logger.Info("session store ready", "driver", app.cfg.StoreDriver)
	return nil
}

// initAuth builds the outbound transport chain, the session and its
// refresh machinery.
//
// Requests flow: authsdk.Transport -> slogx.Transport -> httpx.RateLimit -> network.
func (app *Application) initAuth() {
	limited := httpx.NewRateLimit(http.DefaultTransport,
		httpx.RateLimitRule{PathSuffix: authsdk.AuthenticatePath, Config: httpx.StrictLimit},
		httpx.RateLimitRule{Config: httpx.LenientLimit, Wait: true},
	)
	logged := slogx.NewTransport(limited, app.logger)

	app.session = authsdk.NewSession(authsdk.NewClient(app.cfg.BaseURL, logged), app.store, authsdk.SessionOptions{
		Cache: authsdk.CacheConfig{
			RefreshThreshold: app.cfg.TokenRefreshThreshold,
			SessionTimeout:   app.cfg.SessionTimeout,
			MaxAge:           app.cfg.CacheMaxAge,
		},
		Logger: app.logger,
	})

	app.refresher = authsdk.NewRefresher(app.session, app.logger)
	app.refresher.Timeout = app.cfg.RequestTimeout

	app.keeper = authsdk.NewKeeper(app.session, app.refresher, app.logger, app.cfg.KeeperInterval)

	app.api = esbapi.New(app.cfg.BaseURL,
		esbapi.WithTransport(authsdk.NewTransport(app.session, app.refresher, logged)),
		esbapi.WithTimeouts(app.cfg.RequestTimeout, app.cfg.ReportTimeout),
		esbapi.WithLogger(app.logger),
	)
}

// initUI wires the router, shell and inactivity monitor together.
func (app *Application) initUI(in io.Reader, out io.Writer) {
	app.router = ui.NewRouter(app.session, ui.DefaultRoutes(), app.logger)
	app.shell = ui.NewShell(in, out)

	app.monitor = idlex.New(app.router, idlex.Config{
		Timeout:     app.cfg.IdleTimeout,
		Throttle:    app.cfg.IdleThrottle,
		LockPath:    ui.PathLock,
		LoginPath:   ui.PathLogin,
		LandingPath: ui.PathDashboard,
		Signals:     []idlex.Signal{idlex.KeyPress},
		Dispatch:    app.shell.Dispatch,
		OnActivity: func() {
			app.session.RecordActivity(context.Background())
		},
		OnLock: func(string) {
			app.shell.Dispatch(func() {
				app.shell.Printf("\nconsole locked after inactivity, use unlock <password>\n")
			})
		},
		Logger: app.logger,
	}, app.shell)

	// Navigation observer: monitoring runs only inside a live session.
	app.router.OnNavigate(func(location string) {
		app.monitor.Sync(app.session.IsLoggedIn(), location)
	})

	app.console = &ui.Console{
		Session: app.session,
		API:     app.api,
		Monitor: app.monitor,
		Router:  app.router,
		Shell:   app.shell,
		Logger:  app.logger,
	}
	app.console.Install()

	app.keeper.OnExpired = app.console.Expired
	app.refresher.OnFailure = func(error) {
		app.console.Expired(authsdk.ExpiredRefreshFailed)
	}
}
