package ui

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Console locations.
const (
	PathLogin        = "/login"
	PathLock         = "/lock"
	PathDashboard    = "/dashboard"
	PathTransactions = "/transactions"
	PathIntegrations = "/integrations"
	PathEntities     = "/entities"
	PathUsers        = "/users"
	PathRoles        = "/roles"
	PathPartners     = "/partners"
	PathAudit        = "/audit"
)

// Route is a console location. Protected routes require a live session and,
// when Permission is set, that permission.
type Route struct {
	Path       string
	Public     bool
	Permission string
}

// DefaultRoutes are the views the console knows about.
func DefaultRoutes() []Route {
	return []Route{
		{Path: PathLogin, Public: true},
		{Path: PathLock},
		{Path: PathDashboard, Permission: "dashboard:read"},
		{Path: PathTransactions, Permission: "transactions:read"},
		{Path: PathIntegrations, Permission: "integrations:read"},
		{Path: PathEntities, Permission: "entities:read"},
		{Path: PathUsers, Permission: "users:read"},
		{Path: PathRoles, Permission: "roles:read"},
		{Path: PathPartners, Permission: "partners:read"},
		{Path: PathAudit, Permission: "audit:read"},
	}
}

// SessionState is what the route guard needs from the auth session.
type SessionState interface {
	IsLoggedIn() bool
	HasPermission(p string) bool
	Logout(ctx context.Context)
}

// Router tracks the current location and guards protected routes. It
// implements idlex.Navigator.
type Router struct {
	session SessionState
	routes  map[string]Route
	landing string
	logger  *slog.Logger

	mu        sync.Mutex
	location  string
	observers []func(location string)
}

// NewRouter creates a router positioned at the login view.
func NewRouter(session SessionState, routes []Route, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		session:  session,
		routes:   make(map[string]Route, len(routes)),
		landing:  PathDashboard,
		logger:   logger.With("component", "router"),
		location: PathLogin,
	}
	for _, route := range routes {
		r.routes[route.Path] = route
	}
	return r
}

// OnNavigate registers an observer called after every navigation, outside
// the router's lock.
func (r *Router) OnNavigate(fn func(location string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Location returns the current location.
func (r *Router) Location() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.location
}

// Navigate moves to path, or wherever the guard redirects it. Unknown paths
// go to the landing view; a missing permission leaves the location as is.
func (r *Router) Navigate(path string) { r.Go(path) }

// Go is Navigate reporting where the router ended up.
func (r *Router) Go(path string) string {
	dest := r.resolve(path)

	r.mu.Lock()
	r.location = dest
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	if dest != path {
		r.logger.Debug("navigation redirected", "requested", path, "location", dest)
	}
	for _, fn := range observers {
		fn(dest)
	}
	return dest
}

// resolve applies the route guard.
func (r *Router) resolve(path string) string {
	route, ok := r.routes[path]
	if !ok {
		path = r.landing
		route = r.routes[path]
	}
	if route.Public {
		return path
	}

	if r.session == nil || !r.session.IsLoggedIn() {
		if r.session != nil {
			r.session.Logout(context.Background())
		}
		return PathLogin
	}

	if route.Permission != "" && !r.session.HasPermission(route.Permission) {
		r.logger.Info("navigation denied", "path", path, "permission", route.Permission)
		return r.Location()
	}
	return path
}
