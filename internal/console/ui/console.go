// Package ui is the operator-facing side of the console: a guarded router
// and a line shell whose commands drive the auth session and the ESB API.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aussiebroadwan/saccoesb/pkg/authsdk"
	"github.com/aussiebroadwan/saccoesb/pkg/esbapi"
	"github.com/aussiebroadwan/saccoesb/pkg/idlex"
	"github.com/aussiebroadwan/saccoesb/pkg/jwtx"
)

const defaultPageSize = 20

// Console binds the shell commands to the session, the API and the
// inactivity monitor.
type Console struct {
	Session *authsdk.Session
	API     *esbapi.Client
	Monitor *idlex.Monitor
	Router  *Router
	Shell   *Shell
	Logger  *slog.Logger
}

// Install registers the commands and hooks the shell up to the monitor.
func (c *Console) Install() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	sh := c.Shell
	sh.Prompt = func() string { return c.Router.Location() + "> " }
	sh.Locked = func() bool { return c.Monitor.State() == idlex.Locked }
	sh.Describe = describe

	sh.Handle("login", Command{Usage: "login <username> <password>", Help: "sign in", Run: c.login})
	sh.Handle("logout", Command{Usage: "logout", Help: "sign out", Unlocked: true, Run: c.logout})
	sh.Handle("unlock", Command{Usage: "unlock <password>", Help: "resume a locked console", Unlocked: true, Run: c.unlock})
	sh.Handle("whoami", Command{Usage: "whoami", Help: "show the signed-in operator", Unlocked: true, Run: c.whoami})
	sh.Handle("go", Command{Usage: "go <path>", Help: "navigate to a view", Run: c.goTo})
	sh.Handle("dashboard", Command{Usage: "dashboard [period]", Help: "transaction summary (today, week, month)", Run: c.dashboard})
	sh.Handle("transactions", Command{Usage: "transactions [page] [status]", Help: "transaction log", Run: c.transactions})
	sh.Handle("integrations", Command{Usage: "integrations [page] [status]", Help: "integration log", Run: c.integrations})
	sh.Handle("entities", Command{Usage: "entities [page]", Help: "connected entities", Run: c.entities})
	sh.Handle("users", Command{Usage: "users [page]", Help: "operator accounts", Run: c.users})
	sh.Handle("roles", Command{Usage: "roles [page]", Help: "roles and permissions", Run: c.roles})
	sh.Handle("partners", Command{Usage: "partners", Help: "integration partners", Run: c.partners})
	sh.Handle("audit", Command{Usage: "audit [page]", Help: "audit trail", Run: c.audit})
	sh.Handle("quit", Command{Usage: "quit", Help: "leave the console", Unlocked: true, Run: quit})
	sh.Handle("exit", Command{Usage: "exit", Help: "leave the console", Unlocked: true, Run: quit})
}

// Expired ends the visible session after the keeper or the refresher
// already logged out. Safe to call from any goroutine; repeats while on the
// login view are dropped.
func (c *Console) Expired(reason string) {
	c.Shell.Dispatch(func() {
		if c.Router.Location() == PathLogin {
			return
		}
		c.Shell.Printf("\nsession ended: %s\n", reason)
		c.Router.Navigate(PathLogin)
	})
}

func quit(context.Context, []string) error { return ErrQuit }

func (c *Console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("login <username> <password>")
	}
	if user := c.Session.CurrentUser(); user != nil && c.Session.IsLoggedIn() {
		c.Shell.Printf("already signed in as %s, logout first\n", user.Username)
		return nil
	}

	res, err := c.Session.Login(ctx, authsdk.Credentials{Username: args[0], Password: args[1]})
	if err != nil {
		return err
	}

	name := res.User.DisplayName
	if name == "" {
		name = res.User.Username
	}
	c.Shell.Printf("welcome, %s\n", name)
	c.Router.Navigate(PathDashboard)
	return nil
}

func (c *Console) logout(ctx context.Context, _ []string) error {
	c.Session.Logout(ctx)
	c.Router.Navigate(PathLogin)
	c.Shell.Printf("signed out\n")
	return nil
}

func (c *Console) unlock(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("unlock <password>")
	}
	if c.Monitor.State() != idlex.Locked {
		return idlex.ErrNotLocked
	}

	user := c.Session.CurrentUser()
	if user == nil {
		c.Router.Navigate(PathLogin)
		return authsdk.ErrNotAuthenticated
	}

	if _, err := c.Session.Login(ctx, authsdk.Credentials{Username: user.Username, Password: args[0]}); err != nil {
		return err
	}
	return c.Monitor.Unlock()
}

func (c *Console) whoami(context.Context, []string) error {
	user := c.Session.CurrentUser()
	if user == nil || !c.Session.IsLoggedIn() {
		c.Shell.Printf("not signed in\n")
		return nil
	}

	c.Shell.Printf("user:        %s\n", user.Username)
	if user.DisplayName != "" {
		c.Shell.Printf("name:        %s\n", user.DisplayName)
	}
	c.Shell.Printf("permissions: %s\n", strings.Join(user.Permissions, ", "))
	c.Shell.Printf("token:       expires in %s\n", jwtx.TimeUntilExpiry(c.Session.AccessToken()).Round(time.Second))
	c.Shell.Printf("console:     %s at %s\n", c.Monitor.State(), c.Router.Location())
	return nil
}

func (c *Console) goTo(_ context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("go <path>")
	}
	c.enter(args[0])
	return nil
}

// enter navigates to path and reports whether the router let us in.
func (c *Console) enter(path string) bool {
	dest := c.Router.Go(path)
	if dest == path {
		return true
	}
	c.Shell.Printf("cannot open %s, now at %s\n", path, dest)
	return false
}

func (c *Console) dashboard(ctx context.Context, args []string) error {
	if !c.enter(PathDashboard) {
		return nil
	}
	period := "today"
	if len(args) > 0 {
		period = args[0]
	}

	sum, err := c.API.DashboardSummary(ctx, period)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.Shell.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "period\t%s\n", sum.Period)
	fmt.Fprintf(w, "transactions\t%d (%d ok, %d failed)\n", sum.TotalTransactions, sum.SuccessfulTransactions, sum.FailedTransactions)
	fmt.Fprintf(w, "success rate\t%.2f%%\n", sum.SuccessRate)
	fmt.Fprintf(w, "volume\t%.2f\n", sum.TotalVolume)
	fmt.Fprintf(w, "active entities\t%d\n", sum.ActiveEntities)
	fmt.Fprintf(w, "active integrations\t%d\n", sum.ActiveIntegrations)
	return w.Flush()
}

func (c *Console) transactions(ctx context.Context, args []string) error {
	if !c.enter(PathTransactions) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}
	f := esbapi.TransactionFilter{PageQuery: q}
	if len(args) > 1 {
		f.Status = args[1]
	}

	page, err := c.API.Transactions(ctx, f)
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "REFERENCE\tENTITY\tSERVICE\tAMOUNT\tSTATUS\tCREATED", len(page.Content), func(i int) string {
		t := page.Content[i]
		return fmt.Sprintf("%s\t%s\t%s\t%.2f %s\t%s\t%s", t.Reference, t.EntityCode, t.Service, t.Amount, t.Currency, t.Status, t.CreatedAt.Format(time.DateTime))
	})
}

func (c *Console) integrations(ctx context.Context, args []string) error {
	if !c.enter(PathIntegrations) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}
	f := esbapi.IntegrationLogFilter{PageQuery: q}
	if len(args) > 1 {
		f.Status = args[1]
	}

	page, err := c.API.IntegrationLogs(ctx, f)
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "INTEGRATION\tDIRECTION\tSTATUS\tHTTP\tLATENCY\tCREATED", len(page.Content), func(i int) string {
		l := page.Content[i]
		return fmt.Sprintf("%s\t%s\t%s\t%d\t%dms\t%s", l.Integration, l.Direction, l.Status, l.HTTPStatus, l.LatencyMs, l.CreatedAt.Format(time.DateTime))
	})
}

func (c *Console) entities(ctx context.Context, args []string) error {
	if !c.enter(PathEntities) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}

	page, err := c.API.Entities().List(ctx, q)
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "ID\tCODE\tNAME\tTYPE\tSTATUS", len(page.Content), func(i int) string {
		e := page.Content[i]
		return fmt.Sprintf("%d\t%s\t%s\t%s\t%s", e.ID, e.Code, e.Name, e.Type, e.Status)
	})
}

func (c *Console) users(ctx context.Context, args []string) error {
	if !c.enter(PathUsers) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}

	page, err := c.API.Users().List(ctx, q)
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "ID\tUSERNAME\tNAME\tROLE\tSTATUS", len(page.Content), func(i int) string {
		u := page.Content[i]
		return fmt.Sprintf("%d\t%s\t%s\t%s\t%s", u.ID, u.Username, u.FullName, u.Role, u.Status)
	})
}

func (c *Console) roles(ctx context.Context, args []string) error {
	if !c.enter(PathRoles) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}

	page, err := c.API.Roles().List(ctx, q)
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "ID\tNAME\tPERMISSIONS", len(page.Content), func(i int) string {
		r := page.Content[i]
		return fmt.Sprintf("%d\t%s\t%s", r.ID, r.Name, strings.Join(r.Permissions, ","))
	})
}

func (c *Console) partners(ctx context.Context, _ []string) error {
	if !c.enter(PathPartners) {
		return nil
	}

	partners, err := c.API.Partners(ctx)
	if err != nil {
		return err
	}
	return c.table(0, 1, "CODE\tNAME\tTYPE\tSTATUS", len(partners), func(i int) string {
		p := partners[i]
		return fmt.Sprintf("%s\t%s\t%s\t%s", p.Code, p.Name, p.Type, p.Status)
	})
}

func (c *Console) audit(ctx context.Context, args []string) error {
	if !c.enter(PathAudit) {
		return nil
	}
	q, err := pageArg(args)
	if err != nil {
		return err
	}

	page, err := c.API.AuditTrail(ctx, esbapi.AuditFilter{PageQuery: q})
	if err != nil {
		return err
	}
	return c.table(page.Page, page.TotalPages, "WHEN\tACTOR\tACTION\tRESOURCE", len(page.Content), func(i int) string {
		a := page.Content[i]
		return fmt.Sprintf("%s\t%s\t%s\t%s %s", a.Timestamp.Format(time.DateTime), a.Actor, a.Action, a.Resource, a.ResourceID)
	})
}

// table prints n rows under header followed by a page footer. Pages are
// zero-based on the wire and shown one-based.
func (c *Console) table(page, totalPages int, header string, n int, row func(int) string) error {
	w := tabwriter.NewWriter(c.Shell.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for i := range n {
		fmt.Fprintln(w, row(i))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if n == 0 {
		c.Shell.Printf("(no results)\n")
	}
	if totalPages > 1 {
		c.Shell.Printf("page %d of %d\n", page+1, totalPages)
	}
	return nil
}

// pageArg reads an optional one-based page number.
func pageArg(args []string) (esbapi.PageQuery, error) {
	q := esbapi.PageQuery{Size: defaultPageSize}
	if len(args) == 0 {
		return q, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return q, usageError("page must be a positive number")
	}
	q.Page = n - 1
	return q, nil
}

type usageError string

func (e usageError) Error() string { return "usage: " + string(e) }

// describe renders a command error for the operator.
func describe(err error) string {
	var (
		apiErr *esbapi.APIError
		usage  usageError
	)
	switch {
	case errors.As(err, &usage):
		return usage.Error()
	case errors.Is(err, idlex.ErrNotLocked):
		return "console is not locked"
	case errors.Is(err, authsdk.ErrRefreshFailed), errors.Is(err, authsdk.ErrNotAuthenticated):
		return "Your session has expired. Please sign in again."
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return authsdk.Message(err)
	}
}
