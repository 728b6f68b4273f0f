package esbapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// API paths.
const (
	DashboardSummaryPath = "/api/dashboard/summary"
	TransactionsPath     = "/api/transactions"
	IntegrationLogsPath  = "/api/integration-logs"
	EntitiesPath         = "/api/entities"
	UsersPath            = "/api/users"
	RolesPath            = "/api/roles"
	PartnersPath         = "/api/partners"
	AuditLogsPath        = "/api/audit-logs"
)

// DashboardSummary fetches the landing page figures for period ("today",
// "week", "month"); empty uses the server default.
func (c *Client) DashboardSummary(ctx context.Context, period string) (*DashboardSummary, error) {
	q := url.Values{}
	setIf(q, "period", period)

	var out DashboardSummary
	if err := c.do(ctx, standardCall, http.MethodGet, DashboardSummaryPath, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions queries the transaction log.
func (c *Client) Transactions(ctx context.Context, f TransactionFilter) (*Page[Transaction], error) {
	var out Page[Transaction]
	if err := c.do(ctx, reportCall, http.MethodGet, TransactionsPath, f.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transaction fetches one transaction by id.
func (c *Client) Transaction(ctx context.Context, id string) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, standardCall, http.MethodGet, TransactionsPath+"/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IntegrationLogs queries the partner integration log.
func (c *Client) IntegrationLogs(ctx context.Context, f IntegrationLogFilter) (*Page[IntegrationLog], error) {
	var out Page[IntegrationLog]
	if err := c.do(ctx, reportCall, http.MethodGet, IntegrationLogsPath, f.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditTrail queries administrative actions.
func (c *Client) AuditTrail(ctx context.Context, f AuditFilter) (*Page[AuditEntry], error) {
	var out Page[AuditEntry]
	if err := c.do(ctx, reportCall, http.MethodGet, AuditLogsPath, f.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Partners lists every integrated partner system.
func (c *Client) Partners(ctx context.Context) ([]Partner, error) {
	var out []Partner
	if err := c.do(ctx, standardCall, http.MethodGet, PartnersPath, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Entities() Resource[Entity, EntityInput] {
	return Resource[Entity, EntityInput]{c: c, path: EntitiesPath}
}

func (c *Client) Users() Resource[User, UserInput] {
	return Resource[User, UserInput]{c: c, path: UsersPath}
}

func (c *Client) Roles() Resource[Role, RoleInput] {
	return Resource[Role, RoleInput]{c: c, path: RolesPath}
}

// Resource is a CRUD collection addressed by numeric id.
type Resource[T, In any] struct {
	c    *Client
	path string
}

func (r Resource[T, In]) List(ctx context.Context, q PageQuery) (*Page[T], error) {
	var out Page[T]
	if err := r.c.do(ctx, standardCall, http.MethodGet, r.path, q.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T, In]) Get(ctx context.Context, id int64) (*T, error) {
	var out T
	if err := r.c.do(ctx, standardCall, http.MethodGet, r.item(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T, In]) Create(ctx context.Context, in In) (*T, error) {
	var out T
	if err := r.c.do(ctx, standardCall, http.MethodPost, r.path, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T, In]) Update(ctx context.Context, id int64, in In) (*T, error) {
	var out T
	if err := r.c.do(ctx, standardCall, http.MethodPut, r.item(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r Resource[T, In]) Delete(ctx context.Context, id int64) error {
	return r.c.do(ctx, standardCall, http.MethodDelete, r.item(id), nil, nil, nil)
}

func (r Resource[T, In]) item(id int64) string {
	return r.path + "/" + strconv.FormatInt(id, 10)
}
