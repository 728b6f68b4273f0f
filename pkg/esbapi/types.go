package esbapi

import (
	"net/url"
	"strconv"
	"time"
)

// Page is one page of a listing.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// PageQuery selects a page. Zero values leave the server defaults.
type PageQuery struct {
	Page int
	Size int
	Sort string
}

func (q PageQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

// TimeRange bounds log queries. Zero ends are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) apply(v url.Values) {
	if !r.From.IsZero() {
		v.Set("from", r.From.UTC().Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		v.Set("to", r.To.UTC().Format(time.RFC3339))
	}
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

// DashboardSummary holds the landing page figures.
type DashboardSummary struct {
	Period                 string  `json:"period"`
	TotalTransactions      int64   `json:"totalTransactions"`
	SuccessfulTransactions int64   `json:"successfulTransactions"`
	FailedTransactions     int64   `json:"failedTransactions"`
	SuccessRate            float64 `json:"successRate"`
	TotalVolume            float64 `json:"totalVolume"`
	ActiveEntities         int     `json:"activeEntities"`
	ActiveIntegrations     int     `json:"activeIntegrations"`
}

// Transaction is one switched financial transaction.
type Transaction struct {
	ID           string    `json:"id"`
	Reference    string    `json:"reference"`
	EntityCode   string    `json:"entityCode"`
	Service      string    `json:"service"`
	Channel      string    `json:"channel"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
	ResponseCode string    `json:"responseCode"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TransactionFilter narrows a transaction log query.
type TransactionFilter struct {
	PageQuery
	TimeRange

	Status     string
	EntityCode string
	Reference  string
}

func (f TransactionFilter) values() url.Values {
	v := f.PageQuery.values()
	f.TimeRange.apply(v)
	setIf(v, "status", f.Status)
	setIf(v, "entityCode", f.EntityCode)
	setIf(v, "reference", f.Reference)
	return v
}

// IntegrationLog records one call between the ESB and a partner system.
type IntegrationLog struct {
	ID          string    `json:"id"`
	Integration string    `json:"integration"`
	Direction   string    `json:"direction"`
	Endpoint    string    `json:"endpoint"`
	Status      string    `json:"status"`
	HTTPStatus  int       `json:"httpStatus"`
	LatencyMs   int64     `json:"latencyMs"`
	RequestID   string    `json:"requestId"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IntegrationLogFilter narrows an integration log query.
type IntegrationLogFilter struct {
	PageQuery
	TimeRange

	Integration string
	Status      string
}

func (f IntegrationLogFilter) values() url.Values {
	v := f.PageQuery.values()
	f.TimeRange.apply(v)
	setIf(v, "integration", f.Integration)
	setIf(v, "status", f.Status)
	return v
}

// Entity is a SACCO or other institution connected to the ESB.
type Entity struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	ContactEmail string    `json:"contactEmail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type EntityInput struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ContactEmail string `json:"contactEmail,omitempty"`
}

// User is a dashboard operator account.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	FullName  string     `json:"fullName"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type UserInput struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"password,omitempty"`
}

// Role groups permissions granted to users.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

// Partner is an external system integrated through the ESB.
type Partner struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// AuditEntry records an administrative action.
type AuditEntry struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resourceId,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditFilter narrows an audit trail query.
type AuditFilter struct {
	PageQuery
	TimeRange

	Actor  string
	Action string
}

func (f AuditFilter) values() url.Values {
	v := f.PageQuery.values()
	f.TimeRange.apply(v)
	setIf(v, "actor", f.Actor)
	setIf(v, "action", f.Action)
	return v
}
