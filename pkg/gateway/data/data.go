package data

import (
	"context"
	"net/http"
)

// Scope is the storage namespace address a request targets.
type Scope struct {
	Account   string
	Container string
	// Object may contain slashes; the path splits rest-with-last.
	Object string
}

// AccountLevel reports a request addressing only an account.
func (s *Scope) AccountLevel() bool {
	return s.Container == ""
}

// ContainerLevel reports a request addressing a container but no object.
func (s *Scope) ContainerLevel() bool {
	return s.Container != "" && s.Object == ""
}

// ObjectLevel reports a request addressing an object.
func (s *Scope) ObjectLevel() bool {
	return s.Object != ""
}

// Auth is the authentication context the auth stage ahead of the gateway
// established for this request.
type Auth struct {
	// Admin marks reseller/superuser callers with cross-scope privilege.
	Admin bool
	// Token is the caller's auth token, propagated on internal requests.
	Token string
}

// Data is the per-request state carried through the filter chain. It lives
// only for the duration of one request.
type Data struct {
	Ctx context.Context
	Req *http.Request

	// Scope is nil for paths outside the storage namespace (service info,
	// health checks); such requests pass through untouched.
	Scope *Scope

	Auth Auth

	// ResponseWriter allows filters to write terminal responses directly.
	// Set by the server before invoking the filter chain.
	ResponseWriter http.ResponseWriter
}

func NewData(ctx context.Context, req *http.Request) *Data {
	return &Data{
		Ctx: ctx,
		Req: req,
	}
}
