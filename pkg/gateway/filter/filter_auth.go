package filter

import (
	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/utils"
)

const (
	FilterTypeAuth = "AuthFilter"

	// HeaderAuthToken carries the caller's token, issued by the auth service
	// in front of the gateway and consumed by the backend.
	HeaderAuthToken = "X-Auth-Token"

	// HeaderResellerRequest is set by the trusted auth stage when the caller
	// holds reseller (superuser) privilege. Clients cannot reach the gateway
	// without passing that stage, so the header's presence is authoritative.
	HeaderResellerRequest = "X-Reseller-Request"
)

// AuthFilter lifts the authentication context the upstream auth stage
// established into the request data. The gateway performs no identity
// verification of its own.
type AuthFilter struct {
	adminHeader string
}

type AuthFilterOption func(*AuthFilter)

// WithAdminHeader overrides the header consulted for superuser privilege.
func WithAdminHeader(name string) AuthFilterOption {
	return func(f *AuthFilter) {
		f.adminHeader = name
	}
}

func NewAuthFilter(opts ...AuthFilterOption) *AuthFilter {
	f := &AuthFilter{adminHeader: HeaderResellerRequest}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *AuthFilter) Run(d *data.Data) (Response, error) {
	if d.Ctx.Err() != nil {
		return nil, d.Ctx.Err()
	}

	d.Auth = data.Auth{
		Admin: utils.TrueValue(d.Req.Header.Get(f.adminHeader)),
		Token: d.Req.Header.Get(HeaderAuthToken),
	}

	return Next{}, nil
}

func (f *AuthFilter) Type() string {
	return FilterTypeAuth
}
