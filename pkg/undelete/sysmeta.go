package undelete

import (
	"net/http"
	"strings"

	"github.com/trashgate/trashgate/pkg/storeclient"
)

// HeaderMapping binds a client-visible control header to the backend sysmeta
// header that persists it.
type HeaderMapping map[string]string

// AccountMapping maps the control header to account-scope sysmeta.
func AccountMapping() HeaderMapping {
	return HeaderMapping{
		ClientHeader: storeclient.AccountSysmetaPrefix + "Undelete-Enabled",
	}
}

// ContainerMapping maps the control header to container-scope sysmeta.
func ContainerMapping() HeaderMapping {
	return HeaderMapping{
		ClientHeader: storeclient.ContainerSysmetaPrefix + "Undelete-Enabled",
	}
}

// TranslateRequest rewrites client control headers into sysmeta headers on a
// request bound for the backend. Client-supplied sysmeta is always stripped
// first, so persisted metadata can only be written through the control
// headers. Only administrators may write policy; for everyone else the
// stripped request is forwarded without a sysmeta write. An absent client
// header leaves metadata as it is.
func TranslateRequest(h http.Header, mapping HeaderMapping, admin bool) {
	StripSysmeta(h)
	if !admin {
		return
	}
	for clientHeader, sysmetaHeader := range mapping {
		values, ok := h[http.CanonicalHeaderKey(clientHeader)]
		if !ok || len(values) == 0 {
			continue
		}
		h.Set(sysmetaHeader, ParseHeaderFlag(values[0]).Sysmeta())
	}
}

// StripSysmeta removes every inbound account and container sysmeta header.
// The gateway is the sole writer of its sysmeta namespace; nothing a client
// sends under it may reach the backend.
func StripSysmeta(h http.Header) {
	for name := range h {
		if strings.HasPrefix(name, storeclient.AccountSysmetaPrefix) ||
			strings.HasPrefix(name, storeclient.ContainerSysmetaPrefix) {
			h.Del(name)
		}
	}
}

// TranslateResponse reflects persisted sysmeta values back onto the
// client-visible headers of a backend response, stripping the sysmeta headers
// so internal metadata never reaches clients. Policy state is readable by
// every caller, admin or not.
func TranslateResponse(h http.Header, mapping HeaderMapping) {
	for clientHeader, sysmetaHeader := range mapping {
		if values, ok := h[http.CanonicalHeaderKey(sysmetaHeader)]; ok && len(values) > 0 {
			h.Set(clientHeader, values[0])
			h.Del(sysmetaHeader)
		}
	}
}
