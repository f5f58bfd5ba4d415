package filter

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/logger"
	"github.com/trashgate/trashgate/pkg/undelete"
)

const FilterTypeUndelete = "UndeleteFilter"

const (
	blockedBody   = "Attempted to delete from a trash container, but block_trash_deletes is enabled\n"
	forbiddenBody = "Attempted to delete from a trash container, but user is not a superuser\n"
)

// Forwarder passes a request down the rest of the pipeline to the backend.
type Forwarder interface {
	Forward(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Invalidator drops cached scope metadata after an administrator writes
// policy, so the change is visible on the next delete.
type Invalidator interface {
	Invalidate(account, container string)
}

// UndeleteFilter intercepts object deletes and applies the copy-before-delete
// protocol. Account and container requests get their policy control header
// translated to and from persisted sysmeta; object deletes are copied into
// trash before the delete is allowed through.
type UndeleteFilter struct {
	cfg       undelete.Config
	policy    *undelete.Policy
	trash     *undelete.Trash
	forwarder Forwarder
	inval     Invalidator

	metricOutcome *prometheus.CounterVec
}

// UndeleteFilterOption configures optional collaborators.
type UndeleteFilterOption func(*UndeleteFilter)

// WithInvalidator wires metadata cache invalidation on admin policy writes.
func WithInvalidator(inv Invalidator) UndeleteFilterOption {
	return func(f *UndeleteFilter) {
		f.inval = inv
	}
}

func NewUndeleteFilter(cfg undelete.Config, policy *undelete.Policy, trash *undelete.Trash, forwarder Forwarder, opts ...UndeleteFilterOption) *UndeleteFilter {
	f := &UndeleteFilter{
		cfg:       cfg,
		policy:    policy,
		trash:     trash,
		forwarder: forwarder,
		metricOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trashgate_undelete_outcome_total",
			Help: "Outcomes of the undelete protocol by result",
		}, []string{"outcome"}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Metrics returns the filter's collectors for registration.
func (f *UndeleteFilter) Metrics() []prometheus.Collector {
	return []prometheus.Collector{f.metricOutcome}
}

func (f *UndeleteFilter) Type() string {
	return FilterTypeUndelete
}

func (f *UndeleteFilter) Run(d *data.Data) (Response, error) {
	if d.Ctx.Err() != nil {
		return nil, d.Ctx.Err()
	}

	// Service info and similar paths pass through untouched.
	if d.Scope == nil {
		return Next{}, nil
	}

	if d.Scope.AccountLevel() {
		return f.translateAndForward(d, undelete.AccountMapping())
	}
	if d.Scope.ContainerLevel() {
		return f.translateAndForward(d, undelete.ContainerMapping())
	}

	// Only object deletes are intercepted.
	if d.Req.Method != http.MethodDelete {
		return Next{}, nil
	}

	container := d.Scope.Container

	// The hard block comes before the privilege check so a blocking
	// configuration cannot be bypassed by privilege.
	if f.cfg.IsTrash(container) && f.cfg.BlockTrashDeletes {
		f.metricOutcome.WithLabelValues("blocked").Inc()
		writePlain(d.ResponseWriter, http.StatusMethodNotAllowed, blockedBody)
		return End{}, nil
	}
	if f.cfg.IsTrash(container) && !d.Auth.Admin {
		f.metricOutcome.WithLabelValues("forbidden").Inc()
		writePlain(d.ResponseWriter, http.StatusForbidden, forbiddenBody)
		return End{}, nil
	}

	if !f.policy.ShouldSaveCopy(d.Ctx, d.Auth.Token, d.Scope.Account, container) {
		f.metricOutcome.WithLabelValues("not_protected").Inc()
		return Next{}, nil
	}

	err := f.trash.SaveCopy(d.Ctx, d.Auth.Token, d.Req.URL.Path, d.Scope.Account, container, d.Scope.Object)
	if err == nil {
		f.metricOutcome.WithLabelValues("saved").Inc()
		return Next{}, nil
	}

	// The delete must not proceed without a confirmed safety copy.
	var copyErr *undelete.CopyError
	if errors.As(err, &copyErr) {
		f.metricOutcome.WithLabelValues("copy_failed").Inc()
		writeCopyFailure(d.ResponseWriter, copyErr)
		return End{}, nil
	}

	f.metricOutcome.WithLabelValues("error").Inc()
	logger.Ctx(d.Ctx).Error().Err(err).
		Str("account", d.Scope.Account).
		Str("container", container).
		Str("object", d.Scope.Object).
		Msg("undelete protocol failed")
	writePlain(d.ResponseWriter, http.StatusBadGateway, string(undelete.FriendlyErrorBody([]byte(err.Error()+"\n"))))
	return End{}, nil
}

// translateAndForward handles account and container requests: administrators'
// control headers become sysmeta writes, the request is forwarded, and the
// persisted value is reflected back to every caller.
func (f *UndeleteFilter) translateAndForward(d *data.Data, mapping undelete.HeaderMapping) (Response, error) {
	adminWrite := d.Auth.Admin && d.Req.Header.Get(undelete.ClientHeader) != ""
	undelete.TranslateRequest(d.Req.Header, mapping, d.Auth.Admin)

	resp, err := f.forwarder.Forward(d.Ctx, d.Req)
	if err != nil {
		logger.Ctx(d.Ctx).Error().Err(err).Str("path", d.Req.URL.Path).Msg("backend forward failed")
		writePlain(d.ResponseWriter, http.StatusBadGateway, "backend unavailable\n")
		return End{}, nil
	}
	defer resp.Body.Close()

	undelete.TranslateResponse(resp.Header, mapping)

	if adminWrite && f.inval != nil {
		f.inval.Invalidate(d.Scope.Account, d.Scope.Container)
	}

	w := d.ResponseWriter
	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Ctx(d.Ctx).Warn().Err(err).Msg("error streaming backend response")
	}
	return End{}, nil
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// writeCopyFailure surfaces a rejected copy with the upstream status and
// headers verbatim, so the caller can diagnose the backend failure.
func writeCopyFailure(w http.ResponseWriter, copyErr *undelete.CopyError) {
	res := copyErr.Result
	copyResponseHeaders(w.Header(), res.Header)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain")
	}
	w.WriteHeader(res.StatusCode)
	w.Write(undelete.FriendlyErrorBody(res.Body))
}

func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			// Recomputed by the server for the rewritten body.
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
