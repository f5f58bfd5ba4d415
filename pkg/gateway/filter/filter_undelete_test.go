package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashgate/trashgate/pkg/gateway/data"
	"github.com/trashgate/trashgate/pkg/storeclient"
	"github.com/trashgate/trashgate/pkg/undelete"
)

type fakeForwarder struct {
	resp    *http.Response
	err     error
	lastReq *http.Request
	calls   int
}

func (f *fakeForwarder) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func cannedResponse(status int, headers map[string]string, body string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

type fakeMeta struct {
	container map[string]string
	account   map[string]string
}

func (f *fakeMeta) AccountMetadata(ctx context.Context, token, account string) (map[string]string, error) {
	return f.account, nil
}

func (f *fakeMeta) ContainerMetadata(ctx context.Context, token, account, container string) (map[string]string, error) {
	return f.container, nil
}

type fakeTrashBackend struct {
	copyResults []*storeclient.CopyResult
	copyErr     error
	copies      int
	creates     []string
}

func (f *fakeTrashBackend) CopyObject(ctx context.Context, token, srcPath, destContainer, destObject string, expireAfter int64) (*storeclient.CopyResult, error) {
	f.copies++
	if f.copyErr != nil {
		return nil, f.copyErr
	}
	res := f.copyResults[0]
	if len(f.copyResults) > 1 {
		f.copyResults = f.copyResults[1:]
	}
	return res, nil
}

func (f *fakeTrashBackend) CreateContainer(ctx context.Context, token, account, container, versionsLocation string) error {
	f.creates = append(f.creates, container)
	return nil
}

type fakeInvalidator struct {
	calls [][2]string
}

func (f *fakeInvalidator) Invalidate(account, container string) {
	f.calls = append(f.calls, [2]string{account, container})
}

type undeleteFixture struct {
	filter    *UndeleteFilter
	forwarder *fakeForwarder
	backend   *fakeTrashBackend
	inval     *fakeInvalidator
}

func newUndeleteFixture(cfg undelete.Config, meta undelete.MetadataSource, forwarder *fakeForwarder, backend *fakeTrashBackend) *undeleteFixture {
	inval := &fakeInvalidator{}
	return &undeleteFixture{
		filter: NewUndeleteFilter(
			cfg,
			undelete.NewPolicy(cfg, meta),
			undelete.NewTrash(cfg, backend),
			forwarder,
			WithInvalidator(inval),
		),
		forwarder: forwarder,
		backend:   backend,
		inval:     inval,
	}
}

func runRequest(t *testing.T, f *UndeleteFilter, method, path string, headers map[string]string) (Response, *httptest.ResponseRecorder) {
	t.Helper()

	req := httptest.NewRequest(method, "http://gateway"+path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	d := data.NewData(context.Background(), req)
	d.ResponseWriter = httptest.NewRecorder()
	d.Scope, _ = ParseScope(req.URL.Path)
	d.Auth = data.Auth{
		Admin: req.Header.Get(HeaderResellerRequest) == "true",
		Token: req.Header.Get(HeaderAuthToken),
	}

	resp, err := f.Run(d)
	require.NoError(t, err)
	return resp, d.ResponseWriter.(*httptest.ResponseRecorder)
}

func TestUndeleteFilterPassthrough(t *testing.T) {
	t.Parallel()

	forwarder := &fakeForwarder{}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, forwarder, &fakeTrashBackend{})

	// Unroutable paths and object-level non-deletes pass through
	for _, tc := range []struct{ method, path string }{
		{"GET", "/info"},
		{"GET", "/v1/AUTH_a/photos/cat.jpg"},
		{"PUT", "/v1/AUTH_a/photos/cat.jpg"},
		{"HEAD", "/v1/AUTH_a/photos/cat.jpg"},
	} {
		resp, _ := runRequest(t, fx.filter, tc.method, tc.path, nil)
		assert.False(t, resp.IsEnd(), "%s %s should pass through", tc.method, tc.path)
	}
	assert.Zero(t, forwarder.calls, "pass-through requests are forwarded by the server, not the filter")
	assert.Zero(t, fx.backend.copies)
}

func TestUndeleteFilterAccountTranslation(t *testing.T) {
	t.Parallel()

	forwarder := &fakeForwarder{resp: cannedResponse(http.StatusNoContent, map[string]string{
		"X-Account-Sysmeta-Undelete-Enabled": "True",
	}, "")}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, forwarder, &fakeTrashBackend{})

	resp, rec := runRequest(t, fx.filter, "POST", "/v1/AUTH_a", map[string]string{
		HeaderResellerRequest: "true",
		undelete.ClientHeader: "yes",
		HeaderAuthToken:       "tok",
	})

	assert.True(t, resp.IsEnd())
	assert.Equal(t, "True", forwarder.lastReq.Header.Get("X-Account-Sysmeta-Undelete-Enabled"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "True", rec.Header().Get(undelete.ClientHeader))
	require.Len(t, fx.inval.calls, 1)
	assert.Equal(t, [2]string{"AUTH_a", ""}, fx.inval.calls[0])
}

func TestUndeleteFilterNonAdminTranslation(t *testing.T) {
	t.Parallel()

	forwarder := &fakeForwarder{resp: cannedResponse(http.StatusNoContent, map[string]string{
		"X-Container-Sysmeta-Undelete-Enabled": "False",
	}, "")}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, forwarder, &fakeTrashBackend{})

	resp, rec := runRequest(t, fx.filter, "POST", "/v1/AUTH_a/photos", map[string]string{
		undelete.ClientHeader: "yes",
	})

	assert.True(t, resp.IsEnd())
	// The write is dropped but the stored value is still reflected back
	assert.Empty(t, forwarder.lastReq.Header.Get("X-Container-Sysmeta-Undelete-Enabled"))
	assert.Equal(t, "False", rec.Header().Get(undelete.ClientHeader))
	assert.Empty(t, fx.inval.calls)
}

func TestUndeleteFilterStripsClientSysmeta(t *testing.T) {
	t.Parallel()

	forwarder := &fakeForwarder{resp: cannedResponse(http.StatusNoContent, nil, "")}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, forwarder, &fakeTrashBackend{})

	// A raw sysmeta header must not ride a non-admin request into the backend
	resp, _ := runRequest(t, fx.filter, "POST", "/v1/AUTH_a/photos", map[string]string{
		"X-Container-Sysmeta-Undelete-Enabled": "False",
	})

	assert.True(t, resp.IsEnd())
	require.NotNil(t, forwarder.lastReq)
	assert.Empty(t, forwarder.lastReq.Header.Get("X-Container-Sysmeta-Undelete-Enabled"))
	assert.Empty(t, fx.inval.calls)
}

func TestUndeleteFilterDeleteSavesCopy(t *testing.T) {
	t.Parallel()

	backend := &fakeTrashBackend{copyResults: []*storeclient.CopyResult{{StatusCode: http.StatusCreated, Header: http.Header{}}}}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, backend)

	resp, _ := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/photos/cat.jpg", map[string]string{
		HeaderAuthToken: "tok",
	})

	assert.False(t, resp.IsEnd(), "delete proceeds once the copy is confirmed")
	assert.Equal(t, 1, backend.copies)
}

func TestUndeleteFilterBlockedTrashDelete(t *testing.T) {
	t.Parallel()

	cfg := undelete.DefaultConfig()
	cfg.BlockTrashDeletes = true
	fx := newUndeleteFixture(cfg, &fakeMeta{}, &fakeForwarder{}, &fakeTrashBackend{})

	// Blocked even for administrators: the hard block beats privilege
	resp, rec := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/.trash-photos/cat.jpg", map[string]string{
		HeaderResellerRequest: "true",
	})

	assert.True(t, resp.IsEnd())
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "block_trash_deletes is enabled")
	assert.Zero(t, fx.backend.copies)
}

func TestUndeleteFilterForbiddenTrashDelete(t *testing.T) {
	t.Parallel()

	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, &fakeTrashBackend{})

	resp, rec := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/.trash-photos/cat.jpg", nil)

	assert.True(t, resp.IsEnd())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not a superuser")
}

func TestUndeleteFilterAdminTrashDeleteProceeds(t *testing.T) {
	t.Parallel()

	backend := &fakeTrashBackend{}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, backend)

	resp, _ := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/.trash-photos/cat.jpg", map[string]string{
		HeaderResellerRequest: "true",
	})

	assert.False(t, resp.IsEnd(), "admins may empty the trash")
	assert.Zero(t, backend.copies, "trash is never copied back into trash")
}

func TestUndeleteFilterPolicyDisabled(t *testing.T) {
	t.Parallel()

	meta := &fakeMeta{container: map[string]string{undelete.SysmetaKey: "False"}}
	backend := &fakeTrashBackend{}
	fx := newUndeleteFixture(undelete.DefaultConfig(), meta, &fakeForwarder{}, backend)

	resp, _ := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/photos/cat.jpg", nil)

	assert.False(t, resp.IsEnd())
	assert.Zero(t, backend.copies)
}

func TestUndeleteFilterCopyFailureIsTerminal(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("X-Backend-Detail", "disk full")
	h.Set("Content-Type", "application/xml")
	backend := &fakeTrashBackend{copyResults: []*storeclient.CopyResult{{
		StatusCode: http.StatusInsufficientStorage,
		Header:     h,
		Body:       []byte("no space"),
	}}}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, backend)

	resp, rec := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/photos/cat.jpg", nil)

	assert.True(t, resp.IsEnd(), "delete must not proceed without a safety copy")
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.Equal(t, "disk full", rec.Header().Get("X-Backend-Detail"))
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"),
		"upstream failure headers are relayed verbatim")
	assert.Equal(t, "Error copying object to trash:\nno space", rec.Body.String())
}

func TestUndeleteFilterCopyFailureDefaultContentType(t *testing.T) {
	t.Parallel()

	backend := &fakeTrashBackend{copyResults: []*storeclient.CopyResult{{
		StatusCode: http.StatusInsufficientStorage,
		Header:     http.Header{},
		Body:       []byte("no space"),
	}}}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, backend)

	_, rec := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/photos/cat.jpg", nil)

	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"),
		"plain text only when upstream sent no content type")
}

func TestUndeleteFilterTransportErrorIsTerminal(t *testing.T) {
	t.Parallel()

	backend := &fakeTrashBackend{copyErr: errors.New("connection refused")}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, &fakeForwarder{}, backend)

	resp, rec := runRequest(t, fx.filter, "DELETE", "/v1/AUTH_a/photos/cat.jpg", nil)

	assert.True(t, resp.IsEnd())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error copying object to trash:")
}

func TestUndeleteFilterForwardErrorOnTranslation(t *testing.T) {
	t.Parallel()

	forwarder := &fakeForwarder{err: errors.New("connection refused")}
	fx := newUndeleteFixture(undelete.DefaultConfig(), &fakeMeta{}, forwarder, &fakeTrashBackend{})

	resp, rec := runRequest(t, fx.filter, "GET", "/v1/AUTH_a", nil)

	assert.True(t, resp.IsEnd())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
