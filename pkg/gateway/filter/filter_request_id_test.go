package filter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rcontext "github.com/trashgate/trashgate/pkg/context"
	"github.com/trashgate/trashgate/pkg/gateway/data"
)

func TestRequestIDFilterAssignsID(t *testing.T) {
	t.Parallel()

	f := NewRequestIDFilter()

	req := httptest.NewRequest(http.MethodGet, "http://gateway/v1/AUTH_a", nil)
	d := data.NewData(context.Background(), req)

	resp, err := f.Run(d)
	require.NoError(t, err)
	assert.False(t, resp.IsEnd())

	id := req.Header.Get(HeaderRequestID)
	assert.NotEmpty(t, id)

	ctxID, ok := rcontext.UUID(d.Ctx)
	require.True(t, ok)
	assert.Equal(t, id, ctxID)

	// Each request gets a distinct id
	req2 := httptest.NewRequest(http.MethodGet, "http://gateway/v1/AUTH_a", nil)
	d2 := data.NewData(context.Background(), req2)
	_, err = f.Run(d2)
	require.NoError(t, err)
	assert.NotEqual(t, id, req2.Header.Get(HeaderRequestID))
}

func TestRequestIDFilterKeepsExistingID(t *testing.T) {
	t.Parallel()

	f := NewRequestIDFilter()

	req := httptest.NewRequest(http.MethodGet, "http://gateway/v1/AUTH_a", nil)
	req.Header.Set(HeaderRequestID, "tx-upstream-1")
	d := data.NewData(context.Background(), req)

	_, err := f.Run(d)
	require.NoError(t, err)
	assert.Equal(t, "tx-upstream-1", req.Header.Get(HeaderRequestID))
}
