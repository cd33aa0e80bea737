package mullvad

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	etag     string
	body     string
	status   int
	delay    time.Duration
	requests atomic.Int32
	lastINM  atomic.Value
	lastUA   atomic.Value
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/app/v1/relays", func(w http.ResponseWriter, req *http.Request) {
		f.requests.Add(1)
		f.lastINM.Store(req.Header.Get("If-None-Match"))
		f.lastUA.Store(req.Header.Get("User-Agent"))
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if f.etag != "" && req.Header.Get("If-None-Match") == f.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if f.etag != "" {
			w.Header().Set("ETag", f.etag)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.body))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOK(t *testing.T) {
	api := &fakeAPI{etag: `"xyz"`, body: sampleBody}
	srv := api.server(t)

	c := NewClient(srv.URL+"/app/v1/relays", time.Second, WithUserAgent("mlvd/test"))
	res, err := c.Fetch(context.Background(), "")
	require.NoError(t, err)

	assert.False(t, res.NotModified)
	assert.Equal(t, `"xyz"`, res.ETag)
	assert.JSONEq(t, sampleBody, string(res.Body))
	assert.Equal(t, "", api.lastINM.Load())
	assert.Equal(t, "mlvd/test", api.lastUA.Load())
}

func TestFetchNotModified(t *testing.T) {
	api := &fakeAPI{etag: `"abc"`, body: sampleBody}
	srv := api.server(t)

	c := NewClient(srv.URL+"/app/v1/relays", time.Second)
	res, err := c.Fetch(context.Background(), `"abc"`)
	require.NoError(t, err)

	assert.True(t, res.NotModified)
	assert.Empty(t, res.Body)
	assert.Equal(t, `"abc"`, api.lastINM.Load())
}

func TestFetchWithoutETag(t *testing.T) {
	api := &fakeAPI{body: sampleBody}
	srv := api.server(t)

	res, err := NewClient(srv.URL+"/app/v1/relays", time.Second).Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "", res.ETag)
	assert.NotEmpty(t, res.Body)
}

func TestFetchUnexpectedStatus(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusNotFound, http.StatusNoContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			api := &fakeAPI{status: status}
			srv := api.server(t)

			_, err := NewClient(srv.URL+"/app/v1/relays", time.Second).Fetch(context.Background(), "")
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, status, se.StatusCode)
		})
	}
}

func TestFetchUnknownRoute(t *testing.T) {
	api := &fakeAPI{body: sampleBody}
	srv := api.server(t)

	_, err := NewClient(srv.URL+"/nope", time.Second).Fetch(context.Background(), "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestFetchTimeout(t *testing.T) {
	api := &fakeAPI{body: sampleBody, delay: 300 * time.Millisecond}
	srv := api.server(t)

	_, err := NewClient(srv.URL+"/app/v1/relays", 50*time.Millisecond).Fetch(context.Background(), "")
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
	assert.Equal(t, int32(1), api.requests.Load(), "no retry")
}
