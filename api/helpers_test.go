package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
	"github.com/warp/tracker/generic"
	"github.com/warp/tracker/generic/store"
)

// testNow is the fixed clock every test handler runs on.
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	mem    *store.Memory
	router http.Handler
}

// newTestServer wires a handler over an in-memory store. A strict store
// refuses queries until their composite index is provisioned.
func newTestServer(t *testing.T, strict bool) *testServer {
	t.Helper()
	mem := store.NewMemory()
	mem.StrictIndexes = strict

	scheduler := NewIndexScheduler(mem)
	scheduler.Logger = log.New(io.Discard)
	h := NewHandler(mem, scheduler)
	h.Scheduler = scheduler
	h.Logger = log.New(io.Discard)
	h.SetClock(func() time.Time { return testNow })

	return &testServer{h: h, mem: mem, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// decode reads a JSON response body into T, failing on unexpected status.
func decode[T any](t *testing.T, rec *httptest.ResponseRecorder, status int) T {
	t.Helper()
	require.Equal(t, status, rec.Code, "body: %s", rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func list[R generic.Record](t *testing.T, rec *httptest.ResponseRecorder) ListResponse[R] {
	t.Helper()
	return decode[ListResponse[R]](t, rec, http.StatusOK)
}
