package ops

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/labsage/internal/logger"
	_ "github.com/edgard/labsage/internal/metrics" // registers collectors
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRouter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pingErr  error
		path     string
		wantCode int
		wantBody string
	}{
		{"health", nil, "/healthz", http.StatusOK, `"healthy"`},
		{"health ignores db", errors.New("down"), "/healthz", http.StatusOK, `"healthy"`},
		{"ready", nil, "/readyz", http.StatusOK, `"ready"`},
		{"not ready", errors.New("down"), "/readyz", http.StatusServiceUnavailable, `"database unreachable"`},
		{"metrics", nil, "/metrics", http.StatusOK, "labsage_stale_requests"},
		{"unknown", nil, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := NewRouter(fakePinger{err: tt.pingErr}, logger.Discard())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestServerShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), NewRouter(fakePinger{}, logger.Discard()), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "healthy")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
