package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httpAdapter "github.com/aretw0/sqlsession/internal/adapters/http"
	"github.com/aretw0/sqlsession/pkg/adapters/memory"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/aretw0/sqlsession/pkg/observability"
	"github.com/aretw0/sqlsession/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, opts ...session.Option) (*httptest.Server, *memory.Table) {
	t.Helper()
	table := memory.NewTable()
	opts = append([]session.Option{session.WithGCProbability(0, 1)}, opts...)
	p, err := session.NewProvider(table, opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(httpAdapter.NewHandler(p))
	t.Cleanup(srv.Close)
	return srv, table
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestGetHealth(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetInfo(t *testing.T) {
	srv, _ := newServer(t, session.WithLocking(session.Advisory()))

	resp := do(t, http.MethodGet, srv.URL+"/info", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sqlsession-http", body["app"])
	assert.NotEmpty(t, body["version"])
	assert.Equal(t, domain.StrategyAdvisory, body["strategy"])
}

func TestSessionCRUD(t *testing.T) {
	srv, table := newServer(t)
	url := srv.URL + "/sessions/abc"

	resp := do(t, http.MethodGet, url, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPut, url, "hello")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, url+"/append", " world")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello world", readBody(t, resp))

	resp = do(t, http.MethodDelete, url, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, table.Len())
}

func TestConcurrentAppendsSerialize(t *testing.T) {
	for _, locking := range []session.Locking{session.Transactional(), session.Advisory()} {
		t.Run(locking.Name(), func(t *testing.T) {
			srv, table := newServer(t, session.WithLocking(locking))
			url := srv.URL + "/sessions/shared/append"

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader("x"))
					resp, err := http.DefaultClient.Do(req)
					if assert.NoError(t, err) {
						assert.Equal(t, http.StatusOK, resp.StatusCode)
						resp.Body.Close()
					}
				}()
			}
			wg.Wait()

			rec, ok := table.Get("shared")
			require.True(t, ok)
			assert.Equal(t, strings.Repeat("x", 8), string(rec.Data), "No append may be lost")
		})
	}
}

func TestLockTimeoutIsUnavailable(t *testing.T) {
	srv, table := newServer(t, session.WithLocking(session.Advisory(session.WithLockWait(20*time.Millisecond))))
	ctx := context.Background()

	holder, err := table.Conn(ctx)
	require.NoError(t, err)
	defer holder.Close()
	_, err = holder.Lock(ctx, "busy", time.Second)
	require.NoError(t, err)

	resp := do(t, http.MethodPut, srv.URL+"/sessions/busy", "v")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestCollectSweepsExpired(t *testing.T) {
	srv, table := newServer(t)
	table.Put(domain.Record{ID: "old", Expiry: 1})
	table.Put(domain.Record{ID: "live", Expiry: time.Now().Add(time.Hour).Unix()})

	resp := do(t, http.MethodPost, srv.URL+"/gc", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"live"}, table.IDs())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	p, err := session.NewProvider(memory.NewTable(), session.WithHooks(m.Hooks()), session.WithGCProbability(0, 1))
	require.NoError(t, err)
	srv := httptest.NewServer(httpAdapter.NewHandler(p, httpAdapter.WithMetrics(reg)))
	defer srv.Close()

	resp := do(t, http.MethodPut, srv.URL+"/sessions/m", "v")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `sqlsession_writes_total{strategy="transactional"} 1`)
}
