package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/frances-ha/egm722/internal/pipeline"
	"github.com/frances-ha/egm722/internal/render"
	"github.com/frances-ha/egm722/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	counties, wards := testutil.TwoCounties(t, dir, testutil.Geographic)
	return New(Config{
		Pipeline: pipeline.Config{
			CountiesPath: counties,
			WardsPath:    wards,
			MapPath:      filepath.Join(dir, "map.png"),
			Map:          render.Options{DPI: 10},
		},
		Port:   -1,
		Logger: testutil.NewTestLogger(t),
	})
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHandler_BeforeFirstRun(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, path := range []string{"/map.png", "/summary.json", "/fragments.geojson", "/healthz"} {
		resp, _ := get(t, ts.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/map.png")
}

func TestHandler_ServesSnapshot(t *testing.T) {
	s := newTestServer(t)
	var runs int
	s.cfg.OnRun = func(res *pipeline.Result, err error) {
		runs++
		assert.NoError(t, err)
		assert.NotNil(t, res)
	}
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, runs)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		path        string
		contentType string
		check       func(t *testing.T, body []byte)
	}{
		{
			path:        "/map.png",
			contentType: "image/png",
			check: func(t *testing.T, body []byte) {
				assert.True(t, strings.HasPrefix(string(body), "\x89PNG"))
			},
		},
		{
			path:        "/summary.json",
			contentType: "application/json",
			check: func(t *testing.T, body []byte) {
				var sum Summary
				require.NoError(t, json.Unmarshal(body, &sum))
				assert.Equal(t, "EPSG:32629", sum.CRS)
				assert.Equal(t, 4, sum.JoinRows)
				require.Len(t, sum.Counties, 2)
				assert.Equal(t, "ANTRIM", sum.Counties[0].County)
				assert.Equal(t, 4000.0, sum.Counties[0].Population)
				assert.Equal(t, 2, sum.Counties[0].Fragments)
				require.Len(t, sum.Straddlers, 1)
				assert.Equal(t, []string{"ANTRIM", "DOWN"}, sum.Straddlers[0].Counties)
				assert.Positive(t, sum.ClipTotal)
			},
		},
		{
			path:        "/fragments.geojson",
			contentType: "application/geo+json",
			check: func(t *testing.T, body []byte) {
				var fc struct {
					Type     string           `json:"type"`
					Features []map[string]any `json:"features"`
				}
				require.NoError(t, json.Unmarshal(body, &fc))
				assert.Equal(t, "FeatureCollection", fc.Type)
				assert.Len(t, fc.Features, 4)
			},
		},
		{
			path:        "/healthz",
			contentType: "text/plain",
			check: func(t *testing.T, body []byte) {
				assert.True(t, strings.HasPrefix(string(body), "ok "))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, ts.URL+tt.path)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
			tt.check(t, body)
		})
	}
}

func TestRefresh_FailureKeepsSnapshot(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.Refresh(context.Background()))

	s.cfg.Pipeline.WardsPath = filepath.Join(t.TempDir(), "missing.shp")
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "load wards")

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, _ := get(t, ts.URL+"/map.png")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "load wards")
}

func TestRefresh_RequiresMapPath(t *testing.T) {
	s := New(Config{})
	assert.ErrorContains(t, s.Refresh(context.Background()), "map output path")
}

func TestEvents_StreamsRefresh(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return s.Notifier().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Notifier().Broadcast()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: refresh\n", line)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != nil }, 30*time.Second, 20*time.Millisecond)

	resp, _ := get(t, "http://"+s.Addr().String()+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	a, b := n.Subscribe(), n.Subscribe()
	assert.Equal(t, 2, n.Len())

	// A second broadcast while a ping is pending must not block.
	n.Broadcast()
	n.Broadcast()
	for _, ch := range []chan struct{}{a, b} {
		select {
		case <-ch:
		default:
			t.Fatal("expected a ping")
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Broadcast()
		}()
	}
	wg.Wait()

	n.Unsubscribe(a)
	n.Unsubscribe(b)
	assert.Zero(t, n.Len())
	for range a {
	}
}
