package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/opd-ai/vpe/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVideo struct {
	mu        sync.Mutex
	enabled   bool
	enableErr error
	stats     engine.Stats
	statsErr  error
}

func (f *fakeVideo) Feature() string { return "aihdr" }

func (f *fakeVideo) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeVideo) Enable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = true
	return nil
}

func (f *fakeVideo) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	return nil
}

func (f *fakeVideo) Stats() (engine.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.stats
	st.Enabled = f.enabled
	return st, f.statsErr
}

func newTestServer(t *testing.T, video Controller) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(RouterConfig{Video: video, AllowedOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatsEndpoint(t *testing.T) {
	video := &fakeVideo{
		enabled: true,
		stats: engine.Stats{
			State:         engine.StateRunning,
			Processed:     7,
			Bypassed:      2,
			RenderPending: 1,
		},
	}
	srv := newTestServer(t, video)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "aihdr", body.Feature)
	assert.Equal(t, engine.StateRunning.String(), body.State)
	assert.True(t, body.Enabled)
	assert.Equal(t, uint64(7), body.Engine.Processed)
	assert.Equal(t, uint64(2), body.Engine.Bypassed)
	assert.Equal(t, 1, body.Engine.RenderPending)
}

func TestStatsEndpointReleasedVideo(t *testing.T) {
	srv := newTestServer(t, &fakeVideo{statsErr: engine.ErrInvalidOperation})

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestToggleEndpoints(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		enableErr   error
		wantStatus  int
		wantEnabled bool
	}{
		{name: "enable", path: "/enable", wantStatus: http.StatusOK, wantEnabled: true},
		{name: "disable", path: "/disable", wantStatus: http.StatusOK, wantEnabled: false},
		{name: "enable rejected", path: "/enable", enableErr: errors.New("busy"), wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video := &fakeVideo{enabled: !tt.wantEnabled, enableErr: tt.enableErr}
			srv := newTestServer(t, video)

			resp, err := http.Post(srv.URL+tt.path, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantEnabled, video.IsEnabled())
			}
		})
	}
}

func TestToggleRequiresPost(t *testing.T) {
	srv := newTestServer(t, &fakeVideo{})

	resp, err := http.Get(srv.URL + "/enable")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeVideo{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeVideo{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
