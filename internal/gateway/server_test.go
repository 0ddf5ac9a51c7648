package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convwin/internal/config"
	"convwin/internal/conversation"
	"convwin/internal/gateway/handlers"
	"convwin/internal/gateway/websocket"
	"convwin/internal/storage"
	"convwin/internal/summarizer"
	"convwin/internal/window"
	"convwin/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: time.Second,
			RateLimit: config.RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				Burst:             50,
				CleanupInterval:   time.Minute,
			},
		},
	}
}

type testEnv struct {
	server *Server
	db     *storage.DB
	hub    *websocket.Hub
}

func newTestEnv(t *testing.T, withDB bool) *testEnv {
	t.Helper()

	env := &testEnv{hub: websocket.NewHub()}
	var next window.Journal
	if withDB {
		db, err := storage.Open(filepath.Join(t.TempDir(), "summaries.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		env.db = db
		next = db
	}

	manager := window.New(
		window.Config{MaxWindow: 6, MinimumBatch: 2},
		summarizer.Static{},
		window.WithLogger(logger.Nop()),
		window.WithJournal(NewEventJournal(next, env.hub)),
	)
	env.server = NewServer(testConfig(), Options{
		Manager: manager,
		Hub:     env.hub,
		DB:      env.db,
		Version: "v0.0.0-test",
	})
	t.Cleanup(func() { env.server.rateLimiter.Stop() })
	return env
}

func thread(id string, n int) conversation.ThreadState {
	state := conversation.ThreadState{Metadata: conversation.ThreadMetadata{ThreadID: id}}
	for i := 0; i < n; i++ {
		state.Messages = append(state.Messages, conversation.Message{
			Role:    conversation.RoleUser,
			Content: fmt.Sprintf("msg %d", i),
		})
	}
	return state
}

func TestServerHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		withDB     bool
		wantChecks map[string]string
	}{
		{"without storage", false, nil},
		{"with storage", true, map[string]string{"storage": "ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.withDB)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			w := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			var resp handlers.HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "ok", resp.Status)
			assert.Equal(t, "v0.0.0-test", resp.Version)
			assert.Equal(t, tt.wantChecks, resp.Checks)
		})
	}
}

func TestServerHealthExtraChecks(t *testing.T) {
	manager := window.New(window.Config{MaxWindow: 6}, summarizer.Static{}, window.WithLogger(logger.Nop()))
	srv := NewServer(testConfig(), Options{
		Manager: manager,
		Checks: map[string]handlers.HealthCheck{
			"ollama": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	t.Cleanup(srv.rateLimiter.Stop)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"ollama": "connection refused"}, resp.Checks)
}

func TestServerSummarizeJournalsRecord(t *testing.T) {
	env := newTestEnv(t, true)

	body, err := json.Marshal(thread("t-1", 9))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/window/summarize", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5000"
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "600", w.Header().Get("X-RateLimit-Limit"))

	var resp handlers.SummarizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.State.Messages, 6)
	assert.Contains(t, resp.State.Messages[0].Content, "user message")

	n, err := env.db.CountSummaries(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServerUnknownRoute(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), handlers.ErrCodeNotFound)
}

func TestServerApplyWindowConfig(t *testing.T) {
	env := newTestEnv(t, false)

	env.server.ApplyWindowConfig(window.Config{MaxWindow: 30, MinimumBatch: 4})

	cfg := env.server.Manager().Config()
	assert.Equal(t, 30, cfg.MaxWindow)
	assert.Equal(t, 4, cfg.MinimumBatch)
	assert.Equal(t, window.DefaultSeparator, cfg.Separator)
}

func TestServerServeAndShutdown(t *testing.T) {
	env := newTestEnv(t, false)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Serve(ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/v1/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	// Subscribe over the event stream, then trigger a cycle for that thread.
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(websocket.WSMessage{Type: websocket.TypeSubscribe, Thread: "live"}))
	require.Eventually(t, func() bool { return env.hub.SubscriberCount("live") == 1 }, 2*time.Second, 10*time.Millisecond)

	body, err := json.Marshal(thread("live", 10))
	require.NoError(t, err)
	resp, err := http.Post(base+"/api/v1/window/summarize", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event websocket.WSMessage
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, websocket.TypeSummary, event.Type)
	assert.Equal(t, "live", event.Thread)

	var rec conversation.SummaryRecord
	require.NoError(t, json.Unmarshal(event.Data, &rec))
	assert.Equal(t, 1, rec.Sequence)
	assert.Equal(t, 10, rec.WindowBefore)

	require.NoError(t, env.server.Shutdown(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

type failingJournal struct{}

func (failingJournal) AppendSummary(context.Context, *conversation.SummaryRecord) error {
	return errors.New("disk full")
}

func TestEventJournal(t *testing.T) {
	t.Run("publishes after persisting", func(t *testing.T) {
		hub := websocket.NewHub()
		j := NewEventJournal(nil, hub)

		require.NoError(t, j.AppendSummary(context.Background(), &conversation.SummaryRecord{ThreadID: "t"}))
	})

	t.Run("skips publish on failure", func(t *testing.T) {
		hub := websocket.NewHub()
		j := NewEventJournal(failingJournal{}, hub)

		err := j.AppendSummary(context.Background(), &conversation.SummaryRecord{ThreadID: "t"})
		assert.EqualError(t, err, "disk full")
	})

	t.Run("nil hub", func(t *testing.T) {
		j := NewEventJournal(nil, nil)
		assert.NoError(t, j.AppendSummary(context.Background(), &conversation.SummaryRecord{ThreadID: "t"}))
	})
}
