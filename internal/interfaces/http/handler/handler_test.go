package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platformbridge/backend/internal/application/dispatch"
	appintegration "github.com/platformbridge/backend/internal/application/integration"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/config"
	"github.com/platformbridge/backend/internal/infrastructure/discovery"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/infrastructure/persistence"
	"github.com/platformbridge/backend/internal/interfaces/http/dto"
	"github.com/platformbridge/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

type scriptList struct {
	mu      sync.Mutex
	scripts []integration.ScriptManifest
}

func (l *scriptList) ListInstalledScripts(context.Context) ([]integration.ScriptManifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scripts, nil
}

type versionTable map[string]string

func (v versionTable) LoadVersion(fileName string) string { return v[fileName] }

type fixedPort int

func (p fixedPort) LoopbackPort() (int, error) { return int(p), nil }

type chatLog struct {
	mu   sync.Mutex
	sent []integration.SendChatMessageRequest
}

func (c *chatLog) SendChatMessage(_ context.Context, req integration.SendChatMessageRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, req)
	return nil
}

type siblingCall struct {
	Path      string
	Body      string
	RequestID string
}

// sibling fakes the kick integration listening on the loopback port
type sibling struct {
	mu    sync.Mutex
	calls []siblingCall
}

func (s *sibling) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.calls = append(s.calls, siblingCall{Path: r.URL.Path, Body: string(body), RequestID: r.Header.Get("X-Request-ID")})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/integrations/kick/status":
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	case "/integrations/kick/operations/send-chat-message":
		_, _ = io.WriteString(w, `{"success":true}`)
	case "/integrations/kick/operations/get-user-currency":
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"error":"unknown viewer"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *sibling) Calls() []siblingCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]siblingCall(nil), s.calls...)
}

type fixture struct {
	engine  *gin.Engine
	scripts *scriptList
	sibling *sibling
	chat    *chatLog
	startup *appintegration.StartupService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := persistence.NewDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, nil, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	viewers := persistence.NewGormViewerRepository(db.DB)

	sib := &sibling{}
	srv := httptest.NewServer(sib)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	scripts := &scriptList{}
	registry := discovery.NewRegistry(scripts, versionTable{"kick.js": "0.10.5"})
	chat := &chatLog{}
	home := dispatch.NewHomeHandlers(viewers, chat, nil)
	client := httpclient.New(httpclient.WithSleeper(func(time.Duration) {}))
	dispatcher := dispatch.New(registry, client, fixedPort(port), home, dispatch.WithHost("127.0.0.1"))
	startup := appintegration.NewStartupService(registry, nil)

	engine := gin.New()
	engine.Use(middleware.RequestID())

	system := NewSystemHandler("Platform Bridge", "1.2.3", viewers)
	integrations := NewIntegrationHandler(startup, dispatcher)
	dispatchHandler := NewDispatchHandler(dispatcher)
	loopback := NewLoopbackHandler(dispatcher, home)

	api := engine.Group("/api/v1")
	api.GET("/system/info", system.GetSystemInfo)
	api.GET("/system/ping", system.Ping)
	api.GET("/integrations", integrations.List)
	api.POST("/integrations/scan", integrations.Scan)
	api.GET("/integrations/:platform/status", integrations.Status)
	api.POST("/dispatch/:platform/:operation", dispatchHandler.Dispatch)
	api.POST("/broadcast/:operation", dispatchHandler.Broadcast)
	engine.POST("/integrations/:routingId/operations/:operation", loopback.Operation)
	engine.GET("/integrations/:routingId/status", loopback.Status)

	return &fixture{engine: engine, scripts: scripts, sibling: sib, chat: chat, startup: startup}
}

// installKick makes the kick sibling visible to the next scan
func (f *fixture) installKick(t *testing.T) {
	t.Helper()
	f.scripts.mu.Lock()
	f.scripts.scripts = []integration.ScriptManifest{{Name: "Kick Integration", FileName: "kick.js"}}
	f.scripts.mu.Unlock()
	w := f.do(http.MethodPost, "/api/v1/integrations/scan", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestSystemHandler(t *testing.T) {
	f := newFixture(t)

	t.Run("info", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/system/info", "")
		require.Equal(t, http.StatusOK, w.Code)

		var info SystemInfoResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &info))
		assert.Equal(t, "Platform Bridge", info.Name)
		assert.Equal(t, "1.2.3", info.Version)
		assert.Equal(t, "twitch", info.HomePlatform)
		assert.NotEmpty(t, info.GoVersion)
		require.NotNil(t, info.Viewers)
		assert.Zero(t, *info.Viewers)
	})

	t.Run("ping", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/system/ping", "")
		require.Equal(t, http.StatusOK, w.Code)

		var ping PingResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &ping))
		assert.Equal(t, "pong", ping.Message)
	})
}

func TestDispatchHandler_Home(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/dispatch/twitch/adjust-user-currency",
		`{"username":"Alice","currencyId":"points","amount":25}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp integration.UserCurrencyResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, int64(25), resp.Amount)

	w = f.do(http.MethodPost, "/api/v1/dispatch/TWITCH/get-user-currency", `{"username":"alice","currencyId":"points"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.Equal(t, int64(25), resp.Amount)

	assert.Empty(t, f.sibling.Calls())
}

func TestDispatchHandler_NotInstalled(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/dispatch/kick/send-chat-message", `{"message":"hi"}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, dto.ErrCodeNotInstalled, env.Error.Code)
	assert.Equal(t, "req-123", env.Error.RequestID)
	assert.Empty(t, f.sibling.Calls())
}

func TestDispatchHandler_Remote(t *testing.T) {
	f := newFixture(t)
	f.installKick(t)

	w := f.do(http.MethodPost, "/api/v1/dispatch/kick/send-chat-message", `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp integration.SendChatMessageResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.True(t, resp.Success)

	calls := f.sibling.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/integrations/kick/operations/send-chat-message", calls[0].Path)
	assert.JSONEq(t, `{"message":"hi"}`, calls[0].Body)
	assert.Equal(t, "req-123", calls[0].RequestID)
}

func TestDispatchHandler_RemoteRejected(t *testing.T) {
	f := newFixture(t)
	f.installKick(t)

	w := f.do(http.MethodPost, "/api/v1/dispatch/kick/get-user-currency", `{"username":"bob","currencyId":"x"}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, dto.ErrCodeUpstreamRejected, decodeEnvelope(t, w).Error.Code)
	assert.Len(t, f.sibling.Calls(), 1)
}

func TestDispatchHandler_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unsupported operation", "/api/v1/dispatch/twitch/ban-user", `{}`, http.StatusBadRequest, dto.ErrCodeUnsupportedOperation},
		{"malformed body", "/api/v1/dispatch/twitch/send-chat-message", `{"message":`, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"blank platform", "/api/v1/dispatch/%20/send-chat-message", `{}`, http.StatusBadRequest, dto.ErrCodeInvalidPlatform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, w).Error.Code)
		})
	}
}

func TestDispatchHandler_HomeFailureIsStructured(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/dispatch/twitch/get-user-metadata", `{"username":"ghost","key":"k"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp integration.UserMetadataResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestDispatchHandler_Broadcast(t *testing.T) {
	f := newFixture(t)
	f.installKick(t)

	t.Run("defaults to available platforms", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/broadcast/send-chat-message", `{"payload":{"message":"hello all"}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var results []dto.BroadcastResult
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &results))
		require.Len(t, results, 2)
		assert.Equal(t, "twitch", results[0].Platform)
		assert.Equal(t, "kick", results[1].Platform)
		assert.True(t, results[0].Success)
		assert.True(t, results[1].Success)

		f.chat.mu.Lock()
		defer f.chat.mu.Unlock()
		require.Len(t, f.chat.sent, 1)
		assert.Equal(t, "hello all", f.chat.sent[0].Message)
	})

	t.Run("reports per platform failures", func(t *testing.T) {
		w := f.do(http.MethodPost, "/api/v1/broadcast/send-chat-message",
			`{"platforms":["youtube","kick"],"payload":{"message":"x"}}`)
		require.Equal(t, http.StatusOK, w.Code)

		var results []dto.BroadcastResult
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &results))
		require.Len(t, results, 2)
		assert.False(t, results[0].Success)
		assert.Equal(t, dto.ErrCodeNotInstalled, results[0].Error.Code)
		assert.True(t, results[1].Success)
	})
}

func TestIntegrationHandler(t *testing.T) {
	f := newFixture(t)

	t.Run("list before scan has home only", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/integrations", "")
		require.Equal(t, http.StatusOK, w.Code)

		var report appintegration.StartupReport
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &report))
		require.Len(t, report.Platforms, 1)
		assert.True(t, report.Platforms[0].Home)
	})

	t.Run("status of undetected platform", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/integrations/kick/status", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotInstalled, decodeEnvelope(t, w).Error.Code)
	})

	f.installKick(t)

	t.Run("list after scan", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/integrations", "")
		var report appintegration.StartupReport
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &report))
		require.Len(t, report.Platforms, 2)
		assert.Equal(t, integration.PlatformKick, report.Platforms[1].Platform)
		assert.True(t, report.Platforms[1].Compatible)
		assert.Empty(t, report.CompatibilityWarnings)
	})

	t.Run("status probes the sibling", func(t *testing.T) {
		w := f.do(http.MethodGet, "/api/v1/integrations/kick/status", "")
		require.Equal(t, http.StatusOK, w.Code)

		var probe dispatch.ProbeResult
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &probe))
		assert.True(t, probe.Detected)
		assert.True(t, probe.Reachable)
		assert.Equal(t, http.StatusOK, probe.StatusCode)
		assert.JSONEq(t, `{"status":"ok"}`, string(probe.Body))
	})
}

func TestLoopbackHandler(t *testing.T) {
	f := newFixture(t)

	t.Run("serves home operations with bare payloads", func(t *testing.T) {
		w := f.do(http.MethodPost, "/integrations/twitch/operations/adjust-user-currency",
			`{"username":"carol","currencyId":"gems","amount":7,"mode":"set"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"amount":7}`, w.Body.String())
	})

	t.Run("unknown routing id", func(t *testing.T) {
		w := f.do(http.MethodPost, "/integrations/kick/operations/send-chat-message", `{"message":"x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unsupported operation", func(t *testing.T) {
		w := f.do(http.MethodPost, "/integrations/twitch/operations/ban-user", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var result integration.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "ban-user")
	})

	t.Run("status", func(t *testing.T) {
		w := f.do(http.MethodGet, "/integrations/twitch/status", "")
		require.Equal(t, http.StatusOK, w.Code)

		var status LoopbackStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, "ok", status.Status)
		assert.Equal(t, integration.HomePlatform, status.Platform)
		assert.Len(t, status.Operations, len(integration.AllOperationKinds()))
	})
}
