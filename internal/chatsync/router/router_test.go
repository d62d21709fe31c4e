package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "chat_sync_service/cmd/chat_sync/docs"
	"chat_sync_service/internal/chatsync/app"
	"chat_sync_service/internal/chatsync/debugstore"
	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"
	"chat_sync_service/pkg/token"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, allowReset bool) (*fiber.App, *debugstore.Store) {
	t.Helper()
	logger.SetNewNop()

	store := debugstore.New(true)
	registry := prometheus.NewRegistry()
	registry.MustRegister(debugstore.NewCollector(store))

	r := fiber.New(fiber.Config{JSONEncoder: json.Marshal, JSONDecoder: json.Unmarshal})
	RegisterRoutes(r, app.NewDebugHandler(store, nil, allowReset), registry, nil)
	return r, store
}

func do(t *testing.T, r *fiber.App, method, target string) (int, string) {
	t.Helper()
	resp, err := r.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestRoutes_ConnectCheckAndDebugFlag(t *testing.T) {
	r, _ := newTestApp(t, false)

	code, body := do(t, r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chat sync start!", body)

	code, _ = do(t, r, http.MethodPost, "/debug?status=true")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, logger.Log.DebugMode())

	code, _ = do(t, r, http.MethodPost, "/debug?status=maybe")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRoutes_MetricsAndEvents(t *testing.T) {
	r, store := newTestApp(t, false)
	store.LogEvent(domain.DebugEvent{Type: domain.DebugConnectionEstablished, SocketID: "s1"})
	store.LogEvent(domain.DebugEvent{Type: domain.DebugRoomJoined, RoomName: "channel:a"})
	store.LogEvent(domain.DebugEvent{Type: domain.DebugMessageReceived, ConversationID: "a", PayloadSize: 12})

	code, body := do(t, r, http.MethodGet, "/debug/chat/metrics")
	require.Equal(t, http.StatusOK, code)
	var m domain.Metrics
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	assert.Equal(t, 1, m.ActiveConnections)
	assert.Equal(t, 1, m.JoinedRooms)
	assert.Equal(t, 1, m.MessagesInWindow)

	code, body = do(t, r, http.MethodGet, "/debug/chat/events?limit=2")
	require.Equal(t, http.StatusOK, code)
	var events struct {
		Events []domain.DebugEvent `json:"events"`
		Count  int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &events))
	assert.Equal(t, 2, events.Count)
	assert.Equal(t, domain.DebugMessageReceived, events.Events[0].Type)

	code, _ = do(t, r, http.MethodGet, "/debug/chat/events?limit=-1")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodGet, "/debug/chat/session")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRoutes_Prometheus(t *testing.T) {
	r, store := newTestApp(t, false)
	store.LogEvent(domain.DebugEvent{Type: domain.DebugError, ErrorCode: domain.ErrorCodeJoinDenied})

	code, body := do(t, r, http.MethodGet, "/debug/chat/prometheus")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "chat_sync_debug_active_connections 0")
	assert.Contains(t, body, `chat_sync_debug_error_codes{code="join_denied"} 1`)
}

func TestRoutes_Reset(t *testing.T) {
	r, store := newTestApp(t, false)
	store.LogEvent(domain.DebugEvent{Type: domain.DebugResync})

	code, _ := do(t, r, http.MethodPost, "/debug/chat/reset")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Len(t, store.GetEvents(0), 1)

	r, store = newTestApp(t, true)
	store.LogEvent(domain.DebugEvent{Type: domain.DebugResync})
	code, _ = do(t, r, http.MethodPost, "/debug/chat/reset")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, store.GetEvents(0))
}

func TestRoutes_DebugDisabled(t *testing.T) {
	logger.SetNewNop()
	r := fiber.New()
	RegisterRoutes(r, nil, nil, nil)

	code, _ := do(t, r, http.MethodGet, "/debug/chat/metrics")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, code)
}

func TestRoutes_JWTGuard(t *testing.T) {
	logger.SetNewNop()
	secret := []byte("debug-secret")
	store := debugstore.New(true)
	r := fiber.New()
	RegisterRoutes(r, app.NewDebugHandler(store, nil, true), nil, secret)

	operator, err := token.GenerateJWT(secret, "ops-1", token.RoleOperator, "test", time.Minute)
	require.NoError(t, err)
	admin, err := token.GenerateJWT(secret, "ops-2", token.RoleAdmin, "test", time.Minute)
	require.NoError(t, err)
	forged, err := token.GenerateJWT([]byte("other"), "ops-3", token.RoleAdmin, "test", time.Minute)
	require.NoError(t, err)

	code, _ := do(t, r, http.MethodGet, "/debug/chat/metrics")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, r, http.MethodGet, "/debug/chat/metrics?auth="+forged)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, r, http.MethodGet, "/debug/chat/metrics?auth="+operator)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/debug/chat/events", nil)
	req.Header.Set("Authorization", "Bearer "+operator)
	resp, err := r.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, _ = do(t, r, http.MethodPost, "/debug/chat/reset?auth="+operator)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(t, r, http.MethodPost, "/debug/chat/reset?auth="+admin)
	assert.Equal(t, http.StatusOK, code)

	// log toggle 需要 admin
	logger.Log.SetDebugMode(false)
	code, _ = do(t, r, http.MethodPost, "/debug?status=true")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(t, r, http.MethodPost, "/debug?status=true&auth="+operator)
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, logger.Log.DebugMode())
	code, _ = do(t, r, http.MethodPost, "/debug?status=true&auth="+admin)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, logger.Log.DebugMode())

	// liveness 與 swagger 不需要 token
	code, _ = do(t, r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodGet, "/swagger/doc.json")
	assert.Equal(t, http.StatusOK, code)
}

func TestRoutes_SwaggerDoc(t *testing.T) {
	r, _ := newTestApp(t, false)

	code, body := do(t, r, http.MethodGet, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, code)
	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, "Chat Sync Debug API", doc.Info.Title)
	for _, route := range []string{"/", "/debug", "/debug/chat/metrics", "/debug/chat/events", "/debug/chat/session", "/debug/chat/reset"} {
		assert.Contains(t, doc.Paths, route)
	}
}
