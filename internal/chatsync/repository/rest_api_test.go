package repository

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chat_sync_service/internal/chatsync/domain"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

type callLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *callLog) add(c recorded) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *callLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.calls...)
}

func newAPIServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*RestAPI, *callLog) {
	t.Helper()
	log := &callLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		log.add(recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(b)})
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewRestAPI(srv.URL, "secret", 2*time.Second), log
}

func TestRestAPI_ListConversations(t *testing.T) {
	api, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"type":"channel","id":"c1","title":"general","lastMessageId":"m9","lastActivity":"2024-03-01T10:00:00Z","unread":2},
			{"type":"group","id":"g1","title":"broken"},
			{"type":"dm","id":"d1","title":"bob"}
		]`))
	})

	list, err := api.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.Channel("c1"), list[0].Ref)
	assert.Equal(t, "m9", list[0].LastMessageID)
	assert.Equal(t, 2, list[0].Unread)
	assert.Equal(t, domain.DM("d1"), list[1].Ref)

	got := calls.all()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/chat/conversations", got[0].path)
	assert.Equal(t, "Bearer secret", got[0].auth)
}

func TestRestAPI_FetchMessages(t *testing.T) {
	api, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"m1","dmThreadId":"d1","authorId":"u2","body":"yo","createdAt":"2024-03-01T10:00:00Z"}]`))
	})

	msgs, err := api.FetchMessages(context.Background(), domain.DM("d1"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, domain.DM("d1"), msgs[0].Ref)
	assert.Equal(t, "/api/chat/dm/d1/messages", calls.all()[0].path)

	_, err = api.FetchMessages(context.Background(), domain.Channel("c1"))
	assert.ErrorIs(t, err, domain.ErrInvalidConversationRef)
}

func TestRestAPI_PersistMessage(t *testing.T) {
	api, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1","channelId":"c1","authorId":"u1","body":"hello","createdAt":"2024-03-01T10:00:01Z"}`))
	})

	m, err := api.PersistMessage(context.Background(), domain.Channel("c1"), domain.Draft{TempID: "t1", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, "hello", m.Body)

	call := calls.all()[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/chat/channel/c1/messages", call.path)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(call.body), &sent))
	assert.Equal(t, "t1", sent["clientId"])
	assert.Equal(t, "hello", sent["body"])
}

func TestRestAPI_PassThroughPaths(t *testing.T) {
	api, calls := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			_, _ = w.Write([]byte(`{"id":"m1","channelId":"c1","authorId":"u1","body":"fixed","createdAt":"2024-03-01T10:00:00Z","editedAt":"2024-03-01T10:05:00Z"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	ref := domain.Channel("c1")

	m, err := api.EditMessage(ctx, ref, "m1", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", m.Body)
	require.NotNil(t, m.EditedAt)

	require.NoError(t, api.DeleteMessage(ctx, ref, "m1"))
	require.NoError(t, api.MarkRead(ctx, ref, "m1"))
	require.NoError(t, api.AddMember(ctx, ref, "u7"))
	require.NoError(t, api.RemoveMember(ctx, ref, "u7"))

	want := []struct{ method, path string }{
		{http.MethodPatch, "/api/chat/channel/c1/messages/m1"},
		{http.MethodDelete, "/api/chat/channel/c1/messages/m1"},
		{http.MethodPost, "/api/chat/channel/c1/read"},
		{http.MethodPost, "/api/chat/channel/c1/members"},
		{http.MethodDelete, "/api/chat/channel/c1/members/u7"},
	}
	got := calls.all()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.method, got[i].method)
		assert.Equal(t, w.path, got[i].path)
	}
	assert.JSONEq(t, `{"messageId":"m1"}`, got[2].body)
	assert.JSONEq(t, `{"userId":"u7"}`, got[3].body)
}

func TestRestAPI_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		target error
	}{
		{http.StatusForbidden, domain.ErrAccessDenied},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			api, _ := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})
			_, err := api.PersistMessage(context.Background(), domain.Channel("c1"), domain.Draft{TempID: "t1", Body: "x"})
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			} else {
				assert.Contains(t, err.Error(), "status 500")
			}
		})
	}
}

func TestRestAPI_TransportError(t *testing.T) {
	api := NewRestAPI("http://127.0.0.1:1", "", 200*time.Millisecond)
	err := api.MarkRead(context.Background(), domain.Channel("c1"), "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark read channel:c1")
}
