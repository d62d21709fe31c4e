package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/database"
	testtool "chat_sync_service/pkg/test_tool"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRoomChannel(t *testing.T) {
	assert.Equal(t, "chat:room:channel:42", RoomChannel(domain.Channel("42").RoomName()))
	assert.Equal(t, "chat:room:dm:7", RoomChannel(domain.DM("7").RoomName()))
}

func TestRedisConnection_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	c := NewRedisConnection(client, 50*time.Millisecond)
	log := &statusLog{}
	c.SubscribeStatus(log.add)

	require.NoError(t, c.Connect(context.Background()))
	time.Sleep(150 * time.Millisecond)

	assert.False(t, c.connected())
	assert.Empty(t, log.all())
	assert.ErrorIs(t, c.JoinRoom(context.Background(), "channel:a"), domain.ErrNotConnected)
	assert.ErrorIs(t, c.LeaveRoom(context.Background(), "channel:a"), domain.ErrNotConnected)

	_ = c.Disconnect()
	assert.Empty(t, log.all())
	assert.NoError(t, c.Disconnect())
}

// 需要 docker, CHATSYNC_INTEGRATION=1 才執行
func TestRedisConnection_Integration(t *testing.T) {
	if os.Getenv("CHATSYNC_INTEGRATION") != "1" {
		t.Skip("set CHATSYNC_INTEGRATION=1 to run redis integration test")
	}
	ctx := context.Background()

	container, host, port, err := testtool.SetupContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	client, err := database.NewRedisClient(ctx, database.RedisConnection{
		Addr:          fmt.Sprintf("%s:%s", host, port),
		RetryCount:    5,
		RetryInterval: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisConnection(client, 100*time.Millisecond)
	log := &statusLog{}
	c.SubscribeStatus(log.add)
	got := make(chan domain.RawEvent, 4)
	c.Subscribe(domain.EventNewMessage, func(raw domain.RawEvent) { got <- raw })

	require.NoError(t, c.Connect(ctx))
	require.Eventually(t, c.connected, 5*time.Second, 20*time.Millisecond)
	assert.NotEmpty(t, c.SocketID())

	room := domain.Channel("a").RoomName()
	require.NoError(t, c.JoinRoom(ctx, room))

	ev := domain.NewMessage{
		Ref:     domain.Channel("a"),
		Message: domain.Message{ID: "m1", Ref: domain.Channel("a"), AuthorID: "u2", Body: "hi", CreatedAt: time.Now().UTC()},
	}
	// 訂閱生效需要一點時間, 重發直到收到
	require.Eventually(t, func() bool {
		require.NoError(t, c.Emit(ctx, ev.Name(), ev))
		select {
		case raw := <-got:
			decoded, err := DecodeInbound(raw)
			return err == nil && decoded.(domain.NewMessage).Message.ID == "m1"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, c.LeaveRoom(ctx, room))
	require.NoError(t, c.Disconnect())
	assert.Equal(t, []bool{true, false}, log.all())
}
