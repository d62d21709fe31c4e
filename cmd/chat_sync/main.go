package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "chat_sync_service/cmd/chat_sync/docs" // 引入 Swagger 文档
	"chat_sync_service/internal/chatsync/app"
	"chat_sync_service/internal/chatsync/debugstore"
	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/internal/chatsync/repository"
	"chat_sync_service/internal/chatsync/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	env := config.Env()
	logger.Log = logger.Initialize(env.ChatSync, env.ChatSyncLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.Sync](env.ChatSync, env.ChatSyncYAMLPath, config.SyncDefaults())
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. debug event store, 關閉時 session 用 nop sink
	var (
		sink  domain.DebugSink = domain.NopDebugSink{}
		store *debugstore.Store
	)
	if cfg.Debug.Enabled {
		store = debugstore.New(true,
			debugstore.WithCapacity(cfg.Debug.Capacity),
			debugstore.WithWindow(cfg.Debug.Window))
		sink = store
		logger.Log.Info("debug store enabled", zap.Int("capacity", store.Capacity()), zap.Duration("window", cfg.Debug.Window))
	}

	// 2. 建立 REST / realtime 連線
	api := repository.NewRestAPI(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout)
	port, closePort := newConnectionPort(ctx, cfg)
	defer closePort()

	// 3. 初始化 Session
	session := app.NewSession(port, api, sink, hooks(), app.SessionConfig{
		UserID:      cfg.UserID,
		TenantID:    cfg.TenantID,
		MatchWindow: cfg.Reconcile.MatchWindow,
		StaleAfter:  cfg.Reconcile.StaleAfter,
	})
	sweeper, err := app.NewStaleSweeper(session, cfg.Reconcile.SweepSpec)
	if err != nil {
		logger.Log.Fatal("create stale sweeper failed", zap.Error(err))
	}

	if err := session.Start(ctx); err != nil {
		logger.Log.Fatal("start session failed", zap.Error(err))
	}
	sweeper.Start()

	if cfg.Select != "" {
		ref, err := domain.ParseRoomName(cfg.Select)
		if err != nil {
			logger.Log.Fatal("invalid select", zap.String("select", cfg.Select), zap.Error(err))
		}
		if err := session.Select(ctx, domain.Select(ref)); err != nil {
			logger.Log.Error("initial select failed", zap.String("room", cfg.Select), zap.Error(err))
		}
	}

	// 4. 啟動 Fiber
	r := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	if env.ChatSyncLogPath != "" {
		file, err := os.OpenFile(fmt.Sprintf("%s/access.log", env.ChatSyncLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logger.Log.Fatal("open access log failed", zap.Error(err))
		}
		defer file.Close()
		r.Use(fiber_log.New(fiber_log.Config{
			Output: file, // 将日志输出到文件
		}))
	}

	var (
		debugHandler *app.DebugHandler
		registry     *prometheus.Registry
	)
	if store != nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			debugstore.NewCollector(store),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		debugHandler = app.NewDebugHandler(store, session, cfg.Debug.AllowReset)
	}
	// registry 為 nil 時不掛 prometheus
	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}
	router.RegisterRoutes(r, debugHandler, gatherer, []byte(cfg.Debug.JWTSecret))

	go func() {
		<-ctx.Done()
		logger.Log.Info("chat sync shutting down")
		sweeper.Stop()
		if err := session.Close(); err != nil {
			logger.Log.Warn("close session", zap.Error(err))
		}
		_ = r.ShutdownWithTimeout(5 * time.Second)
	}()

	addr := ":" + cfg.Port
	logger.Log.Info("chat sync listening", zap.String("addr", addr), zap.String("transport", string(cfg.Transport.Kind)))
	if err := r.Listen(addr); err != nil {
		logger.Log.Fatal("failed to start fiber", zap.Error(err))
	}
}

// newConnectionPort build the configured realtime transport
func newConnectionPort(ctx context.Context, cfg config.Sync) (domain.ConnectionPort, func()) {
	switch cfg.Transport.Kind {
	case config.TransportRedis:
		masterName := cfg.Redis.MasterName
		sentinels := cfg.Redis.Sentinels
		if len(sentinels) == 0 && cfg.Redis.Addr == "" {
			masterName, sentinels = config.GetRedisSetting()
		}
		client, err := database.NewRedisClient(ctx, database.RedisConnection{
			Addr:          cfg.Redis.Addr,
			MasterName:    masterName,
			Sentinels:     sentinels,
			DB:            cfg.Redis.RedisDB,
			RetryCount:    5,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
		}
		return repository.NewRedisConnection(client, cfg.Transport.HealthEvery), func() { _ = client.Close() }

	default:
		return repository.NewWSConnection(cfg.Transport.URL, cfg.API.Token,
			repository.WithJoinTimeout(cfg.Transport.JoinTimeout),
			repository.WithBackoff(0, cfg.Transport.BackoffMax),
		), func() {}
	}
}

func hooks() domain.Hooks {
	return domain.Hooks{
		OnEntries: func(ref domain.ConversationRef, entries []domain.Entry) {
			logger.Log.Debug("entries changed", zap.String("room", ref.RoomName()), zap.Int("count", len(entries)))
		},
		OnConversations: func(previews []domain.Preview) {
			logger.Log.Debug("conversations changed", zap.Int("count", len(previews)))
		},
		OnMembership: func(ref domain.ConversationRef, userID string, event domain.EventName) {
			logger.Log.Info("membership changed", zap.String("room", ref.RoomName()), zap.String("user_id", userID), zap.String("event", string(event)))
		},
		OnSelection: func(sel domain.Selection) {
			logger.Log.Info("selection changed", zap.String("room", sel.Ref.RoomName()))
		},
		OnNotice: func(n domain.Notice) {
			logger.Log.Warn("notice",
				zap.String("kind", string(n.Kind)),
				zap.String("room", n.Ref.RoomName()),
				zap.String("temp_id", n.TempID),
				zap.Error(n.Err))
		},
	}
}
