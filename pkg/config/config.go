package config

import (
	"time"

	errprocess "chat_sync_service/pkg/err"
)

// TransportKind which ConnectionPort implementation the daemon uses
type TransportKind string

const (
	// TransportWebsocket connect to the chat gateway over websocket
	TransportWebsocket TransportKind = "websocket"
	// TransportRedis subscribe to the backend redis bus directly
	TransportRedis TransportKind = "redis"
)

// Sync definition chat_sync YAML structure
type Sync struct {
	Port     string `mapstructure:"port"`
	UserID   string `mapstructure:"user_id"`
	TenantID string `mapstructure:"tenant_id"`

	// Select room opened after start, e.g. channel:general
	Select string `mapstructure:"select"`

	API       APIConfig       `mapstructure:"api"`
	Transport TransportConfig `mapstructure:"transport"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// APIConfig definition REST collaborator setting
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TransportConfig definition realtime connection setting
type TransportConfig struct {
	Kind        TransportKind `mapstructure:"kind"`
	URL         string        `mapstructure:"url"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	HealthEvery time.Duration `mapstructure:"health_every"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Addr       string   `mapstructure:"addr"`
	MasterName string   `mapstructure:"master_name"`
	Sentinels  []string `mapstructure:"sentinels"`
	RedisDB    int      `mapstructure:"redis_db"`
}

// ReconcileConfig definition reconciliation tuning, defaults follow the observed chat client
type ReconcileConfig struct {
	MatchWindow time.Duration `mapstructure:"match_window"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	SweepSpec   string        `mapstructure:"sweep_spec"`
}

// DebugConfig definition debug event store setting
type DebugConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AllowReset bool          `mapstructure:"allow_reset"`
	Capacity   int           `mapstructure:"capacity"`
	Window     time.Duration `mapstructure:"window"`
	// JWTSecret empty leaves the debug routes open
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SyncDefaults viper defaults for Sync
func SyncDefaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                   "8090",
		"api.timeout":            "10s",
		"transport.kind":         string(TransportWebsocket),
		"transport.join_timeout": "5s",
		"transport.backoff_max":  "30s",
		"transport.health_every": "15s",
		"reconcile.match_window": "30s",
		"reconcile.stale_after":  "2m",
		"reconcile.sweep_spec":   "@every 30s",
		"debug.capacity":         500,
		"debug.window":           "5m",
	}
}

// Validate check required setting
func (s *Sync) Validate() error {
	if s.UserID == "" {
		return errprocess.Set("config user_id is required")
	}
	if s.API.BaseURL == "" {
		return errprocess.Set("config api.base_url is required")
	}
	switch s.Transport.Kind {
	case TransportWebsocket:
		if s.Transport.URL == "" {
			return errprocess.Set("config transport.url is required for websocket transport")
		}
	case TransportRedis:
		if s.Redis.Addr == "" && len(s.Redis.Sentinels) == 0 {
			return errprocess.Set("config redis.addr or redis.sentinels is required for redis transport")
		}
	default:
		return errprocess.Setf("config transport.kind %q is not supported", s.Transport.Kind)
	}
	if s.Reconcile.MatchWindow <= 0 || s.Reconcile.StaleAfter <= 0 {
		return errprocess.Set("config reconcile windows must be positive")
	}
	if s.Debug.Capacity <= 0 {
		return errprocess.Set("config debug.capacity must be positive")
	}
	return nil
}
