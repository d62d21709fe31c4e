package database

import (
	"time"
)

// RedisConnection definition redis setting, Sentinels wins over Addr when set
type RedisConnection struct {
	Addr       string
	MasterName string
	Sentinels  []string
	DB         int

	RetryCount    int
	RetryInterval time.Duration
}
