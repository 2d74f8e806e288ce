package config

import (
	"strconv"
	"time"
)

type SyncConfig interface {
	GetSaveQuietInterval() time.Duration
	GetSaveRetryDelay() time.Duration
	GetRemoteRateLimit() int
}

type Sync struct{}

var _ SyncConfig = Sync{}

func (Sync) GetSaveQuietInterval() time.Duration {
	return 500 * time.Millisecond
}

func (Sync) GetSaveRetryDelay() time.Duration {
	return 2 * time.Second
}

// GetRemoteRateLimit caps requests per second against the remote store.
func (Sync) GetRemoteRateLimit() int {
	limit, err := strconv.Atoi(GetEnv("REMOTE_RATE_LIMIT", "5"))
	if err != nil || limit <= 0 {
		return 5
	}
	return limit
}
