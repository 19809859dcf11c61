package cache

import (
	"context"
	"time"

	applog "finbot/internal/log"
)

// Cache is the key/value contract the bot keeps conversation state in.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps registered caches so abandoned entries do not
// linger until they are read again.
type Janitor struct {
	caches []Cleaner
	logger *applog.Logger
}

func NewJanitor(logger *applog.Logger, caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if cleaned := j.Sweep(); cleaned > 0 && j.logger != nil {
				j.logger.Debug("Expired cache entries removed", "count", cleaned)
			}
		}
	}
}

// Sweep cleans every registered cache once and returns the total removed.
func (j *Janitor) Sweep() int {
	total := 0
	for _, c := range j.caches {
		total += c.CleanExpired()
	}
	return total
}
