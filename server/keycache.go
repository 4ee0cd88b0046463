package server

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/cipherrelay/cipherrelay/server/cipher"
)

// scheduleCache keeps recently used key schedules so repeat keys skip the
// derivation. A cache created with size zero derives on every lookup.
type scheduleCache struct {
	cache   *lru.Cache
	metrics *metrics
}

func newScheduleCache(size int, m *metrics) (*scheduleCache, error) {
	c := &scheduleCache{metrics: m}
	if size <= 0 {
		return c, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// get returns the schedule for key. An empty key returns
// cipher.ErrInvalidKey and is never cached.
func (c *scheduleCache) get(key string) (*cipher.Schedule, error) {
	if c.cache == nil {
		return cipher.NewSchedule([]byte(key))
	}
	if v, ok := c.cache.Get(key); ok {
		c.metrics.keyCacheLookups.WithLabelValues("hit").Inc()
		return v.(*cipher.Schedule), nil
	}
	c.metrics.keyCacheLookups.WithLabelValues("miss").Inc()
	schedule, err := cipher.NewSchedule([]byte(key))
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, schedule)
	return schedule, nil
}

func (c *scheduleCache) len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func (c *scheduleCache) purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}
