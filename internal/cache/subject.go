package cache

import (
	"sync"

	"github.com/fieldtrack/trackcheck/pkg/core"
)

// SubjectCache keeps registered subjects in memory so that incoming fixes
// can be checked for tracking consent without a storage round trip.
type SubjectCache struct {
	mu       sync.RWMutex
	subjects map[uint]core.Subject
}

func NewSubjectCache() *SubjectCache {
	return &SubjectCache{
		subjects: make(map[uint]core.Subject),
	}
}

func (c *SubjectCache) Get(id uint) (core.Subject, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subjects[id]
	return s, ok
}

func (c *SubjectCache) Add(s core.Subject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects[s.ID] = s
}

// TrackingEnabled reports whether fixes for id should be accepted.
// known is false when the subject has not been cached yet.
func (c *SubjectCache) TrackingEnabled(id uint) (enabled, known bool) {
	s, ok := c.Get(id)
	if !ok {
		return false, false
	}
	return s.TrackingEnabled, true
}

func (c *SubjectCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subjects)
}

func (c *SubjectCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = make(map[uint]core.Subject)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
