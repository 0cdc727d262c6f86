package cache

import (
	"fmt"
	"sync"
)

// RunCache maps a subject-day to the ID of its most recently stored run.
type RunCache struct {
	mu   sync.RWMutex
	runs map[string]string
}

// NewRunCache creates a new RunCache
func NewRunCache() *RunCache {
	return &RunCache{
		runs: make(map[string]string),
	}
}

func runKey(subjectID uint, day string) string {
	return fmt.Sprintf("%d/%s", subjectID, day)
}

// Get retrieves the latest run ID for a subject-day
func (c *RunCache) Get(subjectID uint, day string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.runs[runKey(subjectID, day)]
	return id, ok
}

// Set records runID as the latest run of the subject-day
func (c *RunCache) Set(subjectID uint, day, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[runKey(subjectID, day)] = runID
}

// Invalidate drops the cached run, typically because a new fix arrived for that day
func (c *RunCache) Invalidate(subjectID uint, day string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runs, runKey(subjectID, day))
}

// Reset clears the cache
func (c *RunCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = make(map[string]string)
}
