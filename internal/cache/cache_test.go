package cache

import (
	"sync"
	"testing"

	"github.com/fieldtrack/trackcheck/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectCache_AddAndGet(t *testing.T) {
	c := NewSubjectCache()

	c.Add(core.Subject{ID: 42, Name: "Asha", TrackingEnabled: true})

	got, ok := c.Get(42)
	require.True(t, ok, "expected to find subject 42")
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, 1, c.Len())
}

func TestSubjectCache_GetNotFound(t *testing.T) {
	c := NewSubjectCache()

	_, ok := c.Get(999)
	assert.False(t, ok)
}

func TestSubjectCache_TrackingEnabled(t *testing.T) {
	c := NewSubjectCache()
	c.Add(core.Subject{ID: 1, TrackingEnabled: true})
	c.Add(core.Subject{ID: 2, TrackingEnabled: false})

	enabled, known := c.TrackingEnabled(1)
	assert.True(t, enabled)
	assert.True(t, known)

	enabled, known = c.TrackingEnabled(2)
	assert.False(t, enabled)
	assert.True(t, known)

	_, known = c.TrackingEnabled(3)
	assert.False(t, known)
}

func TestSubjectCache_Overwrite(t *testing.T) {
	c := NewSubjectCache()
	c.Add(core.Subject{ID: 1, TrackingEnabled: true})
	c.Add(core.Subject{ID: 1, TrackingEnabled: false})

	got, _ := c.Get(1)
	assert.False(t, got.TrackingEnabled)
	assert.Equal(t, 1, c.Len())
}

func TestSubjectCache_Reset(t *testing.T) {
	c := NewSubjectCache()
	c.Add(core.Subject{ID: 1})
	c.Reset()

	assert.Equal(t, 0, c.Len())
}

func TestSubjectCache_Concurrent(t *testing.T) {
	c := NewSubjectCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id uint) {
			defer wg.Done()
			c.Add(core.Subject{ID: id, TrackingEnabled: true})
		}(uint(i))
		go func(id uint) {
			defer wg.Done()
			c.Get(id)
		}(uint(i))
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}

func TestRunCache(t *testing.T) {
	c := NewRunCache()

	_, ok := c.Get(7, "2024-03-14")
	assert.False(t, ok)

	c.Set(7, "2024-03-14", "run-a")
	c.Set(7, "2024-03-15", "run-b")

	id, ok := c.Get(7, "2024-03-14")
	require.True(t, ok)
	assert.Equal(t, "run-a", id)

	c.Invalidate(7, "2024-03-14")
	_, ok = c.Get(7, "2024-03-14")
	assert.False(t, ok)

	id, ok = c.Get(7, "2024-03-15")
	require.True(t, ok)
	assert.Equal(t, "run-b", id)

	c.Reset()
	_, ok = c.Get(7, "2024-03-15")
	assert.False(t, ok)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, c.Value())
	c.Set(3)
	assert.Equal(t, 3, c.Value())
}
