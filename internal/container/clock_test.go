package container

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_NumbersFollowStart(t *testing.T) {
	tests := []struct {
		name  string
		after int64
	}{
		{"fresh", 0},
		{"restored", 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClock(tt.after)
			assert.Equal(t, tt.after, c.Last())
			assert.Equal(t, tt.after+1, c.Next())
			assert.Equal(t, tt.after+2, c.Next())
			assert.Equal(t, tt.after+2, c.Last(), "Last must not advance")
		})
	}
}

func TestClock_ConcurrentNextUnique(t *testing.T) {
	c := NewClock(0)
	const goroutines = 50
	const calls = 200

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls, "every number is issued once")
	assert.Equal(t, int64(goroutines*calls), c.Last())
}
