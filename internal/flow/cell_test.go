package flow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receive reads n values from ch or fails the test after a timeout.
func receive[T any](t *testing.T, ch <-chan T, n int) []T {
	t.Helper()
	got := make([]T, 0, n)
	for len(got) < n {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "channel closed after %d values", len(got))
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d values", len(got), n)
		}
	}
	return got
}

func TestCell_SubscribeReplaysCurrent(t *testing.T) {
	c := NewCell(7)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := receive(t, c.Subscribe(ctx), 1)
	assert.Equal(t, []int{7}, got)
}

func TestCell_DeliversEveryValueInOrder(t *testing.T) {
	c := NewCell(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Subscribe(ctx)
	for i := 1; i <= 50; i++ {
		c.Set(i)
	}

	got := receive(t, ch, 51)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCell_Multicast(t *testing.T) {
	c := NewCell("a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := c.Subscribe(ctx)
	second := c.Subscribe(ctx)
	c.Set("b")

	assert.Equal(t, []string{"a", "b"}, receive(t, first, 2))
	assert.Equal(t, []string{"a", "b"}, receive(t, second, 2))
}

func TestCell_LateSubscriberSeesLatestOnly(t *testing.T) {
	c := NewCell(1)
	c.Set(2)
	c.Set(3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, []int{3}, receive(t, c.Subscribe(ctx), 1))
	assert.Equal(t, 3, c.Value())
}

func TestCell_WithEqualSuppressesDuplicates(t *testing.T) {
	c := NewCell(1, WithEqual(func(a, b int) bool { return a == b }))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Subscribe(ctx)
	assert.False(t, c.Set(1))
	assert.True(t, c.Set(2))
	assert.False(t, c.Set(2))
	assert.True(t, c.Set(3))

	assert.Equal(t, []int{1, 2, 3}, receive(t, ch, 3))
}

func TestCell_Update(t *testing.T) {
	c := NewCell(10)
	next, changed := c.Update(func(v int) int { return v + 5 })
	assert.True(t, changed)
	assert.Equal(t, 15, next)
	assert.Equal(t, 15, c.Value())
}

func TestCell_SubscriptionHooks(t *testing.T) {
	var active atomic.Int32
	c := NewCell(0, WithSubscriptionHooks[int](
		func() { active.Add(1) },
		func() { active.Add(-1) },
	))

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx)
	receive(t, ch, 1)
	assert.Equal(t, int32(1), active.Load())
	assert.Equal(t, 1, c.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return active.Load() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Subscribers())
}

func TestCell_WatchSkipsHooks(t *testing.T) {
	var active atomic.Int32
	c := NewCell(0, WithSubscriptionHooks[int](
		func() { active.Add(1) },
		func() { active.Add(-1) },
	))

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Watch(ctx)
	c.Set(1)
	assert.Equal(t, []int{0, 1}, receive(t, ch, 2))
	assert.Equal(t, int32(0), active.Load())

	cancel()
	require.Eventually(t, func() bool { return c.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), active.Load())
}

func TestCell_CloseDrainsThenClosesSubscribers(t *testing.T) {
	c := NewCell(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Subscribe(ctx)
	c.Set(1)
	c.Close()
	assert.False(t, c.Set(2), "set after close should be rejected")

	var got []int
	for v := range ch {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1}, got)
}

func TestCell_SubscribeAfterClose(t *testing.T) {
	c := NewCell(5)
	c.Close()

	var got []int
	for v := range c.Subscribe(context.Background()) {
		got = append(got, v)
	}
	assert.Equal(t, []int{5}, got)
}
