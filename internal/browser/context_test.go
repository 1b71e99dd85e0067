// internal/browser/context_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type combineCtxKey string

func assertDoneWithin(t *testing.T, ctx context.Context, d time.Duration) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(d):
		t.Fatal("context was not canceled in time")
	}
}

func TestCombineContext(t *testing.T) {
	t.Run("Canceling the primary context cancels the combined one", func(t *testing.T) {
		ctx1, cancel1 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(ctx1, context.Background())
		defer cancel()

		cancel1()
		assertDoneWithin(t, combined, time.Second)
	})

	t.Run("Canceling the secondary context cancels the combined one", func(t *testing.T) {
		ctx2, cancel2 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()

		cancel2()
		assertDoneWithin(t, combined, time.Second)
	})

	t.Run("The returned cancel func works directly", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assertDoneWithin(t, combined, time.Second)
	})

	t.Run("Values come from the primary context only", func(t *testing.T) {
		ctx1 := context.WithValue(context.Background(), combineCtxKey("tab"), "primary")
		ctx2 := context.WithValue(context.Background(), combineCtxKey("op"), "secondary")

		combined, cancel := CombineContext(ctx1, ctx2)
		defer cancel()

		require.Equal(t, "primary", combined.Value(combineCtxKey("tab")))
		assert.Nil(t, combined.Value(combineCtxKey("op")))
	})

	t.Run("Secondary deadline does not leak into the combined context", func(t *testing.T) {
		ctx2, cancel2 := context.WithTimeout(context.Background(), time.Hour)
		defer cancel2()

		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()

		_, ok := combined.Deadline()
		assert.False(t, ok, "combined context should not report the secondary deadline")
	})
}
