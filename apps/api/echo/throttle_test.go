package echoapi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_throttler_hit(t *testing.T) {
	t.Run("concurrent attempts are all counted", func(t *testing.T) {
		thr := newThrottler(100, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				thr.hit("login:1.2.3.4:ada")
			}()
		}
		wg.Wait()

		assert.Equal(t, 50, thr.count("login:1.2.3.4:ada"))
		assert.True(t, thr.allowed("login:1.2.3.4:ada"))
	})

	t.Run("limit reached", func(t *testing.T) {
		thr := newThrottler(2, time.Minute)
		thr.hit("k")
		assert.True(t, thr.allowed("k"))
		thr.hit("k")
		assert.False(t, thr.allowed("k"))

		thr.reset("k")
		assert.True(t, thr.allowed("k"))
	})

	t.Run("an expired window starts over", func(t *testing.T) {
		thr := newThrottler(2, time.Minute)
		// left in the cache but already expired, as when the window ends mid-hit
		thr.attempts.Set("k", 2, time.Nanosecond)
		time.Sleep(time.Millisecond)

		thr.hit("k")
		assert.Equal(t, 1, thr.count("k"))
		assert.True(t, thr.allowed("k"))
	})

	t.Run("disabled", func(t *testing.T) {
		thr := newThrottler(0, time.Minute)
		for i := 0; i < 5; i++ {
			thr.hit("k")
		}
		assert.Zero(t, thr.count("k"))
		assert.True(t, thr.allowed("k"))
	})
}
