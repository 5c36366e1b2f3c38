package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializes(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(ctx, "index")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()

	release, err := l.Lock(context.Background(), "index")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "index")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other names are independent
	other, err := l.Lock(context.Background(), "uploads")
	require.NoError(t, err)
	other()

	release()
	again, err := l.Lock(context.Background(), "index")
	require.NoError(t, err)
	again()
	assert.NoError(t, l.Close())
}

func TestNewLocker(t *testing.T) {
	l, err := NewLocker(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &LocalLocker{}, l)

	_, err = NewLocker(&config.Config{RedisURL: "://not a url"})
	assert.Error(t, err)
}
