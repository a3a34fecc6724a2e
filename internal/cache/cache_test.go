package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amaumene/gocomet/internal/errors"
)

func TestGetSet(t *testing.T) {
	c := New(4)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestExpiry(t *testing.T) {
	c := New(4)

	c.Set("short", "v", 10*time.Millisecond)
	c.Set("long", "v", time.Minute)

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok, "expired entry must not be returned")
	_, ok = c.Get("long")
	assert.True(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New(2)

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	// Touch a so b becomes the least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, time.Minute)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New(16)

	var calls int32
	var wg sync.WaitGroup
	results := make([]interface{}, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := c.GetOrCompute("key", func() (interface{}, time.Duration, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return "value", time.Minute, nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must share one computation")
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
}

func TestGetOrComputeError(t *testing.T) {
	c := New(4)

	boom := errors.New("boom")
	_, err := c.GetOrCompute("key", func() (interface{}, time.Duration, error) {
		return nil, 0, boom
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeCacheCompute, apperrors.TypeOf(err))
	assert.ErrorIs(t, err, boom)

	// Failures are not cached: the next call recomputes.
	v, err := c.GetOrCompute("key", func() (interface{}, time.Duration, error) {
		return 42, time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGetOrComputeZeroTTLNotCached(t *testing.T) {
	c := New(4)

	var calls int32
	compute := func() (interface{}, time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return "v", 0, nil
	}

	_, err := c.GetOrCompute("key", compute)
	require.NoError(t, err)
	_, err = c.GetOrCompute("key", compute)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCleanExpired(t *testing.T) {
	c := New(8)

	c.Set("a", 1, 5*time.Millisecond)
	c.Set("b", 2, time.Minute)
	time.Sleep(10 * time.Millisecond)

	c.CleanExpired()
	assert.Equal(t, 1, c.Len())
}
