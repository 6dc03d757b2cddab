package msgworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TryDispatch no debe bloquear al caller aunque el job tarde
func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start(context.Background())
	defer pool.Stop()

	start := time.Now()
	ok := pool.TryDispatch(Job{
		Key:  "tenant-a",
		Name: "slow",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})

	assert.True(t, ok)
	assert.Less(t, time.Since(start), 10*time.Millisecond, "TryDispatch debe ser no bloqueante")
}

// Jobs con la misma key se procesan en orden
func TestPool_SameKeySequential(t *testing.T) {
	pool := NewPool(4, 100)
	pool.Start(context.Background())
	defer pool.Stop()

	var results []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 1; i <= 5; i++ {
		val := i
		wg.Add(1)
		require.True(t, pool.TryDispatch(Job{
			Key: "tenant-a",
			Handler: func(ctx context.Context) error {
				defer wg.Done()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				mu.Unlock()
				return nil
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

// Keys distintas pueden correr en paralelo
func TestPool_DifferentKeysParallel(t *testing.T) {
	pool := NewPool(4, 10)
	pool.Start(context.Background())
	defer pool.Stop()

	// elegimos keys que caen en workers distintos
	keys := map[int]string{}
	for i := 0; len(keys) < 2 && i < 1000; i++ {
		k := string(rune('a'+i%26)) + string(rune('a'+i/26))
		keys[pool.shardFor(k)] = k
	}
	require.Len(t, keys, 2)

	var active, maxActive int32
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		pool.TryDispatch(Job{Key: k, Handler: func(ctx context.Context) error {
			defer wg.Done()
			cur := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if cur <= m || atomic.CompareAndSwapInt32(&maxActive, m, cur) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		}})
	}
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&maxActive))
}

func TestPool_PanicAndErrorsAreCounted(t *testing.T) {
	pool := NewPool(1, 10)
	var ended int32
	pool.OnJobEnd = func(workerID int, job Job, err error) {
		atomic.AddInt32(&ended, 1)
	}
	pool.Start(context.Background())

	pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { panic("boom") }})
	pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { return errors.New("fail") }})
	pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { return nil }})
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats.TotalDispatched)
	assert.Equal(t, int64(3), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ended))
}

func TestPool_QueueFullDrops(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	assert.True(t, pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { return nil }}))
	close(release)

	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)
}

func TestPool_DispatchAfterStop(t *testing.T) {
	pool := NewPool(2, 2)
	pool.Start(context.Background())
	pool.Stop()

	assert.False(t, pool.TryDispatch(Job{Key: "t", Handler: func(ctx context.Context) error { return nil }}))
}

// Hash consistente: misma key, mismo worker
func TestPool_ConsistentHashing(t *testing.T) {
	pool := NewPool(4, 10)
	s1 := pool.shardFor("tenant-123")
	assert.Equal(t, s1, pool.shardFor("tenant-123"))
	assert.GreaterOrEqual(t, s1, 0)
	assert.Less(t, s1, 4)
}
