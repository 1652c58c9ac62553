package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SerializesSameKey(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir())

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk, err := l.Acquire(context.Background(), "project-a")
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
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, lk.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestAcquire_DifferentKeysIndependent(t *testing.T) {
	t.Parallel()
	l := New(t.TempDir())

	a, err := l.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer func() { _ = a.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := l.Acquire(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, b.Release())
}

func TestAcquire_RespectsContext(t *testing.T) {
	t.Parallel()
	l := New("")

	held, err := l.Acquire(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "p")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release())
	require.NoError(t, held.Release())

	again, err := l.Acquire(context.Background(), "p")
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquire_FileLockAcrossLockers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	first := New(dir)
	second := New(dir)

	held, err := first.Acquire(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = second.Acquire(ctx, "p")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release())
	lk, err := second.Acquire(context.Background(), "p")
	require.NoError(t, err)
	require.NoError(t, lk.Release())
}

func TestAcquire_RejectsPathKeys(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir()).Acquire(context.Background(), "../escape")
	require.Error(t, err)
}
