package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2, nil)
	require.NoError(t, err)
	defer pool.Close()

	host, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stats()["available"])

	require.NoError(t, host.Do(context.Background(), func(vm *goja.Runtime) error {
		_, err := vm.RunString("globalThis.polluted = true")
		return err
	}))

	require.NoError(t, pool.Release(host))
	assert.Equal(t, 2, pool.Stats()["available"])

	// Released hosts are retired, never handed out again.
	err = host.Do(context.Background(), func(*goja.Runtime) error { return nil })
	assert.ErrorIs(t, err, ErrHostClosed)
}

func TestPoolExecute(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2, nil)
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	results := make([]any, 6)
	errs := make([]error, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pool.Execute(context.Background(), func(ctx context.Context, host *Host) error {
				return host.Do(ctx, func(vm *goja.Runtime) error {
					v, err := vm.RunString("typeof polluted")
					if err != nil {
						return err
					}
					_, err = vm.RunString("globalThis.polluted = true")
					results[i] = v.Export()
					return err
				})
			})
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "undefined", results[i])
	}
}

func TestPoolCloseWakesAcquire(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, nil)
	require.NoError(t, err)

	host, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer host.Close()

	acquired := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		acquired <- err
	}()

	// Let the second Acquire block on the empty pool.
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a waiting Acquire")
	}
	select {
	case err := <-acquired:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(time.Second):
		t.Fatal("waiting Acquire not released by Close")
	}
}

func TestPoolClosed(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, nil)
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, true, pool.Stats()["closed"])
}
