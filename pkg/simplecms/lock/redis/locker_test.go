package redis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redislock "github.com/tendant/simple-cms/pkg/simplecms/lock/redis"
)

func setupLocker(t *testing.T, opts ...redislock.Option) (*redislock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts = append([]redislock.Option{redislock.WithPollInterval(time.Millisecond)}, opts...)
	return redislock.New(client, opts...), mr
}

func TestLocker_LockAndUnlock(t *testing.T) {
	locker, mr := setupLocker(t)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "page:a/parent:root")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redislock.DefaultKeyPrefix+"page:a/parent:root"))

	unlock()
	assert.False(t, mr.Exists(redislock.DefaultKeyPrefix+"page:a/parent:root"))

	// A second call is a no-op.
	unlock()
}

func TestLocker_SetsTTL(t *testing.T) {
	locker, mr := setupLocker(t, redislock.WithTTL(2*time.Second), redislock.WithKeyPrefix("test:"))

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	assert.Equal(t, 2*time.Second, mr.TTL("test:k"))
}

func TestLeaseFor(t *testing.T) {
	assert.Equal(t, 4*30*time.Second+30*time.Second, redislock.LeaseFor(4, 30*time.Second))
	assert.Greater(t, redislock.LeaseFor(4, 30*time.Second), 4*30*time.Second)
	assert.Equal(t, redislock.DefaultTTL, redislock.LeaseFor(4, 0))
	assert.Greater(t, redislock.DefaultTTL, 4*30*time.Second)
}

func TestLocker_ConcurrentUnlock(t *testing.T) {
	locker, mr := setupLocker(t)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, mr.Exists(redislock.DefaultKeyPrefix+"k"))
}

func TestLocker_ContextCancelledWhileWaiting(t *testing.T) {
	locker, _ := setupLocker(t)

	unlock, err := locker.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, "busy")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_ExpiredLockIsNotReleasedByFormerHolder(t *testing.T) {
	locker, mr := setupLocker(t, redislock.WithTTL(time.Second))
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlockB, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	unlockA()
	assert.True(t, mr.Exists(redislock.DefaultKeyPrefix+"k"), "holder B keeps the lock")

	unlockB()
	assert.False(t, mr.Exists(redislock.DefaultKeyPrefix+"k"))
}

func TestLocker_SerialisesHolders(t *testing.T) {
	locker, _ := setupLocker(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "shared")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}
