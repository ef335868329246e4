package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, err := l.TryLock(ctx, "l1:5")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "l1:5")
	assert.ErrorIs(t, err, ErrChainBusy)

	other, err := l.TryLock(ctx, "l1:6")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := l.TryLock(ctx, "l1:5")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, "rollupctl:lock:"), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t, time.Minute)

	unlock, err := l.TryLock(ctx, "rollup:5:1001")
	require.NoError(t, err)
	assert.True(t, mr.Exists("rollupctl:lock:rollup:5:1001"))

	_, err = l.TryLock(ctx, "rollup:5:1001")
	assert.ErrorIs(t, err, ErrChainBusy)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("rollupctl:lock:rollup:5:1001"))

	again, err := l.TryLock(ctx, "rollup:5:1001")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t, time.Second)

	stale, err := l.TryLock(ctx, "l1:5")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.TryLock(ctx, "l1:5")
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("rollupctl:lock:l1:5"), "stale unlock must not drop the new owner's lock")

	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("rollupctl:lock:l1:5"))
}

func TestRedisLocker_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, time.Minute, "")

	_, err := l.TryLock(context.Background(), "l1:5")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChainBusy)
}

func TestRun_LockHeldByAnotherRun(t *testing.T) {
	opts := testOptions()
	opts.Locker = NewLocalLocker()
	ctx := context.Background()

	unlock, err := opts.Locker.TryLock(ctx, rollupLockKey(testL1ChainID, testL2ChainID))
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	store := newHarness(t, true).store
	deployer := NewLogicDeployer(store, opts)
	p := NewProvisioner(store, deployer, opts)

	ch := newFakeChain(testL1ChainID)
	_, err = p.Provision(ctx, ch, provisionRequest(1))
	assert.ErrorIs(t, err, ErrChainBusy)
	assert.True(t, Retryable(err))
	assert.Zero(t, ch.deployCount())
}
