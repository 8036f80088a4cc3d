package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/platewise-backend/pkg/config"
)

func TestSlidingWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCommander()
	client := &Client{store: mock}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		allowed, count, err := client.SlidingWindowAllow(ctx, "ip:1.2.3.4", 2, time.Hour, now)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, int64(i), count)
	}
	require.Equal(t, time.Hour.Milliseconds(), mock.ttls["pw:rate_limit:ip:1.2.3.4"])

	allowed, count, err := client.SlidingWindowAllow(ctx, "ip:1.2.3.4", 2, time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, int64(2), count)
	require.Len(t, mock.zsets["pw:rate_limit:ip:1.2.3.4"], 2, "rejected hits are not recorded")

	allowed, count, err = client.SlidingWindowAllow(ctx, "ip:1.2.3.4", 2, time.Hour, now.Add(time.Hour+time.Second))
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(0), count)
}

func TestSlidingWindowAllowPrunesHitAtBoundary(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCommander()}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	allowed, _, err := client.SlidingWindowAllow(ctx, "ip:1.2.3.4", 1, 24*time.Hour, now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, count, err := client.SlidingWindowAllow(ctx, "ip:1.2.3.4", 1, 24*time.Hour, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, int64(0), count)
}

func TestSlidingWindowAllowKeepsScopesApart(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCommander()}
	now := time.Now().UTC()

	allowed, _, err := client.SlidingWindowAllow(ctx, "a", 1, time.Hour, now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = client.SlidingWindowAllow(ctx, "b", 1, time.Hour, now)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestScriptsFallBackToEvalOnNoScript(t *testing.T) {
	ctx := context.Background()
	mock := newMockCommander()
	mock.scriptCacheEmpty = true
	client := &Client{store: mock}

	allowed, _, err := client.SlidingWindowAllow(ctx, "a", 1, time.Hour, time.Now())
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, mock.evals)
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	mock := newMockCommander()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "pw:lock:cron", "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "pw:lock:cron", "owner-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err := client.CompareAndDelete(ctx, "pw:lock:cron", "owner-b")
	require.NoError(t, err)
	require.False(t, deleted)
	require.Equal(t, "owner-a", mock.data["pw:lock:cron"])

	deleted, err = client.CompareAndDelete(ctx, "pw:lock:cron", "owner-a")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NotContains(t, mock.data, "pw:lock:cron")
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	require.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, _, err := client.SlidingWindowAllow(ctx, "x", 1, time.Hour, time.Now())
	require.ErrorIs(t, err, errNotInitialized)
	_, err = client.CompareAndDelete(ctx, "x", "y")
	require.ErrorIs(t, err, errNotInitialized)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "pw:rate_limit:scope", client.RateLimitKey("scope"))
	require.Equal(t, "pw:lock:cron", client.LockKey("cron"))
	require.Equal(t, "pw:lock", client.LockKey(" "), "blank parts are skipped")
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/2",
		DB:          5,
		PoolSize:    20,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache.internal:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB, "the url database wins")
	require.Equal(t, 20, opts.PoolSize)
	require.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
}

// replyError mimics an error reply from the server.
type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError() {}

// mockCommander emulates the two Lua scripts in Go, dispatching on their
// hashes the way Redis does on EVALSHA.
type mockCommander struct {
	data  map[string]string
	zsets map[string]map[string]int64
	ttls  map[string]int64

	scriptCacheEmpty bool
	evals            int
}

func newMockCommander() *mockCommander {
	return &mockCommander{
		data:  map[string]string{},
		zsets: map[string]map[string]int64{},
		ttls:  map[string]int64{},
	}
}

func (m *mockCommander) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCommander) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCommander) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	if m.scriptCacheEmpty {
		return redis.NewCmdResult(nil, replyError("NOSCRIPT No matching script. Use EVAL."))
	}
	return m.run(sha, keys, args)
}

func (m *mockCommander) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	return m.run(redis.NewScript(script).Hash(), keys, args)
}

func (m *mockCommander) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCommander) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCommander) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCommander) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}

func (m *mockCommander) run(sha string, keys []string, args []any) *redis.Cmd {
	switch sha {
	case slidingWindowScript.Hash():
		return m.slidingWindow(keys[0], args[0].(int64), args[1].(int64), args[2].(int64), args[3].(string))
	case compareAndDeleteScript.Hash():
		if m.data[keys[0]] == args[0].(string) {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	default:
		return redis.NewCmdResult(nil, replyError("NOSCRIPT unknown script "+sha))
	}
}

func (m *mockCommander) slidingWindow(key string, now, window, limit int64, member string) *redis.Cmd {
	set, ok := m.zsets[key]
	if !ok {
		set = map[string]int64{}
		m.zsets[key] = set
	}
	for k, score := range set {
		if score <= now-window {
			delete(set, k)
		}
	}
	count := int64(len(set))
	if count >= limit {
		return redis.NewCmdResult([]any{int64(0), count}, nil)
	}
	set[member] = now
	m.ttls[key] = window
	return redis.NewCmdResult([]any{int64(1), count}, nil)
}
