package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyGuardMarksOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	guard, err := NewIdempotencyGuard(&Client{store: mock}, time.Hour, "mp-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(ctx, "123")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "123")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "123"))
	seen, err = guard.CheckAndMark(ctx, "123")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Contains(t, mock.data, "arcano:idempotency:mp-webhook:123")
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "s")
	require.Error(t, err)

	_, err = NewIdempotencyGuard(&Client{store: newMockCmdable()}, time.Hour, "")
	require.Error(t, err)

	guard, err := NewIdempotencyGuard(&Client{store: newMockCmdable()}, time.Hour, "s")
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	require.Error(t, err)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	_, err := client.SetNX(context.Background(), "k", "v", 0)
	require.Error(t, err)
	require.Error(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())
}

func TestKeyBuilderSkipsEmptyParts(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "arcano:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "arcano:idempotency:id", client.IdempotencyKey(" ", "id"))
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
