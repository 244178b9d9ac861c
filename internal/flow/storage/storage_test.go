package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arcano/arcano-consultas/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ flow.Storage = (*Memory)(nil)
	_ flow.Storage = (*File)(nil)
)

func exercise(t *testing.T, s flow.Storage) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "b", "2"))
	require.NoError(t, s.Set(ctx, "a", "3"))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	require.NoError(t, s.Delete(ctx, "a", "missing"))
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestMemory(t *testing.T) {
	exercise(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flow.json")
	f, err := NewFile(path)
	require.NoError(t, err)
	exercise(t, f)

	reopened, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	f, err := NewFile(path)
	require.NoError(t, err)
	_, _, err = f.Get(context.Background(), "a")
	assert.Error(t, err)
}

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions := flow.NewSessionStore(NewMemory())

	require.NoError(t, sessions.Write(ctx, flow.Session{ConsultationID: "c-1", ConsultationType: "astral", PendingPaymentID: "p-1"}))
	got, err := sessions.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.Session{ConsultationID: "c-1", ConsultationType: "astral", PendingPaymentID: "p-1"}, got)

	require.NoError(t, sessions.Clear(ctx))
	got, err = sessions.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, flow.Session{}, got)
}
