package localstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/logging"

	_ "modernc.org/sqlite"
)

func setupGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(context.Background(), ":memory:", logging.Discard())
	require.True(t, g.Enabled())
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "k1", []byte{0x01, 0x02}))

	v, err := g.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, v)
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	g := setupGateway(t)

	v, err := g.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "k", []byte("old")))
	require.NoError(t, g.Set(ctx, "k", []byte("new")))

	v, err := g.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestDelete_RemovesKey(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "k", []byte("v")))
	require.NoError(t, g.Delete(ctx, "k"))

	v, err := g.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestClear_DropsEverything(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	require.NoError(t, g.Set(ctx, "a", []byte("1")))
	require.NoError(t, g.Set(ctx, "b", []byte("2")))
	require.NoError(t, g.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		v, err := g.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, v)
	}
}

func TestLastActivePointer_RoundTrip(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	last, err := g.LastActive(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, last)

	require.NoError(t, g.SetLastActive(ctx, "user-1", "plan-42"))

	last, err = g.LastActive(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "plan-42", last)

	// Pointers are per user.
	other, err := g.LastActive(ctx, "user-2")
	require.NoError(t, err)
	require.Empty(t, other)

	require.NoError(t, g.ClearLastActive(ctx, "user-1"))
	last, err = g.LastActive(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, last)
}

func TestCredential_RoundTrip(t *testing.T) {
	g := setupGateway(t)
	ctx := context.Background()

	require.NoError(t, g.SetCredential(ctx, "a@b.c", []byte("sealed")))

	v, err := g.Credential(ctx, "a@b.c")
	require.NoError(t, err)
	require.Equal(t, []byte("sealed"), v)

	require.NoError(t, g.DeleteCredential(ctx, "a@b.c"))
	v, err = g.Credential(ctx, "a@b.c")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDisabledGateway_MissesAndNoOps(t *testing.T) {
	ctx := context.Background()

	// An unopenable path must produce a disabled gateway, never an error.
	g := New(ctx, "/nonexistent-dir/planner.db", logging.Discard())
	require.False(t, g.Enabled())

	require.NoError(t, g.SetLastActive(ctx, "u", "s"))
	last, err := g.LastActive(ctx, "u")
	require.NoError(t, err)
	require.Empty(t, last)

	require.NoError(t, g.Delete(ctx, "k"))
	require.NoError(t, g.Clear(ctx))
	require.NoError(t, g.Close())
}
