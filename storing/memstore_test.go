package storing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore().SubDB(SubEvts)

	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	v, ok, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	_, ok, err = s.Get(ctx, []byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemStorePutFirstRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore().SubDB(SubFons)

	ok, err := s.PutFirst(ctx, []byte("k"), []byte("1"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.PutFirst(ctx, []byte("k"), []byte("2"))
	require.NoError(t, err)
	require.False(t, ok)

	v, _, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "1", string(v))
}

func TestMemStoreGetLastByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore().SubDB(SubKELs)

	prefix := "Eabc"
	require.NoError(t, s.Put(ctx, SnKey(prefix, 0), []byte("said0")))
	require.NoError(t, s.Put(ctx, SnKey(prefix, 1), []byte("said1")))
	require.NoError(t, s.Put(ctx, SnKey(prefix, 2), []byte("said2")))
	require.NoError(t, s.Put(ctx, SnKey("Eother", 5), []byte("other")))

	key, value, ok, err := s.GetLastByPrefix(ctx, PrefixOf(prefix))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "said2", string(value))
	require.Equal(t, SnKey(prefix, 2), key)
}

func TestMemStoreRangeStopsEarly(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore().SubDB(SubKELs)

	prefix := "Eabc"
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, s.Put(ctx, SnKey(prefix, i), []byte{byte(i)}))
	}

	var seen []byte
	err := s.Range(ctx, PrefixOf(prefix), func(key, value []byte) bool {
		seen = append(seen, value[0])
		return len(seen) < 3
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2}, seen)
}

func TestMemStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore().SubDB(SubEvts)
	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, s.Delete(ctx, []byte("a")))
	_, ok, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemStoreSubDBsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	a := store.SubDB(SubEvts)
	b := store.SubDB(SubSigs)

	require.NoError(t, a.Put(ctx, []byte("k"), []byte("evts-value")))
	_, ok, err := b.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}
