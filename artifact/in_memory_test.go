package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("s1", "viz-1", []byte("payload")))

	got, err := store.Get("s1", "viz-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	// Returned bytes are a copy.
	got[0] = 'X'
	again, err := store.Get("s1", "viz-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), again)
}

func TestInMemoryStoreNotFound(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get("s1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save("s1", "viz-1", nil))
	_, err = store.Get("s2", "viz-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStoreListAndDelete(t *testing.T) {
	store := NewInMemoryStore()

	ids, err := store.List("s1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save("s1", "viz-1", []byte("a")))
	require.NoError(t, store.Save("s1", "viz-2", []byte("b")))

	ids, err = store.List("s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"viz-1", "viz-2"}, ids)

	require.NoError(t, store.Delete("s1", "viz-1"))
	assert.ErrorIs(t, store.Delete("s1", "viz-1"), ErrNotFound)
	assert.ErrorIs(t, store.Delete("s2", "viz-1"), ErrNotFound)
}
