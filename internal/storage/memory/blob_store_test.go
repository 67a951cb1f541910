package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()

	uri, err := store.Put(ctx, "example/abc.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "memory://example/abc.txt", uri)

	data, err := store.Get(ctx, "example/abc.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ok, err := store.Exists(ctx, "example/abc.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
}

func TestPutErrIsReturned(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	store.PutErr = errors.New("outage")

	_, err := store.Put(context.Background(), "x", "text/plain", []byte("y"))
	assert.ErrorIs(t, err, store.PutErr)
	assert.Equal(t, 0, store.Len())
}
