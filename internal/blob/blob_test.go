package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachBucket(t *testing.T, fn func(t *testing.T, b Bucket)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryBucket())
	})
	t.Run("badger", func(t *testing.T) {
		b, err := OpenBadgerBucket(BadgerConfig{InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		fn(t, b)
	})
}

func TestBucketPutGet(t *testing.T) {
	forEachBucket(t, func(t *testing.T, b Bucket) {
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "wf-1/tab-1/step-1/2", []byte("payload")))

		data, err := b.Get(ctx, "wf-1/tab-1/step-1/2")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
	})
}

func TestBucketGetMissing(t *testing.T) {
	forEachBucket(t, func(t *testing.T, b Bucket) {
		_, err := b.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBucketOverwrite(t *testing.T) {
	forEachBucket(t, func(t *testing.T, b Bucket) {
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("one")))
		require.NoError(t, b.Put(ctx, "k", []byte("two")))

		data, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), data)
	})
}

func TestBucketDelete(t *testing.T) {
	forEachBucket(t, func(t *testing.T, b Bucket) {
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "k", []byte("v")))
		require.NoError(t, b.Delete(ctx, "k"))

		_, err := b.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting a missing key is not an error.
		assert.NoError(t, b.Delete(ctx, "k"))
	})
}

func TestBucketDeletePrefix(t *testing.T) {
	forEachBucket(t, func(t *testing.T, b Bucket) {
		ctx := context.Background()
		require.NoError(t, b.Put(ctx, "wf-1/tab-1/step-1/2", []byte("a")))
		require.NoError(t, b.Put(ctx, "wf-1/tab-1/step-1/3", []byte("b")))
		require.NoError(t, b.Put(ctx, "wf-1/tab-1/step-2/3", []byte("c")))

		require.NoError(t, b.DeletePrefix(ctx, "wf-1/tab-1/step-1/"))

		_, err := b.Get(ctx, "wf-1/tab-1/step-1/2")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = b.Get(ctx, "wf-1/tab-1/step-1/3")
		assert.ErrorIs(t, err, ErrNotFound)

		data, err := b.Get(ctx, "wf-1/tab-1/step-2/3")
		require.NoError(t, err)
		assert.Equal(t, []byte("c"), data)
	})
}

func TestMemoryBucketCopiesData(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBucket()
	src := []byte("original")
	require.NoError(t, b.Put(ctx, "k", src))
	src[0] = 'X'

	data, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}
