package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Put(ctx, ObjectName("p1", "a.txt"), []byte("hello")))
	require.NoError(t, s.Put(ctx, ObjectName("p1", "b.txt"), []byte("world")))
	require.NoError(t, s.Put(ctx, ObjectName("p10", "a.txt"), []byte("other")))

	data, err := s.Get(ctx, "projects/p1/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.RemovePrefix(ctx, ProjectPrefix("p1")))
	assert.Equal(t, []string{"projects/p10/a.txt"}, s.Objects())

	_, err = s.Get(ctx, "projects/p1/a.txt")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestMemoryRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Put(ctx, ObjectName("p1", "a.txt"), []byte("hello")))
	require.NoError(t, s.Put(ctx, ObjectName("p1", "b.txt"), []byte("world")))

	require.NoError(t, s.Remove(ctx, ObjectName("p1", "a.txt")))
	assert.Equal(t, []string{"projects/p1/b.txt"}, s.Objects())
	// 不存在的对象
	assert.NoError(t, s.Remove(ctx, ObjectName("p1", "a.txt")))
}
