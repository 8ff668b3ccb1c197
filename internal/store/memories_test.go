package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemories_AddAndRecent(t *testing.T) {
	s, _, _ := newTestStores(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := s.Memories.Add(ctx, "alice", fmt.Sprintf("fact %d", i))
		require.NoError(t, err)
	}

	all, err := s.Memories.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	recent, err := s.Memories.Recent(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "fact 4", recent[0].Text)
	assert.Equal(t, "fact 5", recent[1].Text)

	none, err := s.Memories.List(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestMemories_RejectsBlankAndClears(t *testing.T) {
	s, _, _ := newTestStores(t)
	ctx := context.Background()

	_, err := s.Memories.Add(ctx, "alice", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Memories.Add(ctx, "alice", "likes tea")
	require.NoError(t, err)
	require.NoError(t, s.Memories.Clear(ctx, "alice"))
	require.NoError(t, s.Memories.Clear(ctx, "alice"))

	items, err := s.Memories.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, items)
}
