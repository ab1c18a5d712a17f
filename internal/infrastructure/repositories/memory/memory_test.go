package memory

import (
	"context"
	"testing"

	"skycast/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFriendDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryFriendDirectory(map[string][]string{
		"alice": {"carol", "bob", "alice"},
	})

	friends, err := d.Friends(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"bob", "carol"}, friends)

	d.AddFriend("alice", "dave")
	d.RemoveFriend("alice", "bob")
	friends, _ = d.Friends(ctx, "alice")
	assert.Equal(t, []domain.Identity{"carol", "dave"}, friends)

	none, err := d.Friends(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryOwnerLease(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryOwnerLease()

	release, err := l.Acquire(ctx, "alice")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = l.Acquire(ctx, "bob")
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	again, err := l.Acquire(ctx, "alice")
	require.NoError(t, err)

	// Releasing the first lease a second time leaves the new holder in place.
	require.NoError(t, release(ctx))
	_, err = l.Acquire(ctx, "alice")
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, again(ctx))
}
