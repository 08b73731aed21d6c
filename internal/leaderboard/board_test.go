package leaderboard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBoard(t *testing.T) (*Board, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b, err := New(client, "test")
	require.NoError(t, err)
	return b, mr
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, "")
	assert.Error(t, err)
}

func TestTopOrdersByPoints(t *testing.T) {
	b, _ := setupBoard(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 750))
	require.NoError(t, b.Update(ctx, 2, "bob.base.eth", 1200))
	require.NoError(t, b.Update(ctx, 3, "carol.base.eth", 300))

	top, err := b.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, Entry{AccountID: 2, Basename: "bob.base.eth", Points: 1200, Rank: 1}, top[0])
	assert.Equal(t, Entry{AccountID: 1, Basename: "alice.base.eth", Points: 750, Rank: 2}, top[1])
}

func TestUpdateOverwritesScore(t *testing.T) {
	b, mr := setupBoard(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 100))
	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 600))

	score, err := mr.ZScore("test:scores", "1")
	require.NoError(t, err)
	assert.Equal(t, float64(600), score)

	n, err := b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestUpdateOutOfOrderKeepsHigherScore(t *testing.T) {
	b, _ := setupBoard(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 100))
	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 50))

	top, err := b.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(100), top[0].Points)

	require.NoError(t, b.Update(ctx, 2, "bob.base.eth", 0))
	n, err := b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "new members are added with any score")
}

func TestRank(t *testing.T) {
	b, _ := setupBoard(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, 1, "alice.base.eth", 100))
	require.NoError(t, b.Update(ctx, 2, "bob.base.eth", 200))

	rank, err := b.Rank(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	rank, err = b.Rank(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)
}

func TestTopEmpty(t *testing.T) {
	b, _ := setupBoard(t)

	top, err := b.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}
