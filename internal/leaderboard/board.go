// Package leaderboard ведёт рейтинг участников по накопленным очкам в Redis.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "loyalty:leaderboard"
	defaultTop       = 10
)

// Entry описывает позицию участника в рейтинге.
type Entry struct {
	AccountID int64
	Basename  string
	Points    int64
	Rank      int
}

// Board хранит рейтинг в сортированном множестве Redis, а имена участников в хеше.
type Board struct {
	redis     redis.Cmdable
	scoresKey string
	namesKey  string
}

// New создаёт рейтинг поверх клиента Redis.
func New(client redis.Cmdable, prefix string) (*Board, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Board{
		redis:     client,
		scoresKey: prefix + ":scores",
		namesKey:  prefix + ":names",
	}, nil
}

// Update записывает накопленные очки участника. Накопленные очки не убывают,
// поэтому запоздавшее обновление с меньшим значением счёт не понижает.
func (b *Board) Update(ctx context.Context, accountID int64, basename string, lifetime int64) error {
	member := strconv.FormatInt(accountID, 10)

	pipe := b.redis.TxPipeline()
	pipe.ZAddGT(ctx, b.scoresKey, redis.Z{Score: float64(lifetime), Member: member})
	pipe.HSet(ctx, b.namesKey, member, basename)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}
	return nil
}

// Top возвращает n лучших участников.
func (b *Board) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = defaultTop
	}

	scores, err := b.redis.ZRevRangeWithScores(ctx, b.scoresKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(scores) == 0 {
		return nil, nil
	}

	members := make([]string, len(scores))
	for i, z := range scores {
		members[i], _ = z.Member.(string)
	}

	names, err := b.redis.HMGet(ctx, b.namesKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard names: %w", err)
	}

	res := make([]Entry, 0, len(scores))
	for i, z := range scores {
		id, err := strconv.ParseInt(members[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse leaderboard member %q: %w", members[i], err)
		}
		name, _ := names[i].(string)
		res = append(res, Entry{
			AccountID: id,
			Basename:  name,
			Points:    int64(z.Score),
			Rank:      i + 1,
		})
	}
	return res, nil
}

// Rank возвращает место участника в рейтинге, начиная с единицы. Для
// участника вне рейтинга возвращается 0.
func (b *Board) Rank(ctx context.Context, accountID int64) (int, error) {
	rank, err := b.redis.ZRevRank(ctx, b.scoresKey, strconv.FormatInt(accountID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read leaderboard rank: %w", err)
	}
	return int(rank) + 1, nil
}

// Size возвращает число участников в рейтинге.
func (b *Board) Size(ctx context.Context) (int64, error) {
	n, err := b.redis.ZCard(ctx, b.scoresKey).Result()
	if err != nil {
		return 0, fmt.Errorf("read leaderboard size: %w", err)
	}
	return n, nil
}
