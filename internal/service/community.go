package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/model"
)

const (
	defaultLeaderboardSize = 10
	analyticsMonths        = 6
	rebuildBatch           = 1000
)

// Leaderboard возвращает лучших участников по накопленным очкам. Если кэш
// рейтинга недоступен, рейтинг строится по хранилищу.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	if n <= 0 {
		n = defaultLeaderboardSize
	}

	if s.board != nil {
		entries, err := s.board.Top(ctx, n)
		if err == nil {
			res := make([]model.LeaderboardEntry, 0, len(entries))
			for _, e := range entries {
				res = append(res, model.LeaderboardEntry{
					Rank:     e.Rank,
					Basename: e.Basename,
					Points:   e.Points,
					Tier:     s.catalog.Ladder.Resolve(e.Points).Name,
				})
			}
			return res, nil
		}
		s.logger.Warn("leaderboard cache unavailable, falling back to storage", zap.Error(err))
	}

	accounts, err := s.repo.TopAccounts(ctx, n)
	if err != nil {
		return nil, err
	}
	res := make([]model.LeaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		res = append(res, model.LeaderboardEntry{
			Rank:     i + 1,
			Basename: a.Basename,
			Points:   a.Lifetime,
			Tier:     s.catalog.Ladder.Resolve(a.Lifetime).Name,
		})
	}
	return res, nil
}

// RebuildLeaderboard заполняет кэш рейтинга из хранилища. Вызывается при
// запуске, когда кэш мог быть очищен.
func (s *Service) RebuildLeaderboard(ctx context.Context) error {
	if s.board == nil {
		return nil
	}

	accounts, err := s.repo.TopAccounts(ctx, rebuildBatch)
	if err != nil {
		return fmt.Errorf("load accounts for leaderboard: %w", err)
	}
	for _, a := range accounts {
		if err := s.board.Update(ctx, a.ID, a.Basename, a.Lifetime); err != nil {
			return fmt.Errorf("update leaderboard: %w", err)
		}
	}
	s.logger.Info("leaderboard rebuilt", zap.Int("accounts", len(accounts)))
	return nil
}

// CommunityStats возвращает статистику сообщества за последние сутки.
func (s *Service) CommunityStats(ctx context.Context) (*model.CommunityStats, error) {
	return s.repo.CommunityStats(ctx, s.now().Add(-24*time.Hour))
}

// TierDistribution возвращает число участников на каждом уровне.
func (s *Service) TierDistribution(ctx context.Context) ([]model.TierCount, error) {
	tiers := s.catalog.Ladder.Tiers()
	atLeast := make([]int64, len(tiers))
	for i, t := range tiers {
		n, err := s.repo.CountAccountsAtLeast(ctx, t.Threshold)
		if err != nil {
			return nil, err
		}
		atLeast[i] = n
	}

	var total int64
	if len(atLeast) > 0 {
		total = atLeast[0]
	}

	res := make([]model.TierCount, 0, len(tiers))
	for i, t := range tiers {
		count := atLeast[i]
		if i+1 < len(atLeast) {
			count -= atLeast[i+1]
		}
		pct := 0
		if total > 0 {
			pct = int(count * 100 / total)
		}
		res = append(res, model.TierCount{Tier: t.Name, Count: count, Percentage: pct})
	}
	return res, nil
}

// Analytics содержит данные вкладки аналитики.
type Analytics struct {
	Monthly          []model.MonthlyActivity `json:"monthly"`
	PopularRewards   []model.RewardClaims    `json:"popular_rewards"`
	TierDistribution []model.TierCount       `json:"tier_distribution"`
}

// GetAnalytics возвращает помесячную активность участника за последние полгода,
// популярные награды и распределение по уровням.
func (s *Service) GetAnalytics(ctx context.Context, accountID int64) (*Analytics, error) {
	now := s.now().UTC()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(analyticsMonths - 1), 0)

	monthly, err := s.repo.MonthlyActivity(ctx, accountID, since)
	if err != nil {
		return nil, err
	}
	popular, err := s.repo.RewardClaims(ctx)
	if err != nil {
		return nil, err
	}
	dist, err := s.TierDistribution(ctx)
	if err != nil {
		return nil, err
	}

	if monthly == nil {
		monthly = []model.MonthlyActivity{}
	}
	if popular == nil {
		popular = []model.RewardClaims{}
	}
	return &Analytics{Monthly: monthly, PopularRewards: popular, TierDistribution: dist}, nil
}

// SystemInfo возвращает справочные данные о контрактах и сетях программы.
func (s *Service) SystemInfo() catalog.SystemInfo {
	return s.catalog.System
}
