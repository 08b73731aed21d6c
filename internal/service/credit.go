package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

// afterCredit выполняет последствия изменения баланса: уведомления, фиксацию
// новых уровней и достижений, обновление рейтинга.
func (s *Service) afterCredit(ctx context.Context, accountID int64, c *model.Credit) {
	t := c.Transaction

	switch t.Status {
	case model.TransactionStatusPending:
		s.notify(ctx, accountID, model.NotificationTransaction, model.PriorityLow,
			fmt.Sprintf("Points pending: +%d for %s", t.Amount, t.Description))
		return
	case model.TransactionStatusFailed:
		s.notify(ctx, accountID, model.NotificationTransaction, model.PriorityMedium,
			fmt.Sprintf("Pending points rejected: %d for %s", t.Amount, t.Description))
		return
	}

	s.metrics.Points(string(model.TransactionKindEarn), t.Amount)
	s.notify(ctx, accountID, model.NotificationERC20Transfer, model.PriorityMedium,
		fmt.Sprintf("Points credited: +%d for %s", t.Amount, t.Description))

	for _, reached := range s.catalog.Ladder.Crossed(c.LifetimeBefore, c.LifetimeAfter) {
		err := s.repo.RecordTierAchievement(ctx, accountID, model.TierAchievement{
			Tier:       reached.Name,
			BadgeID:    reached.BadgeID,
			Lifetime:   c.LifetimeAfter,
			AchievedAt: s.now(),
		})
		if err != nil {
			s.logger.Error("failed to record tier achievement",
				zap.Int64("account_id", accountID), zap.String("tier", string(reached.Name)), zap.Error(err))
			continue
		}
		s.metrics.TierUpgrade(string(reached.Name))
		s.notify(ctx, accountID, model.NotificationTierUpdate, model.PriorityHigh,
			fmt.Sprintf("Congratulations! You reached %s tier", reached.Name))
	}

	for _, m := range s.catalog.MilestonesCrossed(c.LifetimeBefore, c.LifetimeAfter) {
		s.notify(ctx, accountID, model.NotificationMilestone, model.PriorityHigh,
			fmt.Sprintf("Achievement unlocked: %s!", m.Name))
	}

	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		s.logger.Warn("failed to reload account for leaderboard", zap.Int64("account_id", accountID), zap.Error(err))
		return
	}
	s.updateLeaderboard(ctx, a.ID, a.Basename, a.Lifetime)
}

func (s *Service) updateLeaderboard(ctx context.Context, accountID int64, basename string, lifetime int64) {
	if s.board == nil {
		return
	}
	if err := s.board.Update(ctx, accountID, basename, lifetime); err != nil {
		s.logger.Warn("failed to update leaderboard", zap.Int64("account_id", accountID), zap.Error(err))
	}
}
