package service

import (
	"context"

	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/tier"
)

// HistoryQuery задаёт фильтр истории операций в виде строк запроса.
type HistoryQuery struct {
	Kind   string
	Period string
	Limit  int
}

// ListTransactions возвращает историю операций участника, новые первыми.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, q HistoryQuery) ([]model.Transaction, error) {
	kind, err := model.ParseKind(q.Kind)
	if err != nil {
		return nil, err
	}
	period, err := model.ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, accountID, model.TransactionFilter{
		Kind:  kind,
		Since: period.Since(s.now()),
		Limit: q.Limit,
	})
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	return txs, nil
}

// TierStatus описывает текущий уровень участника, прогресс и историю переходов.
type TierStatus struct {
	Progress tier.Progress           `json:"progress"`
	Tiers    []model.Tier            `json:"tiers"`
	History  []model.TierAchievement `json:"history"`
}

// GetTierStatus возвращает уровень участника и историю уровней.
func (s *Service) GetTierStatus(ctx context.Context, accountID int64) (*TierStatus, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListTierAchievements(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []model.TierAchievement{}
	}

	return &TierStatus{
		Progress: s.catalog.Ladder.Progress(a.Lifetime),
		Tiers:    s.catalog.Ladder.Tiers(),
		History:  history,
	}, nil
}
