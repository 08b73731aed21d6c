package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/tier"
)

const recentTransactions = 5

// Overview содержит данные вкладки обзора.
type Overview struct {
	Profile     *Profile                 `json:"profile"`
	Balance     model.Balance            `json:"balance"`
	Progress    tier.Progress            `json:"progress"`
	Recent      []model.Transaction      `json:"recent_transactions"`
	Unread      int                      `json:"unread_notifications"`
	Rank        int                      `json:"rank,omitempty"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
	Stats       *model.CommunityStats    `json:"community"`
}

// Dashboard содержит состояние панели и раздел активной вкладки. Заполнен
// ровно один раздел.
type Dashboard struct {
	dashboard.View

	Overview  *Overview            `json:"overview,omitempty"`
	Earn      *[]TaskView          `json:"earn,omitempty"`
	Store     *[]RewardView        `json:"store,omitempty"`
	Analytics *Analytics           `json:"analytics,omitempty"`
	History   *[]model.Transaction `json:"history,omitempty"`
	System    *catalog.SystemInfo  `json:"system,omitempty"`
}

// GetDashboard возвращает панель участника с разделом активной вкладки.
func (s *Service) GetDashboard(ctx context.Context, accountID int64) (*Dashboard, error) {
	view := s.views.Get(accountID)
	d := &Dashboard{View: view}

	switch view.ActiveTab {
	case dashboard.TabEarn:
		tasks, err := s.ListTasks(ctx, accountID)
		if err != nil {
			return nil, err
		}
		d.Earn = &tasks
	case dashboard.TabStore:
		rewards, err := s.ListRewards(ctx, accountID)
		if err != nil {
			return nil, err
		}
		d.Store = &rewards
	case dashboard.TabAnalytics:
		a, err := s.GetAnalytics(ctx, accountID)
		if err != nil {
			return nil, err
		}
		d.Analytics = a
	case dashboard.TabHistory:
		txs, err := s.ListTransactions(ctx, accountID, HistoryQuery{})
		if err != nil {
			return nil, err
		}
		d.History = &txs
	case dashboard.TabSystem:
		info := s.SystemInfo()
		d.System = &info
	default:
		o, err := s.overview(ctx, accountID)
		if err != nil {
			return nil, err
		}
		d.Overview = o
	}
	return d, nil
}

func (s *Service) overview(ctx context.Context, accountID int64) (*Overview, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	recent, err := s.repo.ListTransactions(ctx, accountID, model.TransactionFilter{Limit: recentTransactions})
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []model.Transaction{}
	}

	unread, err := s.repo.CountUnreadNotifications(ctx, accountID)
	if err != nil {
		return nil, err
	}

	top, err := s.Leaderboard(ctx, defaultLeaderboardSize)
	if err != nil {
		return nil, err
	}

	stats, err := s.CommunityStats(ctx)
	if err != nil {
		return nil, err
	}

	o := &Overview{
		Profile:     s.profile(a),
		Balance:     balanceOf(a),
		Progress:    s.catalog.Ladder.Progress(a.Lifetime),
		Recent:      recent,
		Unread:      int(unread),
		Leaderboard: top,
		Stats:       stats,
	}

	if s.board != nil {
		rank, err := s.board.Rank(ctx, accountID)
		if err != nil {
			s.logger.Warn("failed to read leaderboard rank", zap.Int64("account_id", accountID), zap.Error(err))
		}
		o.Rank = rank
	}
	return o, nil
}

// SelectTab делает вкладку активной. Неизвестная вкладка отклоняется с
// dashboard.ErrUnknownTab.
func (s *Service) SelectTab(ctx context.Context, accountID int64, tab string) (dashboard.View, error) {
	t, err := dashboard.ParseTab(tab)
	if err != nil {
		return dashboard.View{}, err
	}
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return dashboard.View{}, err
	}
	return s.views.Select(accountID, t)
}

// ToggleNotifications переключает видимость панели уведомлений.
func (s *Service) ToggleNotifications(ctx context.Context, accountID int64) (dashboard.View, error) {
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return dashboard.View{}, err
	}
	return s.views.ToggleNotifications(accountID), nil
}
