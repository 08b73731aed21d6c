// Package service реализует бизнес-логику программы лояльности Base Loyalty.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/leaderboard"
	"github.com/mmeshcher/base-loyalty/internal/metrics"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/settlement"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, login string, passwordHash []byte, basename string) (int64, error)
	GetAccountByLogin(ctx context.Context, login string) (*model.Account, error)
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ConnectWallet(ctx context.Context, accountID int64, wallet string, at time.Time) (bool, error)

	SyncCatalog(ctx context.Context, tasks []model.Task, rewards []model.Reward) error
	ListRewards(ctx context.Context) ([]model.Reward, error)

	LastCompletions(ctx context.Context, accountID int64) (map[string]time.Time, error)
	CompleteTask(ctx context.Context, accountID int64, task model.Task, now time.Time) (*model.Credit, error)

	Redeem(ctx context.Context, accountID, rewardID int64, code string, now time.Time) (*model.Redemption, error)
	ListRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error)

	ResolveTransaction(ctx context.Context, id uuid.UUID, status model.TransactionStatus, now time.Time) (*model.Credit, error)
	DuePendingTransactions(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error)
	ListTransactions(ctx context.Context, accountID int64, f model.TransactionFilter) ([]model.Transaction, error)

	CreateNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, accountID int64) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, accountID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, accountID int64, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, accountID int64) (int64, error)

	RecordTierAchievement(ctx context.Context, accountID int64, a model.TierAchievement) error
	ListTierAchievements(ctx context.Context, accountID int64) ([]model.TierAchievement, error)

	TopAccounts(ctx context.Context, limit int) ([]model.Account, error)
	CommunityStats(ctx context.Context, since time.Time) (*model.CommunityStats, error)
	CountAccountsAtLeast(ctx context.Context, lifetime int64) (int64, error)
	RewardClaims(ctx context.Context) ([]model.RewardClaims, error)
	MonthlyActivity(ctx context.Context, accountID int64, since time.Time) ([]model.MonthlyActivity, error)
}

// Leaderboard описывает кэш рейтинга участников.
type Leaderboard interface {
	Update(ctx context.Context, accountID int64, basename string, lifetime int64) error
	Top(ctx context.Context, n int) ([]leaderboard.Entry, error)
	Rank(ctx context.Context, accountID int64) (int, error)
}

// Publisher доставляет уведомления подключённым клиентам.
type Publisher interface {
	Publish(n model.Notification) error
}

// SettlementClient запрашивает решение внешней системы по ожидающей операции.
type SettlementClient interface {
	GetDecision(ctx context.Context, id uuid.UUID) (*settlement.Result, error)
}

// Options содержит необязательные зависимости сервиса.
type Options struct {
	Logger      *zap.Logger
	Leaderboard Leaderboard
	Publisher   Publisher
	Settlement  SettlementClient
	Metrics     *metrics.Metrics
	// SettleInterval задаёт период опроса ожидающих операций.
	SettleInterval time.Duration
	Now            func() time.Time
}

// Service содержит бизнес-логику программы лояльности.
type Service struct {
	repo    Repository
	catalog *catalog.Catalog
	views   *dashboard.Store

	logger         *zap.Logger
	board          Leaderboard
	publisher      Publisher
	settlement     SettlementClient
	metrics        *metrics.Metrics
	settleInterval time.Duration
	now            func() time.Time
}

const defaultSettleInterval = 10 * time.Second

// NewService создаёт сервис поверх репозитория и каталога.
func NewService(repo Repository, cat *catalog.Catalog, opts Options) *Service {
	s := &Service{
		repo:           repo,
		catalog:        cat,
		views:          dashboard.NewStore(),
		logger:         opts.Logger,
		board:          opts.Leaderboard,
		publisher:      opts.Publisher,
		settlement:     opts.Settlement,
		metrics:        opts.Metrics,
		settleInterval: opts.SettleInterval,
		now:            opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.settleInterval <= 0 {
		s.settleInterval = defaultSettleInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Init сохраняет задания и награды каталога в хранилище.
func (s *Service) Init(ctx context.Context) error {
	return s.repo.SyncCatalog(ctx, s.catalog.Tasks, s.catalog.Rewards)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
