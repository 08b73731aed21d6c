// Package handler содержит HTTP-обработчики API программы лояльности.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/metrics"
	"github.com/mmeshcher/base-loyalty/internal/middleware"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	RegisterUser(ctx context.Context, login, password, basename string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetProfile(ctx context.Context, accountID int64) (*service.Profile, error)
	GetBalance(ctx context.Context, accountID int64) (*model.Balance, error)
	ConnectWallet(ctx context.Context, accountID int64, address string) (*service.Profile, error)

	ListTasks(ctx context.Context, accountID int64) ([]service.TaskView, error)
	CompleteTask(ctx context.Context, accountID int64, taskID string) (*service.TaskResult, error)

	ListRewards(ctx context.Context, accountID int64) ([]service.RewardView, error)
	Redeem(ctx context.Context, accountID, rewardID int64) (*model.Redemption, error)
	ListRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error)

	ListTransactions(ctx context.Context, accountID int64, q service.HistoryQuery) ([]model.Transaction, error)
	GetTierStatus(ctx context.Context, accountID int64) (*service.TierStatus, error)

	ListNotifications(ctx context.Context, accountID int64) (*service.NotificationList, error)
	MarkNotificationRead(ctx context.Context, accountID int64, id uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, accountID int64) (int64, error)

	Leaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error)
	CommunityStats(ctx context.Context) (*model.CommunityStats, error)
	TierDistribution(ctx context.Context) ([]model.TierCount, error)
	GetAnalytics(ctx context.Context, accountID int64) (*service.Analytics, error)
	SystemInfo() catalog.SystemInfo

	GetDashboard(ctx context.Context, accountID int64) (*service.Dashboard, error)
	SelectTab(ctx context.Context, accountID int64, tab string) (dashboard.View, error)
	ToggleNotifications(ctx context.Context, accountID int64) (dashboard.View, error)
}

// Streamer подключает клиента к потоку уведомлений.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, accountID int64)
}

// Options содержит необязательные зависимости обработчика.
type Options struct {
	Stream  Streamer
	Metrics *metrics.Metrics
	Limiter *middleware.RateLimiter
}

// Handler реализует HTTP-обработчики API программы лояльности.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware

	stream  Streamer
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		stream:         opts.Stream,
		metrics:        opts.Metrics,
		limiter:        opts.Limiter,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

// currentUser извлекает идентификатор участника; при отсутствии отвечает 401.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Ping проверяет доступность хранилища.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("ping error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
