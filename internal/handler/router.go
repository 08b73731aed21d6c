package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/base-loyalty/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware программы лояльности.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(h.metrics.Middleware)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/ping", h.Ping)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			h.limit(r)
			r.Get("/leaderboard", h.Leaderboard)
			r.Get("/stats", h.Stats)
			r.Get("/stats/tiers", h.TierDistribution)
			r.Get("/system", h.System)
		})

		r.Route("/user", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				h.limit(r)
				r.Post("/register", h.Register)
				r.Post("/login", h.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				h.limit(r)

				r.Get("/me", h.Me)
				r.Get("/balance", h.GetBalance)
				r.Post("/wallet", h.ConnectWallet)

				r.Get("/dashboard", h.Dashboard)
				r.Put("/dashboard/tab", h.SelectTab)
				r.Post("/dashboard/notifications/toggle", h.ToggleNotifications)

				r.Get("/tasks", h.ListTasks)
				r.Post("/tasks/{taskID}/complete", h.CompleteTask)

				r.Get("/rewards", h.ListRewards)
				r.Post("/rewards/{rewardID}/redeem", h.Redeem)
				r.Get("/redemptions", h.ListRedemptions)

				r.Get("/transactions", h.ListTransactions)
				r.Get("/tiers", h.GetTiers)
				r.Get("/analytics", h.Analytics)

				r.Get("/notifications", h.ListNotifications)
				r.Post("/notifications/read-all", h.MarkAllNotificationsRead)
				r.Post("/notifications/{notificationID}/read", h.MarkNotificationRead)
				r.Get("/notifications/ws", h.StreamNotifications)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

// limit подключает ограничение частоты; внутри группы с авторизацией ключом
// служит участник, иначе адрес клиента.
func (h *Handler) limit(r chi.Router) {
	if h.limiter != nil {
		r.Use(h.limiter.Middleware)
	}
}
