package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/service"
)

// ListTransactions возвращает историю операций с фильтром по типу и периоду.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	limit, ok := queryInt(r, "limit")
	if !ok {
		badRequest(w)
		return
	}

	q := r.URL.Query()
	txs, err := h.service.ListTransactions(r.Context(), userID, service.HistoryQuery{
		Kind:   q.Get("kind"),
		Period: q.Get("period"),
		Limit:  limit,
	})
	if err != nil {
		h.writeError(w, err, "list transactions error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// GetTiers возвращает уровень текущего участника и историю уровней.
func (h *Handler) GetTiers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetTierStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get tiers error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// ListNotifications возвращает уведомления текущего участника.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListNotifications(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list notifications error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// MarkNotificationRead помечает уведомление прочитанным.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		badRequest(w)
		return
	}

	if err := h.service.MarkNotificationRead(r.Context(), userID, id); err != nil {
		h.writeError(w, err, "mark notification error", zap.Int64("userID", userID))
		return
	}
	w.WriteHeader(http.StatusOK)
}

type markAllResponse struct {
	Updated int64 `json:"updated"`
}

// MarkAllNotificationsRead помечает прочитанными все уведомления участника.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.service.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "mark all notifications error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, markAllResponse{Updated: n})
}

// StreamNotifications переводит соединение на websocket и доставляет новые
// уведомления участника.
func (h *Handler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if h.stream == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	h.stream.Serve(w, r, userID)
}
