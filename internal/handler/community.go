package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// Leaderboard возвращает лучших участников.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		badRequest(w)
		return
	}

	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeError(w, err, "leaderboard error")
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// Stats возвращает статистику сообщества.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CommunityStats(r.Context())
	if err != nil {
		h.writeError(w, err, "community stats error")
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// TierDistribution возвращает распределение участников по уровням.
func (h *Handler) TierDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.service.TierDistribution(r.Context())
	if err != nil {
		h.writeError(w, err, "tier distribution error")
		return
	}
	h.writeJSON(w, http.StatusOK, dist)
}

// System возвращает справочные данные о контрактах и сетях.
func (h *Handler) System(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.SystemInfo())
}

// Analytics возвращает аналитику текущего участника.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	a, err := h.service.GetAnalytics(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "analytics error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, a)
}

// Dashboard возвращает состояние панели и раздел активной вкладки.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	d, err := h.service.GetDashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "dashboard error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

type tabRequest struct {
	Tab string `json:"tab"`
}

// SelectTab делает вкладку панели активной.
func (h *Handler) SelectTab(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req tabRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	view, err := h.service.SelectTab(r.Context(), userID, req.Tab)
	if err != nil {
		h.writeError(w, err, "select tab error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// ToggleNotifications переключает видимость панели уведомлений.
func (h *Handler) ToggleNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	view, err := h.service.ToggleNotifications(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "toggle notifications error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}
