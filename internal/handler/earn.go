package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ListTasks возвращает задания с состоянием для текущего участника.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	tasks, err := h.service.ListTasks(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list tasks error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, tasks)
}

// CompleteTask отмечает задание выполненным.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	taskID := chi.URLParam(r, "taskID")
	res, err := h.service.CompleteTask(r.Context(), userID, taskID)
	if err != nil {
		h.writeError(w, err, "complete task error", zap.Int64("userID", userID), zap.String("task", taskID))
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ListRewards возвращает награды магазина.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rewards, err := h.service.ListRewards(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list rewards error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, rewards)
}

// Redeem обменивает очки на награду.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rewardID, err := strconv.ParseInt(chi.URLParam(r, "rewardID"), 10, 64)
	if err != nil || rewardID <= 0 {
		badRequest(w)
		return
	}

	red, err := h.service.Redeem(r.Context(), userID, rewardID)
	if err != nil {
		h.writeError(w, err, "redeem error", zap.Int64("userID", userID), zap.Int64("reward", rewardID))
		return
	}
	h.writeJSON(w, http.StatusOK, red)
}

// ListRedemptions возвращает историю обменов текущего участника.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListRedemptions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list redemptions error", zap.Int64("userID", userID))
		return
	}

	if len(list) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}
