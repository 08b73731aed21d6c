package handler

import (
	"net/http"

	"go.uber.org/zap"
)

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Basename string `json:"basename,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Register обрабатывает регистрацию нового участника.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	if req.Login == "" || req.Password == "" {
		badRequest(w)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.Basename)
	if err != nil {
		h.writeError(w, err, "register user error")
		return
	}

	h.issue(w, userID)
}

// Login выполняет аутентификацию участника и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	if req.Login == "" || req.Password == "" {
		badRequest(w)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, err, "login user error")
		return
	}

	h.issue(w, userID)
}

func (h *Handler) issue(w http.ResponseWriter, userID int64) {
	token, err := h.authMiddleware.SetAuthCookie(w, userID)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// Me возвращает профиль текущего участника.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get profile error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// GetBalance возвращает баланс текущего участника.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "get balance error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

type walletRequest struct {
	Address string `json:"address"`
}

// ConnectWallet привязывает кошелёк к текущему участнику.
func (h *Handler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req walletRequest
	if err := decodeJSON(r, &req); err != nil || req.Address == "" {
		badRequest(w)
		return
	}

	p, err := h.service.ConnectWallet(r.Context(), userID, req.Address)
	if err != nil {
		h.writeError(w, err, "connect wallet error", zap.Int64("userID", userID))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}
