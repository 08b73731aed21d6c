package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/repository"
	"github.com/mmeshcher/base-loyalty/internal/service"
	"github.com/mmeshcher/base-loyalty/internal/validation"
)

// statusFor сопоставляет доменную ошибку с кодом ответа. Для неизвестных
// ошибок возвращается 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidBasename),
		errors.Is(err, validation.ErrInvalidWallet),
		errors.Is(err, dashboard.ErrUnknownTab),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrUnknownPeriod):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInsufficientPoints):
		return http.StatusPaymentRequired
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrWalletTaken),
		errors.Is(err, model.ErrOutOfStock),
		errors.Is(err, model.ErrTaskCompleted),
		errors.Is(err, model.ErrTaskCooldown):
		return http.StatusConflict
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, service.ErrUnknownTask):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeError отвечает клиенту по доменной ошибке. Внутренние ошибки
// пишутся в журнал и не раскрываются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		http.Error(w, http.StatusText(status), status)
		return
	}

	var cooldown *model.CooldownError
	if errors.As(err, &cooldown) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Until(cooldown.AvailableAt))))
	}
	http.Error(w, err.Error(), status)
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
