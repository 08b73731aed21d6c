package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

const settlementBatchSize = 100

// StartSettlement периодически разрешает ожидающие операции, чей срок удержания
// истёк. Если задана внешняя система подтверждения, статус запрашивается у неё,
// иначе операция подтверждается по истечении срока. Блокирует до отмены контекста.
func (s *Service) StartSettlement(ctx context.Context) {
	ticker := time.NewTicker(s.settleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processSettlementBatch(ctx)
		}
	}
}

func (s *Service) processSettlementBatch(ctx context.Context) {
	due, err := s.repo.DuePendingTransactions(ctx, s.now(), settlementBatchSize)
	if err != nil {
		s.logger.Error("failed to load pending transactions", zap.Error(err))
		return
	}

	for _, t := range due {
		status, ok, wait := s.decide(ctx, t)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}
		if !ok {
			continue
		}

		s.resolve(ctx, t, status)
	}
}

// decide возвращает целевой статус операции. wait > 0 означает, что внешняя
// система ограничила частоту запросов.
func (s *Service) decide(ctx context.Context, t model.Transaction) (model.TransactionStatus, bool, time.Duration) {
	if s.settlement == nil {
		return model.TransactionStatusCompleted, true, 0
	}

	res, err := s.settlement.GetDecision(ctx, t.ID)
	if err != nil {
		s.logger.Warn("settlement request failed", zap.String("transaction_id", t.ID.String()), zap.Error(err))
		return "", false, 0
	}
	if res.StatusCode == http.StatusTooManyRequests {
		wait := res.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		return "", false, wait
	}
	if res.Decision == nil {
		return "", false, 0
	}

	status, ok := res.Decision.Final()
	return status, ok, 0
}

func (s *Service) resolve(ctx context.Context, t model.Transaction, status model.TransactionStatus) {
	credit, err := s.repo.ResolveTransaction(ctx, t.ID, status, s.now())
	if err != nil {
		if errors.Is(err, model.ErrAlreadyResolved) {
			return
		}
		s.logger.Error("failed to resolve transaction",
			zap.String("transaction_id", t.ID.String()), zap.String("status", string(status)), zap.Error(err))
		return
	}

	s.metrics.Settlement(string(credit.Transaction.Status))
	s.logger.Info("pending transaction resolved",
		zap.String("transaction_id", t.ID.String()),
		zap.Int64("account_id", t.AccountID),
		zap.String("status", string(credit.Transaction.Status)))

	s.afterCredit(ctx, t.AccountID, credit)
}
