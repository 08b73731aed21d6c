package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/repository"
	"github.com/mmeshcher/base-loyalty/internal/validation"
)

const voucherPayloadDigits = 11

// RewardView описывает награду в магазине для конкретного участника.
type RewardView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Type        model.RewardType `json:"type"`
	Rarity      string           `json:"rarity"`
	Cost        int64            `json:"cost"`
	Stock       int64            `json:"stock"`
	Action      dashboard.Action `json:"action"`
}

// ListRewards возвращает награды магазина с доступностью для участника.
func (s *Service) ListRewards(ctx context.Context, accountID int64) ([]RewardView, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	rewards, err := s.repo.ListRewards(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		res = append(res, RewardView{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Type:        r.Type,
			Rarity:      r.Rarity,
			Cost:        r.Cost,
			Stock:       r.Stock,
			Action:      dashboard.RewardAction(a.Balance, r),
		})
	}
	return res, nil
}

// Redeem обменивает очки на награду и выдаёт код ваучера.
func (s *Service) Redeem(ctx context.Context, accountID, rewardID int64) (*model.Redemption, error) {
	var (
		red *model.Redemption
		err error
	)
	// Код уникален в хранилище; при редком совпадении пробуем новый.
	for attempt := 0; attempt < 3; attempt++ {
		var code string
		code, err = newVoucherCode()
		if err != nil {
			return nil, err
		}
		red, err = s.repo.Redeem(ctx, accountID, rewardID, code, s.now())
		if !errors.Is(err, repository.ErrDuplicateCode) {
			break
		}
	}

	rewardType := "unknown"
	for _, r := range s.catalog.Rewards {
		if r.ID == rewardID {
			rewardType = string(r.Type)
		}
	}
	s.metrics.Redemption(rewardType, outcome(err))

	if err != nil {
		return nil, err
	}

	s.logger.Info("reward redeemed",
		zap.Int64("account_id", accountID), zap.Int64("reward_id", rewardID), zap.Int64("cost", red.Cost))
	s.metrics.Points(string(model.TransactionKindRedeem), red.Cost)
	s.notify(ctx, accountID, model.NotificationRewardClaim, model.PriorityMedium,
		fmt.Sprintf("Successfully redeemed %s for %d points", red.RewardName, red.Cost))

	return red, nil
}

// ListRedemptions возвращает историю обменов участника.
func (s *Service) ListRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error) {
	return s.repo.ListRedemptions(ctx, accountID)
}

// newVoucherCode генерирует случайный цифровой код с контрольной цифрой Луна.
func newVoucherCode() (string, error) {
	var b strings.Builder
	b.Grow(voucherPayloadDigits + 1)
	for i := 0; i < voucherPayloadDigits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate voucher code: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	payload := b.String()

	check, ok := validation.LuhnCheckDigit(payload)
	code := payload + string(check)
	if !ok || !validation.IsValidVoucherCode(code) {
		return "", fmt.Errorf("generate voucher code: invalid code %q", code)
	}
	return code, nil
}
