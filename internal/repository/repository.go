// Package repository содержит реализации хранилища программы лояльности:
// PostgreSQL для рабочего режима и память для локального запуска и тестов.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

var (
	// ErrUserExists возвращается при попытке создать аккаунт с занятым логином или basename.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если аккаунт не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrWalletTaken возвращается, если кошелёк привязан к другому аккаунту.
	ErrWalletTaken = errors.New("wallet linked to another account")
	// ErrDuplicateCode возвращается, если код ваучера уже выдан.
	ErrDuplicateCode = errors.New("voucher code already issued")
)

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultListLimit
	}
	return limit
}

// newTaskTransaction создаёт операцию начисления за задание. Задание с
// удержанием порождает ожидающую операцию.
func newTaskTransaction(accountID int64, task model.Task, now time.Time) model.Transaction {
	t := model.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        model.TransactionKindEarn,
		Amount:      task.Points,
		Status:      model.TransactionStatusCompleted,
		Description: task.Name,
		Reference:   "task:" + task.ID,
		CreatedAt:   now,
	}
	if task.Hold > 0 {
		settleAfter := now.Add(task.Hold)
		t.Kind = model.TransactionKindPending
		t.Status = model.TransactionStatusPending
		t.SettleAfter = &settleAfter
	}
	return t
}

func newRedeemTransaction(accountID int64, rw model.Reward, now time.Time) model.Transaction {
	return model.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Kind:        model.TransactionKindRedeem,
		Amount:      -rw.Cost,
		Status:      model.TransactionStatusCompleted,
		Description: "Redeemed: " + rw.Name,
		Reference:   fmt.Sprintf("reward:%d", rw.ID),
		CreatedAt:   now,
	}
}

// applyTaskCredit изменяет баланс аккаунта согласно операции за задание.
func applyTaskCredit(a *model.Account, t model.Transaction) model.Credit {
	before := a.Lifetime
	if t.Pending() {
		a.Pending += t.Amount
	} else {
		a.Balance += t.Amount
		a.Lifetime += t.Amount
	}
	return model.Credit{
		Transaction:    t,
		LifetimeBefore: before,
		LifetimeAfter:  a.Lifetime,
		Balance:        a.Balance,
	}
}

// applyResolution разрешает ожидающую операцию и переносит её сумму из pending
// в баланс при подтверждении.
func applyResolution(a *model.Account, t *model.Transaction, status model.TransactionStatus, now time.Time) (model.Credit, error) {
	if err := t.Resolve(status, now); err != nil {
		return model.Credit{}, err
	}
	before := a.Lifetime
	a.Pending -= t.Amount
	if a.Pending < 0 {
		a.Pending = 0
	}
	if t.Status == model.TransactionStatusCompleted {
		a.Balance += t.Amount
		a.Lifetime += t.Amount
	}
	return model.Credit{
		Transaction:    *t,
		LifetimeBefore: before,
		LifetimeAfter:  a.Lifetime,
		Balance:        a.Balance,
	}, nil
}
