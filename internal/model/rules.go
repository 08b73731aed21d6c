package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientPoints возвращается, если баланса не хватает для обмена.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrOutOfStock возвращается, если награда закончилась.
	ErrOutOfStock = errors.New("reward out of stock")
	// ErrTaskCompleted возвращается при повторном выполнении одноразового задания.
	ErrTaskCompleted = errors.New("task already completed")
	// ErrTaskCooldown возвращается, если задание ещё не доступно повторно.
	ErrTaskCooldown = errors.New("task is cooling down")
	// ErrAlreadyResolved возвращается при повторном разрешении ожидающей операции.
	ErrAlreadyResolved = errors.New("transaction already resolved")
	// ErrInvalidResolution возвращается, если целевой статус не является финальным.
	ErrInvalidResolution = errors.New("pending transaction can only resolve to completed or failed")
)

// CooldownError сообщает, когда задание снова станет доступно.
type CooldownError struct {
	TaskID      string
	AvailableAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("task %s available at %s", e.TaskID, e.AvailableAt.Format(time.RFC3339))
}

// Unwrap позволяет сравнивать ошибку с ErrTaskCooldown.
func (e *CooldownError) Unwrap() error {
	return ErrTaskCooldown
}

// Repeatable сообщает, можно ли выполнять задание повторно.
func (t Task) Repeatable() bool {
	return t.Cooldown > 0
}

// NextAvailable возвращает момент, начиная с которого задание снова доступно
// после выполнения в last. Для одноразового задания ok == false.
func (t Task) NextAvailable(last time.Time) (time.Time, bool) {
	if !t.Repeatable() {
		return time.Time{}, false
	}
	return last.Add(t.Cooldown), true
}

// CheckCompletion проверяет, может ли аккаунт выполнить задание в момент now.
// last == nil означает, что задание ещё не выполнялось.
func (t Task) CheckCompletion(last *time.Time, now time.Time) error {
	if last == nil {
		return nil
	}
	next, ok := t.NextAvailable(*last)
	if !ok {
		return ErrTaskCompleted
	}
	if now.Before(next) {
		return &CooldownError{TaskID: t.ID, AvailableAt: next}
	}
	return nil
}

// State строит представление задания для аккаунта на момент now.
func (t Task) State(last *time.Time, now time.Time) TaskState {
	st := TaskState{Task: t, LastCompletedAt: last}
	if last == nil {
		return st
	}
	next, ok := t.NextAvailable(*last)
	if !ok {
		st.Completed = true
		return st
	}
	if now.Before(next) {
		st.Completed = true
		st.AvailableAt = &next
	}
	return st
}

// CheckRedeem проверяет условия обмена: баланс не меньше стоимости и остаток больше нуля.
func CheckRedeem(balance int64, r Reward) error {
	if r.Stock <= 0 {
		return ErrOutOfStock
	}
	if balance < r.Cost {
		return ErrInsufficientPoints
	}
	return nil
}

// Pending сообщает, ожидает ли операция разрешения.
func (tx Transaction) Pending() bool {
	return tx.Status == TransactionStatusPending
}

// Resolve переводит ожидающую операцию в финальный статус. Завершённые и
// отклонённые операции не меняются.
func (tx *Transaction) Resolve(status TransactionStatus, at time.Time) error {
	if status != TransactionStatusCompleted && status != TransactionStatusFailed {
		return ErrInvalidResolution
	}
	if !tx.Pending() {
		return ErrAlreadyResolved
	}
	tx.Status = status
	if status == TransactionStatusCompleted {
		tx.Kind = TransactionKindEarn
	}
	tx.ResolvedAt = &at
	return nil
}

// MarkRead помечает уведомление прочитанным. Обратный переход невозможен.
func (n *Notification) MarkRead() {
	n.Read = true
}

// Valid проверяет инварианты баланса аккаунта.
func (a Account) Valid() bool {
	return a.Balance >= 0 && a.Pending >= 0 && a.Lifetime >= a.Balance
}
