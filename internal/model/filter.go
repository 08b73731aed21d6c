package model

import (
	"errors"
	"time"
)

// ErrUnknownPeriod возвращается для неизвестного периода выборки истории.
var ErrUnknownPeriod = errors.New("unknown period")

// ErrUnknownKind возвращается для неизвестного типа операции.
var ErrUnknownKind = errors.New("unknown transaction kind")

// Period задаёт окно выборки истории операций.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
	PeriodAll Period = "all"
)

// ParsePeriod разбирает период; пустая строка означает всю историю.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodAll:
		return PeriodAll, nil
	case Period7d, Period30d, Period90d:
		return Period(s), nil
	}
	return "", ErrUnknownPeriod
}

// Since возвращает нижнюю границу периода относительно now. Для всей истории
// возвращается нулевое время.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case Period7d:
		return now.AddDate(0, 0, -7)
	case Period30d:
		return now.AddDate(0, 0, -30)
	case Period90d:
		return now.AddDate(0, 0, -90)
	}
	return time.Time{}
}

// ParseKind разбирает тип операции; пустая строка означает все типы.
func ParseKind(s string) (TransactionKind, error) {
	switch TransactionKind(s) {
	case "":
		return "", nil
	case TransactionKindEarn, TransactionKindRedeem, TransactionKindPending:
		return TransactionKind(s), nil
	}
	return "", ErrUnknownKind
}

// TransactionFilter задаёт условия выборки истории операций.
type TransactionFilter struct {
	Kind  TransactionKind
	Since time.Time
	Limit int
}

// Match сообщает, подходит ли операция под фильтр.
func (f TransactionFilter) Match(tx Transaction) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && tx.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
