// Package model содержит доменные сущности программы лояльности Base Loyalty.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Account представляет участника программы лояльности.
type Account struct {
	ID                int64
	Login             string
	PasswordHash      []byte
	Basename          string
	Wallet            string
	Balance           int64
	Lifetime          int64
	Pending           int64
	WalletConnectedAt *time.Time
	CreatedAt         time.Time
}

// TierName задаёт название уровня программы лояльности.
type TierName string

const (
	TierBronze TierName = "Bronze"
	TierSilver TierName = "Silver"
	TierGold   TierName = "Gold"
)

// Tier описывает уровень программы и порог очков для него.
type Tier struct {
	Name      TierName `json:"name"`
	Threshold int64    `json:"threshold"`
	BadgeID   string   `json:"badge_id"`
	URI       string   `json:"uri"`
}

// TierAchievement фиксирует момент перехода аккаунта на уровень.
type TierAchievement struct {
	Tier       TierName  `json:"tier"`
	BadgeID    string    `json:"badge_id"`
	Lifetime   int64     `json:"lifetime"`
	AchievedAt time.Time `json:"achieved_at"`
}

// TransactionKind описывает тип операции с очками.
type TransactionKind string

const (
	TransactionKindEarn    TransactionKind = "earn"
	TransactionKindRedeem  TransactionKind = "redeem"
	TransactionKindPending TransactionKind = "pending"
)

// TransactionStatus описывает статус операции с очками.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction описывает событие, влияющее на баланс очков. Amount знаковый:
// начисления положительны, списания отрицательны.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	AccountID   int64             `json:"-"`
	Kind        TransactionKind   `json:"type"`
	Amount      int64             `json:"amount"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
	Reference   string            `json:"reference,omitempty"`
	SettleAfter *time.Time        `json:"settle_after,omitempty"`
	CreatedAt   time.Time         `json:"timestamp"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// Task описывает действие, за которое начисляются очки.
// Cooldown == 0 означает одноразовое задание. Hold > 0 означает, что
// начисление сначала попадает в pending и подтверждается позже.
type Task struct {
	ID          string
	Name        string
	Description string
	Points      int64
	Cooldown    time.Duration
	Hold        time.Duration
}

// TaskState описывает состояние задания для конкретного аккаунта.
type TaskState struct {
	Task            Task
	Completed       bool
	LastCompletedAt *time.Time
	AvailableAt     *time.Time
}

// RewardType описывает вид награды в магазине.
type RewardType string

const (
	RewardTypeNFT       RewardType = "nft"
	RewardTypeToken     RewardType = "token"
	RewardTypeBadge     RewardType = "badge"
	RewardTypeUtility   RewardType = "utility"
	RewardTypePremium   RewardType = "premium"
	RewardTypeDeveloper RewardType = "developer"
)

// Reward описывает награду, доступную для обмена на очки.
type Reward struct {
	ID          int64
	Name        string
	Description string
	Type        RewardType
	Rarity      string
	Cost        int64
	Stock       int64
}

// Redemption описывает факт обмена очков на награду.
type Redemption struct {
	ID            uuid.UUID `json:"id"`
	AccountID     int64     `json:"-"`
	RewardID      int64     `json:"reward_id"`
	RewardName    string    `json:"reward_name"`
	Cost          int64     `json:"cost"`
	Code          string    `json:"code"`
	TransactionID uuid.UUID `json:"transaction_id"`
	CreatedAt     time.Time `json:"redeemed_at"`
}

// NotificationType описывает источник уведомления.
type NotificationType string

const (
	NotificationERC20Transfer  NotificationType = "erc20_transfer"
	NotificationERC721Transfer NotificationType = "erc721_transfer"
	NotificationTransaction    NotificationType = "transaction"
	NotificationTierUpdate     NotificationType = "tier_update"
	NotificationRewardClaim    NotificationType = "reward_claim"
	NotificationMilestone      NotificationType = "milestone"
)

// Priority описывает важность уведомления.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification описывает информационное событие для аккаунта.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	AccountID int64            `json:"-"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Priority  Priority         `json:"priority"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"timestamp"`
}

// Milestone описывает достижение по накопленным очкам.
type Milestone struct {
	Name     string
	Lifetime int64
}

// Credit описывает результат операции, изменившей накопленные очки аккаунта.
type Credit struct {
	Transaction    Transaction
	LifetimeBefore int64
	LifetimeAfter  int64
	Balance        int64
}

// Balance содержит текущий, накопленный и ожидающий баланс аккаунта.
type Balance struct {
	Current  int64 `json:"current"`
	Lifetime int64 `json:"lifetime"`
	Pending  int64 `json:"pending"`
}

// LeaderboardEntry описывает позицию участника в рейтинге.
type LeaderboardEntry struct {
	Rank     int      `json:"rank"`
	Basename string   `json:"basename"`
	Points   int64    `json:"points"`
	Tier     TierName `json:"tier"`
}

// CommunityStats содержит агрегированную статистику сообщества.
type CommunityStats struct {
	TotalAccounts int64 `json:"total_accounts"`
	Active24h     int64 `json:"active_24h"`
	PointsIssued  int64 `json:"points_issued"`
	Redemptions   int64 `json:"redemptions"`
}

// TierCount содержит число участников на уровне.
type TierCount struct {
	Tier       TierName `json:"tier"`
	Count      int64    `json:"count"`
	Percentage int      `json:"percentage"`
}

// RewardClaims содержит число обменов по награде.
type RewardClaims struct {
	RewardID int64  `json:"reward_id"`
	Name     string `json:"name"`
	Claims   int64  `json:"claims"`
}

// MonthlyActivity содержит помесячную активность аккаунта.
type MonthlyActivity struct {
	Month        string `json:"month"`
	Earned       int64  `json:"earned"`
	Redeemed     int64  `json:"redeemed"`
	Transactions int64  `json:"transactions"`
}
