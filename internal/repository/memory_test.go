package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

var (
	dailyLogin = model.Task{ID: "daily-login", Name: "Daily Login", Points: 50, Cooldown: 24 * time.Hour}
	referral   = model.Task{ID: "refer-friend", Name: "Refer a Friend", Points: 200, Hold: 24 * time.Hour}
	oneTime    = model.Task{ID: "quiz", Name: "Quiz", Points: 600}
	goldNFT    = model.Reward{ID: 1, Name: "Gold Tier NFT", Type: model.RewardTypeNFT, Cost: 1000, Stock: 10}
	badge      = model.Reward{ID: 3, Name: "Early Adopter Badge", Type: model.RewardTypeBadge, Cost: 250, Stock: 1}
)

func newTestRepo(t *testing.T) (*MemoryRepository, int64) {
	t.Helper()
	r := NewMemoryRepository()
	require.NoError(t, r.SyncCatalog(context.Background(),
		[]model.Task{dailyLogin, referral, oneTime},
		[]model.Reward{goldNFT, badge},
	))
	id, err := r.CreateAccount(context.Background(), "alice", []byte("hash"), "alice.base.eth")
	require.NoError(t, err)
	return r, id
}

func TestCreateAccountDuplicate(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()

	_, err := r.CreateAccount(ctx, "alice", []byte("x"), "other.base.eth")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = r.CreateAccount(ctx, "bob", []byte("x"), "alice.base.eth")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = r.GetAccountByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestConnectWallet(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	first, err := r.ConnectWallet(ctx, id, "0xabc", now)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.ConnectWallet(ctx, id, "0xabc", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, first)

	other, err := r.CreateAccount(ctx, "bob", []byte("x"), "bob.base.eth")
	require.NoError(t, err)
	_, err = r.ConnectWallet(ctx, other, "0xabc", now)
	assert.ErrorIs(t, err, ErrWalletTaken)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", a.Wallet)
	require.NotNil(t, a.WalletConnectedAt)
	assert.True(t, a.WalletConnectedAt.Equal(now))
}

func TestCompleteTaskCooldown(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	c, err := r.CompleteTask(ctx, id, dailyLogin, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.LifetimeBefore)
	assert.Equal(t, int64(50), c.LifetimeAfter)
	assert.Equal(t, int64(50), c.Balance)
	assert.Equal(t, model.TransactionKindEarn, c.Transaction.Kind)

	_, err = r.CompleteTask(ctx, id, dailyLogin, now.Add(time.Hour))
	var cd *model.CooldownError
	require.ErrorAs(t, err, &cd)
	assert.True(t, cd.AvailableAt.Equal(now.Add(24*time.Hour)))

	_, err = r.CompleteTask(ctx, id, dailyLogin, now.Add(25*time.Hour))
	require.NoError(t, err)

	last, err := r.LastCompletions(ctx, id)
	require.NoError(t, err)
	assert.True(t, last[dailyLogin.ID].Equal(now.Add(25*time.Hour)))

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.Balance)
	assert.Equal(t, int64(100), a.Lifetime)
}

func TestCompleteOneTimeTask(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := r.CompleteTask(ctx, id, oneTime, now)
	require.NoError(t, err)

	_, err = r.CompleteTask(ctx, id, oneTime, now.Add(365*24*time.Hour))
	assert.ErrorIs(t, err, model.ErrTaskCompleted)
}

func TestPendingSettlement(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	c, err := r.CompleteTask(ctx, id, referral, now)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusPending, c.Transaction.Status)
	assert.Equal(t, c.LifetimeBefore, c.LifetimeAfter)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), a.Pending)
	assert.Equal(t, int64(0), a.Balance)

	due, err := r.DuePendingTransactions(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = r.DuePendingTransactions(ctx, now.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	resolved, err := r.ResolveTransaction(ctx, due[0].ID, model.TransactionStatusCompleted, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.TransactionKindEarn, resolved.Transaction.Kind)
	assert.Equal(t, int64(200), resolved.LifetimeAfter)

	_, err = r.ResolveTransaction(ctx, due[0].ID, model.TransactionStatusFailed, now.Add(26*time.Hour))
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)

	a, err = r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Pending)
	assert.Equal(t, int64(200), a.Balance)
	assert.True(t, a.Valid())
}

func TestPendingFailureLeavesBalance(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	c, err := r.CompleteTask(ctx, id, referral, now)
	require.NoError(t, err)

	_, err = r.ResolveTransaction(ctx, c.Transaction.ID, model.TransactionStatusPending, now)
	assert.ErrorIs(t, err, model.ErrInvalidResolution)

	_, err = r.ResolveTransaction(ctx, c.Transaction.ID, model.TransactionStatusFailed, now)
	require.NoError(t, err)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.Pending)
	assert.Equal(t, int64(0), a.Balance)
	assert.Equal(t, int64(0), a.Lifetime)

	_, err = r.ResolveTransaction(ctx, uuid.New(), model.TransactionStatusCompleted, now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedeem(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := r.Redeem(ctx, id, badge.ID, "code-0", now)
	assert.ErrorIs(t, err, model.ErrInsufficientPoints)

	_, err = r.CompleteTask(ctx, id, oneTime, now)
	require.NoError(t, err)

	red, err := r.Redeem(ctx, id, badge.ID, "code-1", now)
	require.NoError(t, err)
	assert.Equal(t, "Early Adopter Badge", red.RewardName)

	_, err = r.Redeem(ctx, id, badge.ID, "code-2", now)
	assert.ErrorIs(t, err, model.ErrOutOfStock)

	_, err = r.Redeem(ctx, id, 99, "code-3", now)
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(350), a.Balance)
	assert.Equal(t, int64(600), a.Lifetime)

	txs, err := r.ListTransactions(ctx, id, model.TransactionFilter{Kind: model.TransactionKindRedeem})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-250), txs[0].Amount)
	assert.Equal(t, "Redeemed: Early Adopter Badge", txs[0].Description)

	reds, err := r.ListRedemptions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, reds, 1)
}

func TestConcurrentRedeemRespectsStock(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()
	limited := model.Reward{ID: 7, Name: "Limited", Type: model.RewardTypeBadge, Cost: 100, Stock: 3}
	require.NoError(t, r.SyncCatalog(ctx, []model.Task{oneTime}, []model.Reward{limited}))

	ids := make([]int64, 10)
	for i := range ids {
		id, err := r.CreateAccount(ctx, uuid.NewString(), []byte("x"), uuid.NewString())
		require.NoError(t, err)
		_, err = r.CompleteTask(ctx, id, oneTime, now)
		require.NoError(t, err)
		ids[i] = id
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, sold int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := r.Redeem(ctx, id, limited.ID, uuid.NewString(), now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrOutOfStock):
				sold++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, sold)

	rewards, err := r.ListRewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, int64(0), rewards[0].Stock)
}

func TestSyncCatalogKeepsStock(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()

	_, err := r.CompleteTask(ctx, id, oneTime, time.Now())
	require.NoError(t, err)
	_, err = r.Redeem(ctx, id, badge.ID, "c", time.Now())
	require.NoError(t, err)

	renamed := badge
	renamed.Name = "OG Badge"
	require.NoError(t, r.SyncCatalog(ctx, nil, []model.Reward{renamed}))

	rewards, err := r.ListRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OG Badge", rewards[1].Name)
	assert.Equal(t, int64(0), rewards[1].Stock)
}

func TestListTransactionsFilter(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := r.CompleteTask(ctx, id, dailyLogin, now.Add(-40*24*time.Hour))
	require.NoError(t, err)
	_, err = r.CompleteTask(ctx, id, dailyLogin, now)
	require.NoError(t, err)
	_, err = r.CompleteTask(ctx, id, referral, now)
	require.NoError(t, err)

	all, err := r.ListTransactions(ctx, id, model.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.TransactionKindPending, all[0].Kind)

	recent, err := r.ListTransactions(ctx, id, model.TransactionFilter{
		Kind:  model.TransactionKindEarn,
		Since: model.Period30d.Since(now),
	})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	limited, err := r.ListTransactions(ctx, id, model.TransactionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNotifications(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	n1 := model.Notification{ID: uuid.New(), AccountID: id, Type: model.NotificationTransaction, Message: "one", Priority: model.PriorityLow, CreatedAt: now}
	n2 := model.Notification{ID: uuid.New(), AccountID: id, Type: model.NotificationTierUpdate, Message: "two", Priority: model.PriorityHigh, CreatedAt: now.Add(time.Second)}
	require.NoError(t, r.CreateNotification(ctx, n1))
	require.NoError(t, r.CreateNotification(ctx, n2))

	list, err := r.ListNotifications(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Message)

	require.NoError(t, r.MarkNotificationRead(ctx, id, n1.ID))
	require.NoError(t, r.MarkNotificationRead(ctx, id, n1.ID))
	assert.ErrorIs(t, r.MarkNotificationRead(ctx, id+1, n1.ID), ErrNotFound)

	changed, err := r.MarkAllNotificationsRead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	list, err = r.ListNotifications(ctx, id)
	require.NoError(t, err)
	for _, n := range list {
		assert.True(t, n.Read)
	}
}

func TestCountUnreadNotificationsBeyondListLimit(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	total := defaultListLimit + 5
	var first uuid.UUID
	for i := 0; i < total; i++ {
		n := model.Notification{ID: uuid.New(), AccountID: id, Type: model.NotificationTransaction, Message: "earned", Priority: model.PriorityLow, CreatedAt: now.Add(time.Duration(i) * time.Second)}
		if i == 0 {
			first = n.ID
		}
		require.NoError(t, r.CreateNotification(ctx, n))
	}

	list, err := r.ListNotifications(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, defaultListLimit)

	unread, err := r.CountUnreadNotifications(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(total), unread)

	require.NoError(t, r.MarkNotificationRead(ctx, id, first))
	unread, err = r.CountUnreadNotifications(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(total-1), unread, "read state outside the listed window is counted")

	unread, err = r.CountUnreadNotifications(ctx, id+1)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestTierAchievementsIdempotent(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	silver := model.TierAchievement{Tier: model.TierSilver, Lifetime: 500, AchievedAt: now}
	require.NoError(t, r.RecordTierAchievement(ctx, id, silver))
	require.NoError(t, r.RecordTierAchievement(ctx, id, silver))
	require.NoError(t, r.RecordTierAchievement(ctx, id, model.TierAchievement{Tier: model.TierGold, Lifetime: 1000, AchievedAt: now.Add(time.Hour)}))

	list, err := r.ListTierAchievements(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.TierGold, list[0].Tier)
}

func TestAggregates(t *testing.T) {
	r, alice := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	bob, err := r.CreateAccount(ctx, "bob", []byte("x"), "bob.base.eth")
	require.NoError(t, err)

	_, err = r.CompleteTask(ctx, alice, oneTime, now)
	require.NoError(t, err)
	_, err = r.CompleteTask(ctx, bob, dailyLogin, now)
	require.NoError(t, err)
	_, err = r.Redeem(ctx, alice, badge.ID, "c", now)
	require.NoError(t, err)

	top, err := r.TopAccounts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].Login)

	stats, err := r.CommunityStats(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAccounts)
	assert.Equal(t, int64(2), stats.Active24h)
	assert.Equal(t, int64(650), stats.PointsIssued)
	assert.Equal(t, int64(1), stats.Redemptions)

	n, err := r.CountAccountsAtLeast(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claims, err := r.RewardClaims(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, badge.ID, claims[0].RewardID)
	assert.Equal(t, int64(1), claims[0].Claims)

	activity, err := r.MonthlyActivity(ctx, alice, time.Time{})
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, int64(600), activity[0].Earned)
	assert.Equal(t, int64(250), activity[0].Redeemed)
	assert.Equal(t, int64(2), activity[0].Transactions)
}

func TestRedeemDuplicateCode(t *testing.T) {
	r, id := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	_, err := r.CompleteTask(ctx, id, oneTime, now)
	require.NoError(t, err)
	_, err = r.Redeem(ctx, id, goldNFT.ID, "same", now)
	assert.ErrorIs(t, err, model.ErrInsufficientPoints)

	require.NoError(t, r.SyncCatalog(ctx, nil, []model.Reward{{ID: 9, Name: "Cheap", Type: model.RewardTypeUtility, Cost: 10, Stock: 5}}))
	_, err = r.Redeem(ctx, id, 9, "same", now)
	require.NoError(t, err)
	_, err = r.Redeem(ctx, id, 9, "same", now)
	assert.ErrorIs(t, err, ErrDuplicateCode)

	a, err := r.GetAccount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(590), a.Balance)
}
