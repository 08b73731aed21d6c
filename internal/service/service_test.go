package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/base-loyalty/internal/catalog"
	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/leaderboard"
	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/repository"
	"github.com/mmeshcher/base-loyalty/internal/settlement"
	"github.com/mmeshcher/base-loyalty/internal/validation"
)

const testWallet = "0x52908400098527886e0f7030069857d2e4169ee7"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (p *recordingPublisher) Publish(n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

type stubSettlement struct {
	result *settlement.Result
	err    error
	calls  int
}

func (s *stubSettlement) GetDecision(ctx context.Context, id uuid.UUID) (*settlement.Result, error) {
	s.calls++
	return s.result, s.err
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeClock, int64) {
	t.Helper()

	cat, err := catalog.Default()
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now

	svc := NewService(repository.NewMemoryRepository(), cat, opts)
	require.NoError(t, svc.Init(context.Background()))

	id, err := svc.RegisterUser(context.Background(), "alice", "secret", "")
	require.NoError(t, err)
	return svc, clock, id
}

func TestHashPassword(t *testing.T) {
	a, err := hashPassword("pass")
	require.NoError(t, err)
	b, err := hashPassword("pass")
	require.NoError(t, err)

	if string(a) == string(b) {
		t.Fatalf("hashes of the same password must be salted, got %s twice", a)
	}
	if !checkPassword(a, "pass") || !checkPassword(b, "pass") {
		t.Fatalf("hash must verify the original password")
	}
	if checkPassword(a, "other") {
		t.Fatalf("hash must not verify a different password")
	}
}

type stubRepo struct {
	Repository

	createAccountErr error
	account          *model.Account
	accountErr       error
}

func (s *stubRepo) CreateAccount(ctx context.Context, login string, passwordHash []byte, basename string) (int64, error) {
	return 1, s.createAccountErr
}

func (s *stubRepo) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	return s.account, s.accountErr
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{createAccountErr: repository.ErrUserExists}
	svc := NewService(repo, nil, Options{})

	_, err := svc.RegisterUser(context.Background(), "login", "pass", "")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, Options{})

	_, err := svc.RegisterUser(context.Background(), "", "pass", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.RegisterUser(context.Background(), "bob", "pass", "not a name")
	assert.ErrorIs(t, err, ErrInvalidBasename)
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed, err := hashPassword("correct")
	require.NoError(t, err)
	repo := &stubRepo{
		account: &model.Account{ID: 1, Login: "user", PasswordHash: hashed},
	}
	svc := NewService(repo, nil, Options{})

	_, err = svc.AuthenticateUser(context.Background(), "user", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	id, err := svc.AuthenticateUser(context.Background(), "user", "correct")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	repo.account, repo.accountErr = nil, repository.ErrUserNotFound
	_, err = svc.AuthenticateUser(context.Background(), "user", "correct")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterUser_DefaultBasename(t *testing.T) {
	svc, _, id := newTestService(t, Options{})

	p, err := svc.GetProfile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice.base.eth", p.Basename)
	assert.Equal(t, model.TierBronze, p.Tier.Name)
	assert.False(t, p.WalletConnected)
}

func TestCompleteTask_OnlyThatTaskChanges(t *testing.T) {
	svc, clock, id := newTestService(t, Options{})
	ctx := context.Background()

	res, err := svc.CompleteTask(ctx, id, "daily-login")
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Balance.Current)
	assert.True(t, res.Task.Action.Disabled)

	tasks, err := svc.ListTasks(ctx, id)
	require.NoError(t, err)
	for _, tv := range tasks {
		if tv.ID == "daily-login" {
			assert.True(t, tv.Completed)
			assert.True(t, tv.Action.Disabled)
			assert.Equal(t, "Available in 24h", tv.Action.Label)
			continue
		}
		assert.False(t, tv.Completed, tv.ID)
		assert.Equal(t, dashboard.Action{Label: dashboard.LabelCompleteTask}, tv.Action, tv.ID)
	}

	_, err = svc.CompleteTask(ctx, id, "daily-login")
	var cooldown *model.CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.ErrorIs(t, err, model.ErrTaskCooldown)
	assert.Equal(t, clock.Now().Add(24*time.Hour), cooldown.AvailableAt)

	clock.Advance(24 * time.Hour)
	_, err = svc.CompleteTask(ctx, id, "daily-login")
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, id, "no-such-task")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestCompleteTask_TierUpgradeRecorded(t *testing.T) {
	svc, clock, id := newTestService(t, Options{})
	ctx := context.Background()

	for day := 0; day < 4; day++ {
		_, err := svc.CompleteTask(ctx, id, "daily-login")
		require.NoError(t, err)
		_, err = svc.CompleteTask(ctx, id, "social-share")
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	status, err := svc.GetTierStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(600), status.Progress.Lifetime)
	assert.Equal(t, model.TierSilver, status.Progress.Current.Name)
	require.Len(t, status.History, 1)
	assert.Equal(t, model.TierSilver, status.History[0].Tier)
	assert.Equal(t, int64(500), status.History[0].Lifetime, "recorded at the credit that crossed the threshold")

	list, err := svc.ListNotifications(ctx, id)
	require.NoError(t, err)
	var tierUpdates, milestones int
	for _, n := range list.Items {
		switch n.Type {
		case model.NotificationTierUpdate:
			tierUpdates++
			assert.Equal(t, "Congratulations! You reached Silver tier", n.Message)
			assert.Equal(t, model.PriorityHigh, n.Priority)
		case model.NotificationMilestone:
			milestones++
		}
	}
	assert.Equal(t, 1, tierUpdates)
	assert.Equal(t, 1, milestones)
	assert.Equal(t, len(list.Items), list.Unread)
}

func TestRedeem(t *testing.T) {
	svc, clock, id := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Redeem(ctx, id, 3)
	assert.ErrorIs(t, err, model.ErrInsufficientPoints)

	rewards, err := svc.ListRewards(ctx, id)
	require.NoError(t, err)
	for _, r := range rewards {
		assert.Equal(t, dashboard.Action{Label: dashboard.LabelInsufficientPoints, Disabled: true}, r.Action)
	}

	for day := 0; day < 2; day++ {
		_, err = svc.CompleteTask(ctx, id, "daily-login")
		require.NoError(t, err)
		_, err = svc.CompleteTask(ctx, id, "social-share")
		require.NoError(t, err)
		clock.Advance(24 * time.Hour)
	}

	red, err := svc.Redeem(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(250), red.Cost)
	assert.True(t, validation.IsValidVoucherCode(red.Code), red.Code)

	b, err := svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.Current)
	assert.Equal(t, int64(300), b.Lifetime)

	history, err := svc.ListTransactions(ctx, id, HistoryQuery{Kind: "redeem"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(-250), history[0].Amount)

	_, err = svc.ListTransactions(ctx, id, HistoryQuery{Kind: "bogus"})
	assert.ErrorIs(t, err, model.ErrUnknownKind)
	_, err = svc.ListTransactions(ctx, id, HistoryQuery{Period: "1y"})
	assert.ErrorIs(t, err, model.ErrUnknownPeriod)
}

func TestVoucherCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := newVoucherCode()
		require.NoError(t, err)
		assert.Len(t, code, voucherPayloadDigits+1)
		assert.True(t, validation.IsValidVoucherCode(code), code)
	}
}

func TestSettlement_CompletesOnHoldExpiry(t *testing.T) {
	svc, clock, id := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.CompleteTask(ctx, id, "refer-friend")
	require.NoError(t, err)

	b, err := svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Current: 0, Lifetime: 0, Pending: 200}, *b)

	svc.processSettlementBatch(ctx)
	b, err = svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.Pending, "hold has not expired yet")

	clock.Advance(25 * time.Hour)
	svc.processSettlementBatch(ctx)

	b, err = svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{Current: 200, Lifetime: 200, Pending: 0}, *b)

	txs, err := svc.ListTransactions(ctx, id, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TransactionStatusCompleted, txs[0].Status)
	assert.Equal(t, model.TransactionKindEarn, txs[0].Kind)
}

func TestSettlement_ExternalDecision(t *testing.T) {
	client := &stubSettlement{result: &settlement.Result{
		StatusCode: http.StatusOK,
		Decision:   &settlement.Decision{Status: settlement.StatusInvalid},
	}}
	svc, clock, id := newTestService(t, Options{Settlement: client})
	ctx := context.Background()

	_, err := svc.CompleteTask(ctx, id, "refer-friend")
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)

	client.result.Decision.Status = settlement.StatusProcessing
	svc.processSettlementBatch(ctx)
	b, err := svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.Pending)

	client.result.Decision.Status = settlement.StatusInvalid
	svc.processSettlementBatch(ctx)
	b, err = svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.Balance{}, *b)
	assert.Equal(t, 2, client.calls)

	list, err := svc.ListNotifications(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, list.Items)
	assert.True(t, strings.HasPrefix(list.Items[0].Message, "Pending points rejected"), list.Items[0].Message)
}

func TestSettlement_RateLimited(t *testing.T) {
	client := &stubSettlement{result: &settlement.Result{
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: 10 * time.Millisecond,
	}}
	svc, clock, id := newTestService(t, Options{Settlement: client})
	ctx := context.Background()

	_, err := svc.CompleteTask(ctx, id, "refer-friend")
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)

	svc.processSettlementBatch(ctx)

	b, err := svc.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(200), b.Pending)
}

func TestStartSettlement_StopsOnCancel(t *testing.T) {
	svc, _, _ := newTestService(t, Options{SettleInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartSettlement(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("settlement worker did not stop after cancel")
	}
}

func TestConnectWallet_WelcomeOnce(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, id := newTestService(t, Options{Publisher: pub})
	ctx := context.Background()

	_, err := svc.ConnectWallet(ctx, id, "not-an-address")
	assert.ErrorIs(t, err, validation.ErrInvalidWallet)

	p, err := svc.ConnectWallet(ctx, id, testWallet)
	require.NoError(t, err)
	assert.True(t, p.WalletConnected)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", p.Wallet)

	_, err = svc.ConnectWallet(ctx, id, testWallet)
	require.NoError(t, err)

	list, err := svc.ListNotifications(ctx, id)
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Len(t, pub.sent, 2)

	var welcome bool
	for _, n := range list.Items {
		if n.Type == model.NotificationTierUpdate {
			welcome = true
			assert.Equal(t, "Welcome to Bronze tier! Earn 500 more points to reach Silver", n.Message)
		}
	}
	assert.True(t, welcome)

	require.NoError(t, svc.MarkNotificationRead(ctx, id, list.Items[0].ID))
	n, err := svc.MarkAllNotificationsRead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err = svc.ListNotifications(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, list.Unread)
}

func TestUnreadCountCoversWholeHistory(t *testing.T) {
	svc, clock, id := newTestService(t, Options{})
	ctx := context.Background()

	const total = 120
	for i := 0; i < total; i++ {
		svc.notify(ctx, id, model.NotificationTransaction, model.PriorityLow, "Earned 10 points")
		clock.Advance(time.Second)
	}

	list, err := svc.ListNotifications(ctx, id)
	require.NoError(t, err)
	assert.Less(t, len(list.Items), total)
	assert.Equal(t, total, list.Unread)

	d, err := svc.GetDashboard(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d.Overview)
	assert.Equal(t, total, d.Overview.Unread)
}

func TestDashboard_OneSectionPerTab(t *testing.T) {
	svc, _, id := newTestService(t, Options{})
	ctx := context.Background()

	d, err := svc.GetDashboard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dashboard.TabOverview, d.ActiveTab)
	assert.False(t, d.NotificationsOpen)

	for _, tab := range dashboard.Tabs() {
		view, err := svc.SelectTab(ctx, id, string(tab))
		require.NoError(t, err)
		assert.Equal(t, tab, view.ActiveTab)

		d, err := svc.GetDashboard(ctx, id)
		require.NoError(t, err)

		sections := map[dashboard.Tab]bool{
			dashboard.TabOverview:  d.Overview != nil,
			dashboard.TabEarn:      d.Earn != nil,
			dashboard.TabStore:     d.Store != nil,
			dashboard.TabAnalytics: d.Analytics != nil,
			dashboard.TabHistory:   d.History != nil,
			dashboard.TabSystem:    d.System != nil,
		}
		for other, present := range sections {
			assert.Equal(t, other == tab, present, "tab %s, section %s", tab, other)
		}
	}

	_, err = svc.SelectTab(ctx, id, "settings")
	assert.ErrorIs(t, err, dashboard.ErrUnknownTab)
}

func TestToggleNotificationsTwice(t *testing.T) {
	svc, _, id := newTestService(t, Options{})
	ctx := context.Background()

	v, err := svc.ToggleNotifications(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.NotificationsOpen)

	v, err = svc.ToggleNotifications(ctx, id)
	require.NoError(t, err)
	assert.False(t, v.NotificationsOpen)

	_, err = svc.ToggleNotifications(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestCommunity(t *testing.T) {
	svc, _, id := newTestService(t, Options{})
	ctx := context.Background()

	bob, err := svc.RegisterUser(ctx, "bob", "secret", "bob.base.eth")
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, bob, "social-share")
	require.NoError(t, err)

	top, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, model.LeaderboardEntry{Rank: 1, Basename: "bob.base.eth", Points: 100, Tier: model.TierBronze}, top[0])
	assert.Equal(t, "alice.base.eth", top[1].Basename)

	dist, err := svc.TierDistribution(ctx)
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.Equal(t, model.TierCount{Tier: model.TierBronze, Count: 2, Percentage: 100}, dist[0])
	assert.Equal(t, int64(0), dist[1].Count)

	stats, err := svc.CommunityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalAccounts)

	a, err := svc.GetAnalytics(ctx, id)
	require.NoError(t, err)
	assert.Len(t, a.PopularRewards, 4)
	assert.NotNil(t, a.Monthly)

	assert.NotEmpty(t, svc.SystemInfo().Networks)
}

func TestLeaderboard_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	board, err := leaderboard.New(rdb, "test")
	require.NoError(t, err)

	svc, _, id := newTestService(t, Options{Leaderboard: board})
	ctx := context.Background()

	_, err = svc.CompleteTask(ctx, id, "social-share")
	require.NoError(t, err)

	top, err := svc.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, model.LeaderboardEntry{Rank: 1, Basename: "alice.base.eth", Points: 100, Tier: model.TierBronze}, top[0])

	mr.FlushAll()
	require.NoError(t, svc.RebuildLeaderboard(ctx))

	d, err := svc.GetDashboard(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d.Overview)
	assert.Equal(t, 1, d.Overview.Rank)
	assert.Equal(t, int64(100), d.Overview.Balance.Current)
}
