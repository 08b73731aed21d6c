package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

type completion struct {
	taskID string
	at     time.Time
}

// MemoryRepository хранит все данные в памяти процесса. Используется, когда
// DATABASE_URI не задан, и в тестах. Данные теряются при перезапуске.
type MemoryRepository struct {
	mu sync.Mutex

	nextAccountID int64
	accounts      map[int64]*model.Account
	logins        map[string]int64
	basenames     map[string]int64
	wallets       map[string]int64

	tasks        map[string]model.Task
	rewards      map[int64]*model.Reward
	transactions map[uuid.UUID]*model.Transaction
	txOrder      []uuid.UUID
	completions  map[int64][]completion
	redemptions  []model.Redemption
	notes        map[int64][]*model.Notification
	achievements map[int64][]model.TierAchievement
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[int64]*model.Account),
		logins:       make(map[string]int64),
		basenames:    make(map[string]int64),
		wallets:      make(map[string]int64),
		tasks:        make(map[string]model.Task),
		rewards:      make(map[int64]*model.Reward),
		transactions: make(map[uuid.UUID]*model.Transaction),
		completions:  make(map[int64][]completion),
		notes:        make(map[int64][]*model.Notification),
		achievements: make(map[int64][]model.TierAchievement),
	}
}

// Close ничего не делает.
func (m *MemoryRepository) Close() error {
	return nil
}

// Ping всегда успешен.
func (m *MemoryRepository) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryRepository) CreateAccount(_ context.Context, login string, passwordHash []byte, basename string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.logins[login]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
	}
	if _, ok := m.basenames[basename]; ok {
		return 0, fmt.Errorf("%w: %s", ErrUserExists, basename)
	}

	m.nextAccountID++
	id := m.nextAccountID
	m.accounts[id] = &model.Account{
		ID:           id,
		Login:        login,
		PasswordHash: append([]byte(nil), passwordHash...),
		Basename:     basename,
		CreatedAt:    time.Now(),
	}
	m.logins[login] = id
	m.basenames[basename] = id
	return id, nil
}

func (m *MemoryRepository) GetAccountByLogin(_ context.Context, login string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.logins[login]
	if !ok {
		return nil, ErrUserNotFound
	}
	a := *m.accounts[id]
	return &a, nil
}

func (m *MemoryRepository) GetAccount(_ context.Context, id int64) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) ConnectWallet(_ context.Context, accountID int64, wallet string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return false, ErrUserNotFound
	}
	if owner, ok := m.wallets[wallet]; ok && owner != accountID {
		return false, ErrWalletTaken
	}

	if a.Wallet != "" && a.Wallet != wallet {
		delete(m.wallets, a.Wallet)
	}
	a.Wallet = wallet
	m.wallets[wallet] = accountID

	first := a.WalletConnectedAt == nil
	if first {
		connectedAt := at
		a.WalletConnectedAt = &connectedAt
	}
	return first, nil
}

func (m *MemoryRepository) SyncCatalog(_ context.Context, tasks []model.Task, rewards []model.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	for _, rw := range rewards {
		if cur, ok := m.rewards[rw.ID]; ok {
			stock := cur.Stock
			*cur = rw
			cur.Stock = stock
			continue
		}
		cp := rw
		m.rewards[rw.ID] = &cp
	}
	return nil
}

func (m *MemoryRepository) ListRewards(_ context.Context) ([]model.Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Reward, 0, len(m.rewards))
	for _, rw := range m.rewards {
		res = append(res, *rw)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *MemoryRepository) LastCompletions(_ context.Context, accountID int64) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make(map[string]time.Time)
	for _, c := range m.completions[accountID] {
		if last, ok := res[c.taskID]; !ok || c.at.After(last) {
			res[c.taskID] = c.at
		}
	}
	return res, nil
}

func (m *MemoryRepository) lastCompletion(accountID int64, taskID string) *time.Time {
	var last *time.Time
	for _, c := range m.completions[accountID] {
		if c.taskID != taskID {
			continue
		}
		if last == nil || c.at.After(*last) {
			at := c.at
			last = &at
		}
	}
	return last
}

func (m *MemoryRepository) addTransaction(t model.Transaction) {
	cp := t
	m.transactions[t.ID] = &cp
	m.txOrder = append(m.txOrder, t.ID)
}

func (m *MemoryRepository) CompleteTask(_ context.Context, accountID int64, task model.Task, now time.Time) (*model.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrUserNotFound
	}

	if err := task.CheckCompletion(m.lastCompletion(accountID, task.ID), now); err != nil {
		return nil, err
	}

	t := newTaskTransaction(accountID, task, now)
	m.addTransaction(t)
	m.completions[accountID] = append(m.completions[accountID], completion{taskID: task.ID, at: now})

	c := applyTaskCredit(a, t)
	return &c, nil
}

func (m *MemoryRepository) Redeem(_ context.Context, accountID, rewardID int64, code string, now time.Time) (*model.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrUserNotFound
	}
	rw, ok := m.rewards[rewardID]
	if !ok {
		return nil, fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
	}

	if err := model.CheckRedeem(a.Balance, *rw); err != nil {
		return nil, err
	}
	for _, red := range m.redemptions {
		if red.Code == code {
			return nil, ErrDuplicateCode
		}
	}

	t := newRedeemTransaction(accountID, *rw, now)
	m.addTransaction(t)
	a.Balance -= rw.Cost
	rw.Stock--

	red := model.Redemption{
		ID:            uuid.New(),
		AccountID:     accountID,
		RewardID:      rw.ID,
		RewardName:    rw.Name,
		Cost:          rw.Cost,
		Code:          code,
		TransactionID: t.ID,
		CreatedAt:     now,
	}
	m.redemptions = append(m.redemptions, red)
	return &red, nil
}

func (m *MemoryRepository) ListRedemptions(_ context.Context, accountID int64) ([]model.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Redemption
	for i := len(m.redemptions) - 1; i >= 0; i-- {
		if m.redemptions[i].AccountID == accountID {
			res = append(res, m.redemptions[i])
		}
	}
	return res, nil
}

func (m *MemoryRepository) ResolveTransaction(_ context.Context, id uuid.UUID, status model.TransactionStatus, now time.Time) (*model.Credit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	a, ok := m.accounts[t.AccountID]
	if !ok {
		return nil, ErrUserNotFound
	}

	// Изменения применяются к копиям, чтобы ошибка не оставила частичного состояния.
	tx := *t
	acc := *a
	c, err := applyResolution(&acc, &tx, status, now)
	if err != nil {
		return nil, err
	}
	*t = tx
	*a = acc
	return &c, nil
}

func (m *MemoryRepository) DuePendingTransactions(_ context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.Transaction
	for _, id := range m.txOrder {
		t := m.transactions[id]
		if t.Pending() && t.SettleAfter != nil && !t.SettleAfter.After(now) {
			res = append(res, *t)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].SettleAfter.Before(*res[j].SettleAfter) })
	if n := listLimit(limit); len(res) > n {
		res = res[:n]
	}
	return res, nil
}

func (m *MemoryRepository) ListTransactions(_ context.Context, accountID int64, f model.TransactionFilter) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := listLimit(f.Limit)
	var res []model.Transaction
	for i := len(m.txOrder) - 1; i >= 0 && len(res) < limit; i-- {
		t := m.transactions[m.txOrder[i]]
		if t.AccountID == accountID && f.Match(*t) {
			res = append(res, *t)
		}
	}
	return res, nil
}

func (m *MemoryRepository) CreateNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[n.AccountID]; !ok {
		return ErrUserNotFound
	}
	cp := n
	m.notes[n.AccountID] = append(m.notes[n.AccountID], &cp)
	return nil
}

func (m *MemoryRepository) ListNotifications(_ context.Context, accountID int64) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.notes[accountID]
	res := make([]model.Notification, 0, len(list))
	for i := len(list) - 1; i >= 0 && len(res) < defaultListLimit; i-- {
		res = append(res, *list[i])
	}
	return res, nil
}

func (m *MemoryRepository) CountUnreadNotifications(_ context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, note := range m.notes[accountID] {
		if !note.Read {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) MarkNotificationRead(_ context.Context, accountID int64, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.notes[accountID] {
		if n.ID == id {
			n.MarkRead()
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

func (m *MemoryRepository) MarkAllNotificationsRead(_ context.Context, accountID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for _, n := range m.notes[accountID] {
		if !n.Read {
			n.MarkRead()
			changed++
		}
	}
	return changed, nil
}

func (m *MemoryRepository) RecordTierAchievement(_ context.Context, accountID int64, a model.TierAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.achievements[accountID] {
		if existing.Tier == a.Tier {
			return nil
		}
	}
	m.achievements[accountID] = append(m.achievements[accountID], a)
	return nil
}

func (m *MemoryRepository) ListTierAchievements(_ context.Context, accountID int64) ([]model.TierAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.achievements[accountID]
	res := make([]model.TierAchievement, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		res = append(res, list[i])
	}
	return res, nil
}

func (m *MemoryRepository) TopAccounts(_ context.Context, limit int) ([]model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		res = append(res, *a)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Lifetime != res[j].Lifetime {
			return res[i].Lifetime > res[j].Lifetime
		}
		return res[i].ID < res[j].ID
	})
	if n := listLimit(limit); len(res) > n {
		res = res[:n]
	}
	return res, nil
}

func (m *MemoryRepository) CommunityStats(_ context.Context, since time.Time) (*model.CommunityStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := model.CommunityStats{
		TotalAccounts: int64(len(m.accounts)),
		Redemptions:   int64(len(m.redemptions)),
	}
	for _, a := range m.accounts {
		s.PointsIssued += a.Lifetime
	}
	active := make(map[int64]struct{})
	for _, t := range m.transactions {
		if !t.CreatedAt.Before(since) {
			active[t.AccountID] = struct{}{}
		}
	}
	s.Active24h = int64(len(active))
	return &s, nil
}

func (m *MemoryRepository) CountAccountsAtLeast(_ context.Context, lifetime int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, a := range m.accounts {
		if a.Lifetime >= lifetime {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) RewardClaims(_ context.Context) ([]model.RewardClaims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[int64]int64)
	for _, red := range m.redemptions {
		counts[red.RewardID]++
	}
	res := make([]model.RewardClaims, 0, len(m.rewards))
	for _, rw := range m.rewards {
		res = append(res, model.RewardClaims{RewardID: rw.ID, Name: rw.Name, Claims: counts[rw.ID]})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Claims != res[j].Claims {
			return res[i].Claims > res[j].Claims
		}
		return res[i].RewardID < res[j].RewardID
	})
	return res, nil
}

func (m *MemoryRepository) MonthlyActivity(_ context.Context, accountID int64, since time.Time) ([]model.MonthlyActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byMonth := make(map[string]*model.MonthlyActivity)
	for _, t := range m.transactions {
		if t.AccountID != accountID || t.Status != model.TransactionStatusCompleted || t.CreatedAt.Before(since) {
			continue
		}
		month := t.CreatedAt.UTC().Format("2006-01")
		ma, ok := byMonth[month]
		if !ok {
			ma = &model.MonthlyActivity{Month: month}
			byMonth[month] = ma
		}
		if t.Amount > 0 {
			ma.Earned += t.Amount
		} else {
			ma.Redeemed -= t.Amount
		}
		ma.Transactions++
	}

	res := make([]model.MonthlyActivity, 0, len(byMonth))
	for _, ma := range byMonth {
		res = append(res, *ma)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Month < res[j].Month })
	return res, nil
}
