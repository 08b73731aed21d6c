// Package dashboard хранит состояние панели участника: активную вкладку и
// видимость панели уведомлений, а также подписи кнопок заданий и наград.
package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

// ErrUnknownTab возвращается при выборе вкладки не из фиксированного набора.
var ErrUnknownTab = errors.New("unknown tab")

// Tab задаёт вкладку панели.
type Tab string

const (
	TabOverview  Tab = "overview"
	TabEarn      Tab = "earn"
	TabStore     Tab = "store"
	TabAnalytics Tab = "analytics"
	TabHistory   Tab = "history"
	TabSystem    Tab = "system"
)

var tabs = []Tab{TabOverview, TabEarn, TabStore, TabAnalytics, TabHistory, TabSystem}

// Tabs возвращает вкладки в порядке отображения.
func Tabs() []Tab {
	return append([]Tab(nil), tabs...)
}

// ParseTab разбирает название вкладки.
func ParseTab(s string) (Tab, error) {
	for _, t := range tabs {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

// View описывает состояние панели участника.
type View struct {
	ActiveTab         Tab  `json:"active_tab"`
	NotificationsOpen bool `json:"notifications_open"`
}

func defaultView() View {
	return View{ActiveTab: TabOverview}
}

// Store хранит состояние панелей в памяти процесса.
type Store struct {
	mu    sync.Mutex
	views map[int64]View
}

// NewStore создаёт пустое хранилище состояний.
func NewStore() *Store {
	return &Store{views: make(map[int64]View)}
}

// Get возвращает состояние панели; новая панель открыта на обзоре со скрытыми уведомлениями.
func (s *Store) Get(accountID int64) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(accountID)
}

func (s *Store) get(accountID int64) View {
	if v, ok := s.views[accountID]; ok {
		return v
	}
	return defaultView()
}

// Select делает вкладку активной.
func (s *Store) Select(accountID int64, tab Tab) (View, error) {
	if _, err := ParseTab(string(tab)); err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.get(accountID)
	v.ActiveTab = tab
	s.views[accountID] = v
	return v, nil
}

// ToggleNotifications переключает видимость панели уведомлений.
func (s *Store) ToggleNotifications(accountID int64) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.get(accountID)
	v.NotificationsOpen = !v.NotificationsOpen
	s.views[accountID] = v
	return v
}

// Action описывает кнопку действия в карточке задания или награды.
type Action struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
}

const (
	LabelCompleteTask       = "Complete Task"
	LabelCompleted          = "Completed"
	LabelRedeemNow          = "Redeem Now"
	LabelInsufficientPoints = "Insufficient Points"
	LabelOutOfStock         = "Out of Stock"
)

// TaskAction возвращает кнопку задания. Задание на перезарядке показывает
// оставшееся время.
func TaskAction(st model.TaskState, now time.Time) Action {
	if !st.Completed {
		return Action{Label: LabelCompleteTask}
	}
	if st.AvailableAt != nil {
		return Action{Label: "Available in " + formatWait(st.AvailableAt.Sub(now)), Disabled: true}
	}
	return Action{Label: LabelCompleted, Disabled: true}
}

// RewardAction возвращает кнопку награды для указанного баланса.
func RewardAction(balance int64, r model.Reward) Action {
	switch {
	case r.Stock <= 0:
		return Action{Label: LabelOutOfStock, Disabled: true}
	case r.Cost > balance:
		return Action{Label: LabelInsufficientPoints, Disabled: true}
	}
	return Action{Label: LabelRedeemNow}
}

func formatWait(d time.Duration) string {
	if d < time.Minute {
		return "1m"
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
