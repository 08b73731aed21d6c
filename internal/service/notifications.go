package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

// NotificationList содержит уведомления участника и число непрочитанных.
type NotificationList struct {
	Items  []model.Notification `json:"items"`
	Unread int                  `json:"unread"`
}

// ListNotifications возвращает последние уведомления участника, новые первыми.
// Unread считается по всем уведомлениям, а не только по возвращённым.
func (s *Service) ListNotifications(ctx context.Context, accountID int64) (*NotificationList, error) {
	items, err := s.repo.ListNotifications(ctx, accountID)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnreadNotifications(ctx, accountID)
	if err != nil {
		return nil, err
	}
	res := &NotificationList{Items: items, Unread: int(unread)}
	if res.Items == nil {
		res.Items = []model.Notification{}
	}
	return res, nil
}

// MarkNotificationRead помечает уведомление прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, accountID int64, id uuid.UUID) error {
	return s.repo.MarkNotificationRead(ctx, accountID, id)
}

// MarkAllNotificationsRead помечает прочитанными все уведомления участника.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, accountID int64) (int64, error) {
	return s.repo.MarkAllNotificationsRead(ctx, accountID)
}

// notify сохраняет уведомление и отправляет его подключённым клиентам. Ошибки
// только пишутся в журнал: уведомление не должно отменять уже выполненную операцию.
func (s *Service) notify(ctx context.Context, accountID int64, typ model.NotificationType, priority model.Priority, message string) {
	n := model.Notification{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Message:   message,
		Priority:  priority,
		CreatedAt: s.now(),
	}

	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.Error("failed to store notification",
			zap.Int64("account_id", accountID), zap.String("type", string(typ)), zap.Error(err))
		return
	}
	s.metrics.Notification(string(typ))

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(n); err != nil {
		s.logger.Warn("failed to publish notification", zap.Int64("account_id", accountID), zap.Error(err))
	}
}

// welcome создаёт приветственные уведомления при первом подключении кошелька.
func (s *Service) welcome(ctx context.Context, a *model.Account) {
	s.notify(ctx, a.ID, model.NotificationTransaction, model.PriorityLow,
		fmt.Sprintf("Wallet %s connected to %s", shortAddress(a.Wallet), a.Basename))

	p := s.catalog.Ladder.Progress(a.Lifetime)
	if p.Next == nil {
		s.notify(ctx, a.ID, model.NotificationTierUpdate, model.PriorityHigh,
			fmt.Sprintf("Welcome back! You hold the top %s tier", p.Current.Name))
		return
	}
	s.notify(ctx, a.ID, model.NotificationTierUpdate, model.PriorityHigh,
		fmt.Sprintf("Welcome to %s tier! Earn %d more points to reach %s", p.Current.Name, p.PointsToNext, p.Next.Name))
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
