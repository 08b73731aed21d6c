package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/base-loyalty/internal/dashboard"
	"github.com/mmeshcher/base-loyalty/internal/model"
)

// ErrUnknownTask возвращается для задания, которого нет в каталоге.
var ErrUnknownTask = errors.New("unknown task")

// TaskView описывает задание в карточке вкладки заработка.
type TaskView struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Points          int64            `json:"points"`
	Repeatable      bool             `json:"repeatable"`
	Completed       bool             `json:"completed"`
	LastCompletedAt *time.Time       `json:"last_completed_at,omitempty"`
	AvailableAt     *time.Time       `json:"available_at,omitempty"`
	Action          dashboard.Action `json:"action"`
}

// TaskResult описывает результат выполнения задания.
type TaskResult struct {
	Task        TaskView          `json:"task"`
	Transaction model.Transaction `json:"-"`
	Balance     model.Balance     `json:"balance"`
	Tier        model.Tier        `json:"tier"`
}

func taskView(st model.TaskState, now time.Time) TaskView {
	return TaskView{
		ID:              st.Task.ID,
		Name:            st.Task.Name,
		Description:     st.Task.Description,
		Points:          st.Task.Points,
		Repeatable:      st.Task.Repeatable(),
		Completed:       st.Completed,
		LastCompletedAt: st.LastCompletedAt,
		AvailableAt:     st.AvailableAt,
		Action:          dashboard.TaskAction(st, now),
	}
}

// ListTasks возвращает задания каталога с состоянием для участника.
func (s *Service) ListTasks(ctx context.Context, accountID int64) ([]TaskView, error) {
	last, err := s.repo.LastCompletions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := make([]TaskView, 0, len(s.catalog.Tasks))
	for _, t := range s.catalog.Tasks {
		var lastAt *time.Time
		if at, ok := last[t.ID]; ok {
			lastAt = &at
		}
		res = append(res, taskView(t.State(lastAt, now), now))
	}
	return res, nil
}

// CompleteTask отмечает задание выполненным и начисляет очки. Повторное
// выполнение одноразового задания возвращает model.ErrTaskCompleted, задания
// на перезарядке возвращают *model.CooldownError.
func (s *Service) CompleteTask(ctx context.Context, accountID int64, taskID string) (*TaskResult, error) {
	task, ok := s.catalog.Task(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	now := s.now()
	credit, err := s.repo.CompleteTask(ctx, accountID, task, now)
	if err != nil {
		s.metrics.TaskCompletion(task.ID, outcome(err))
		return nil, err
	}
	s.metrics.TaskCompletion(task.ID, "ok")

	s.afterCredit(ctx, accountID, credit)

	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &TaskResult{
		Task:        taskView(task.State(&now, now), now),
		Transaction: credit.Transaction,
		Balance:     balanceOf(a),
		Tier:        s.catalog.Ladder.Resolve(a.Lifetime),
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrTaskCompleted):
		return "completed"
	case errors.Is(err, model.ErrTaskCooldown):
		return "cooldown"
	case errors.Is(err, model.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, model.ErrOutOfStock):
		return "out_of_stock"
	}
	return "error"
}
