package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/base-loyalty/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию при конфликте сериализации, взаимоблокировке
// или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// inTx выполняет fn в транзакции с повтором при временных ошибках.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const accountColumns = `id, login, password_hash, basename, COALESCE(wallet, ''), balance, lifetime, pending, wallet_connected_at, created_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.Login, &a.PasswordHash, &a.Basename, &a.Wallet,
		&a.Balance, &a.Lifetime, &a.Pending, &a.WalletConnectedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount создаёт новый аккаунт.
func (r *PostgresRepository) CreateAccount(ctx context.Context, login string, passwordHash []byte, basename string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (login, password_hash, basename) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, basename,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create account: %w", err)
	}
	return id, nil
}

// GetAccountByLogin возвращает аккаунт по логину.
func (r *PostgresRepository) GetAccountByLogin(ctx context.Context, login string) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE login = $1`, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetAccount возвращает аккаунт по идентификатору.
func (r *PostgresRepository) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, id int64) (*model.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock account for update: %w", err)
	}
	return a, nil
}

// ConnectWallet привязывает кошелёк к аккаунту. Возвращает true, если кошелёк
// подключён к аккаунту впервые.
func (r *PostgresRepository) ConnectWallet(ctx context.Context, accountID int64, wallet string, at time.Time) (bool, error) {
	var first bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		first = a.WalletConnectedAt == nil
		connectedAt := at
		if !first {
			connectedAt = *a.WalletConnectedAt
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET wallet = $2, wallet_connected_at = $3 WHERE id = $1`,
			accountID, wallet, connectedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrWalletTaken
			}
			return fmt.Errorf("update wallet: %w", err)
		}
		return nil
	})
	return first, err
}

// SyncCatalog сохраняет задания и награды каталога. Остаток существующих
// наград не перезаписывается.
func (r *PostgresRepository) SyncCatalog(ctx context.Context, tasks []model.Task, rewards []model.Reward) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for _, t := range tasks {
			_, err := tx.Exec(ctx,
				`INSERT INTO tasks (id, name, description, points, cooldown_seconds, hold_seconds)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET
				   name = EXCLUDED.name,
				   description = EXCLUDED.description,
				   points = EXCLUDED.points,
				   cooldown_seconds = EXCLUDED.cooldown_seconds,
				   hold_seconds = EXCLUDED.hold_seconds`,
				t.ID, t.Name, t.Description, t.Points,
				int64(t.Cooldown/time.Second), int64(t.Hold/time.Second),
			)
			if err != nil {
				return fmt.Errorf("upsert task %s: %w", t.ID, err)
			}
		}

		for _, rw := range rewards {
			_, err := tx.Exec(ctx,
				`INSERT INTO rewards (id, name, description, type, rarity, cost, stock)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id) DO UPDATE SET
				   name = EXCLUDED.name,
				   description = EXCLUDED.description,
				   type = EXCLUDED.type,
				   rarity = EXCLUDED.rarity,
				   cost = EXCLUDED.cost`,
				rw.ID, rw.Name, rw.Description, string(rw.Type), rw.Rarity, rw.Cost, rw.Stock,
			)
			if err != nil {
				return fmt.Errorf("upsert reward %d: %w", rw.ID, err)
			}
		}
		return nil
	})
}

func scanReward(row pgx.Row) (*model.Reward, error) {
	var (
		rw  model.Reward
		typ string
	)
	if err := row.Scan(&rw.ID, &rw.Name, &rw.Description, &typ, &rw.Rarity, &rw.Cost, &rw.Stock); err != nil {
		return nil, err
	}
	rw.Type = model.RewardType(typ)
	return &rw, nil
}

// ListRewards возвращает награды магазина.
func (r *PostgresRepository) ListRewards(ctx context.Context) ([]model.Reward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, type, rarity, cost, stock FROM rewards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var res []model.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		res = append(res, *rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// LastCompletions возвращает время последнего выполнения каждого задания аккаунтом.
func (r *PostgresRepository) LastCompletions(ctx context.Context, accountID int64) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT task_id, MAX(completed_at) FROM task_completions WHERE account_id = $1 GROUP BY task_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select completions: %w", err)
	}
	defer rows.Close()

	res := make(map[string]time.Time)
	for rows.Next() {
		var (
			taskID string
			at     time.Time
		)
		if err := rows.Scan(&taskID, &at); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		res[taskID] = at
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t model.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, kind, amount, status, description, reference, settle_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.AccountID, string(t.Kind), t.Amount, string(t.Status), t.Description, t.Reference, t.SettleAfter, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// CompleteTask фиксирует выполнение задания и начисляет очки. Использует
// блокировку строки аккаунта, чтобы параллельные запросы не обошли cooldown.
func (r *PostgresRepository) CompleteTask(ctx context.Context, accountID int64, task model.Task, now time.Time) (*model.Credit, error) {
	var credit *model.Credit
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		var last *time.Time
		err = tx.QueryRow(ctx,
			`SELECT MAX(completed_at) FROM task_completions WHERE account_id = $1 AND task_id = $2`,
			accountID, task.ID,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("select last completion: %w", err)
		}

		if err := task.CheckCompletion(last, now); err != nil {
			return err
		}

		t := newTaskTransaction(accountID, task, now)
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO task_completions (account_id, task_id, transaction_id, completed_at) VALUES ($1, $2, $3, $4)`,
			accountID, task.ID, t.ID, now,
		)
		if err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}

		c := applyTaskCredit(a, t)
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = $2, lifetime = $3, pending = $4 WHERE id = $1`,
			accountID, a.Balance, a.Lifetime, a.Pending,
		)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}

		credit = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// Redeem обменивает очки на награду. Блокирует строки аккаунта и награды, чтобы
// списание баланса и уменьшение остатка происходили атомарно.
func (r *PostgresRepository) Redeem(ctx context.Context, accountID, rewardID int64, code string, now time.Time) (*model.Redemption, error) {
	var res *model.Redemption
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		rw, err := scanReward(tx.QueryRow(ctx,
			`SELECT id, name, description, type, rarity, cost, stock FROM rewards WHERE id = $1 FOR UPDATE`,
			rewardID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
			}
			return fmt.Errorf("lock reward for update: %w", err)
		}

		if err := model.CheckRedeem(a.Balance, *rw); err != nil {
			return err
		}

		t := newRedeemTransaction(accountID, *rw, now)
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance - $2 WHERE id = $1`, accountID, rw.Cost)
		if err != nil {
			return fmt.Errorf("debit account: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE rewards SET stock = stock - 1 WHERE id = $1`, rewardID)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}

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
		_, err = tx.Exec(ctx,
			`INSERT INTO redemptions (id, account_id, reward_id, cost, code, transaction_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			red.ID, red.AccountID, red.RewardID, red.Cost, red.Code, red.TransactionID, red.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicateCode
			}
			return fmt.Errorf("insert redemption: %w", err)
		}

		res = &red
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListRedemptions возвращает историю обменов аккаунта.
func (r *PostgresRepository) ListRedemptions(ctx context.Context, accountID int64) ([]model.Redemption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.account_id, d.reward_id, rw.name, d.cost, d.code, d.transaction_id, d.created_at
		 FROM redemptions d
		 JOIN rewards rw ON rw.id = d.reward_id
		 WHERE d.account_id = $1
		 ORDER BY d.created_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select redemptions: %w", err)
	}
	defer rows.Close()

	var res []model.Redemption
	for rows.Next() {
		var red model.Redemption
		if err := rows.Scan(&red.ID, &red.AccountID, &red.RewardID, &red.RewardName,
			&red.Cost, &red.Code, &red.TransactionID, &red.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		res = append(res, red)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

const transactionColumns = `id, account_id, kind, amount, status, description, reference, settle_after, created_at, resolved_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t            model.Transaction
		kind, status string
	)
	err := row.Scan(&t.ID, &t.AccountID, &kind, &t.Amount, &status, &t.Description,
		&t.Reference, &t.SettleAfter, &t.CreatedAt, &t.ResolvedAt)
	if err != nil {
		return nil, err
	}
	t.Kind = model.TransactionKind(kind)
	t.Status = model.TransactionStatus(status)
	return &t, nil
}

// ResolveTransaction переводит ожидающую операцию в финальный статус. Повторное
// разрешение возвращает model.ErrAlreadyResolved.
func (r *PostgresRepository) ResolveTransaction(ctx context.Context, id uuid.UUID, status model.TransactionStatus, now time.Time) (*model.Credit, error) {
	var credit *model.Credit
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("lock transaction: %w", err)
		}

		a, err := lockAccount(ctx, tx, t.AccountID)
		if err != nil {
			return err
		}

		c, err := applyResolution(a, t, status, now)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE transactions SET kind = $2, status = $3, resolved_at = $4 WHERE id = $1`,
			id, string(t.Kind), string(t.Status), t.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE accounts SET balance = $2, lifetime = $3, pending = $4 WHERE id = $1`,
			a.ID, a.Balance, a.Lifetime, a.Pending,
		)
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}

		credit = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return credit, nil
}

// DuePendingTransactions возвращает ожидающие операции, срок удержания которых истёк.
func (r *PostgresRepository) DuePendingTransactions(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE status = $1 AND settle_after <= $2
		 ORDER BY settle_after
		 LIMIT $3`,
		string(model.TransactionStatusPending), now, listLimit(limit),
	)
}

// ListTransactions возвращает историю операций аккаунта по фильтру.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID int64, f model.TransactionFilter) ([]model.Transaction, error) {
	return r.queryTransactions(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE account_id = $1
		   AND ($2 = '' OR kind = $2)
		   AND created_at >= $3
		 ORDER BY created_at DESC
		 LIMIT $4`,
		accountID, string(f.Kind), f.Since, listLimit(f.Limit),
	)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateNotification сохраняет уведомление.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, account_id, type, message, priority, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.AccountID, string(n.Type), n.Message, string(n.Priority), n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications возвращает уведомления аккаунта, новые первыми.
func (r *PostgresRepository) ListNotifications(ctx context.Context, accountID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, type, message, priority, read, created_at
		 FROM notifications
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, defaultListLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var (
			n              model.Notification
			typ, priority string
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &typ, &n.Message, &priority, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(typ)
		n.Priority = model.Priority(priority)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений аккаунта.
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND NOT read`,
		accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

// MarkNotificationRead помечает уведомление прочитанным. Повторный вызов не
// является ошибкой.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, accountID int64, id uuid.UUID) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND account_id = $2`,
		id, accountID,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead помечает прочитанными все уведомления аккаунта и
// возвращает число изменённых.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, accountID int64) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE account_id = $1 AND NOT read`,
		accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

// RecordTierAchievement сохраняет переход на уровень. Повторная запись того же
// уровня игнорируется.
func (r *PostgresRepository) RecordTierAchievement(ctx context.Context, accountID int64, a model.TierAchievement) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tier_achievements (account_id, tier, badge_id, lifetime, achieved_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (account_id, tier) DO NOTHING`,
		accountID, string(a.Tier), a.BadgeID, a.Lifetime, a.AchievedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tier achievement: %w", err)
	}
	return nil
}

// ListTierAchievements возвращает историю уровней аккаунта, последние первыми.
func (r *PostgresRepository) ListTierAchievements(ctx context.Context, accountID int64) ([]model.TierAchievement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tier, badge_id, lifetime, achieved_at
		 FROM tier_achievements
		 WHERE account_id = $1
		 ORDER BY achieved_at DESC, lifetime DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tier achievements: %w", err)
	}
	defer rows.Close()

	var res []model.TierAchievement
	for rows.Next() {
		var (
			a    model.TierAchievement
			name string
		)
		if err := rows.Scan(&name, &a.BadgeID, &a.Lifetime, &a.AchievedAt); err != nil {
			return nil, fmt.Errorf("scan tier achievement: %w", err)
		}
		a.Tier = model.TierName(name)
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// TopAccounts возвращает аккаунты с наибольшим числом накопленных очков.
func (r *PostgresRepository) TopAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY lifetime DESC, id LIMIT $1`,
		listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select top accounts: %w", err)
	}
	defer rows.Close()

	var res []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CommunityStats возвращает агрегированную статистику; активными считаются
// аккаунты с операциями начиная с since.
func (r *PostgresRepository) CommunityStats(ctx context.Context, since time.Time) (*model.CommunityStats, error) {
	var s model.CommunityStats
	err := r.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM accounts),
		   (SELECT COUNT(DISTINCT account_id) FROM transactions WHERE created_at >= $1),
		   (SELECT COALESCE(SUM(lifetime), 0) FROM accounts),
		   (SELECT COUNT(*) FROM redemptions)`,
		since,
	).Scan(&s.TotalAccounts, &s.Active24h, &s.PointsIssued, &s.Redemptions)
	if err != nil {
		return nil, fmt.Errorf("select community stats: %w", err)
	}
	return &s, nil
}

// CountAccountsAtLeast возвращает число аккаунтов с накопленными очками не ниже lifetime.
func (r *PostgresRepository) CountAccountsAtLeast(ctx context.Context, lifetime int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE lifetime >= $1`, lifetime).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// RewardClaims возвращает число обменов по каждой награде, популярные первыми.
func (r *PostgresRepository) RewardClaims(ctx context.Context) ([]model.RewardClaims, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rw.id, rw.name, COUNT(d.id)
		 FROM rewards rw
		 LEFT JOIN redemptions d ON d.reward_id = rw.id
		 GROUP BY rw.id, rw.name
		 ORDER BY COUNT(d.id) DESC, rw.id`)
	if err != nil {
		return nil, fmt.Errorf("select reward claims: %w", err)
	}
	defer rows.Close()

	var res []model.RewardClaims
	for rows.Next() {
		var c model.RewardClaims
		if err := rows.Scan(&c.RewardID, &c.Name, &c.Claims); err != nil {
			return nil, fmt.Errorf("scan reward claims: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MonthlyActivity возвращает помесячные итоги завершённых операций аккаунта.
func (r *PostgresRepository) MonthlyActivity(ctx context.Context, accountID int64, since time.Time) ([]model.MonthlyActivity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(date_trunc('month', created_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		        COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
		        COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0),
		        COUNT(*)
		 FROM transactions
		 WHERE account_id = $1 AND status = $2 AND created_at >= $3
		 GROUP BY month
		 ORDER BY month`,
		accountID, string(model.TransactionStatusCompleted), since,
	)
	if err != nil {
		return nil, fmt.Errorf("select monthly activity: %w", err)
	}
	defer rows.Close()

	var res []model.MonthlyActivity
	for rows.Next() {
		var m model.MonthlyActivity
		if err := rows.Scan(&m.Month, &m.Earned, &m.Redeemed, &m.Transactions); err != nil {
			return nil, fmt.Errorf("scan monthly activity: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
