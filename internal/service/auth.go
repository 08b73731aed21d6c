package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/base-loyalty/internal/model"
	"github.com/mmeshcher/base-loyalty/internal/repository"
	"github.com/mmeshcher/base-loyalty/internal/validation"
)

var (
	// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput возвращается при пустом логине или пароле.
	ErrInvalidInput = errors.New("login and password are required")
	// ErrInvalidBasename возвращается при некорректном basename.
	ErrInvalidBasename = errors.New("invalid basename")
)

// Profile описывает аккаунт участника вместе с текущим уровнем.
type Profile struct {
	ID                int64         `json:"id"`
	Login             string        `json:"login"`
	Basename          string        `json:"basename"`
	Wallet            string        `json:"wallet,omitempty"`
	WalletConnected   bool          `json:"wallet_connected"`
	WalletConnectedAt *time.Time    `json:"wallet_connected_at,omitempty"`
	Tier              model.Tier    `json:"tier"`
	Balance           model.Balance `json:"balance"`
	CreatedAt         time.Time     `json:"created_at"`
}

// RegisterUser регистрирует нового участника.
func (s *Service) RegisterUser(ctx context.Context, login, password, basename string) (int64, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return 0, ErrInvalidInput
	}

	basename = strings.ToLower(strings.TrimSpace(basename))
	if basename == "" {
		basename = strings.ToLower(login) + ".base.eth"
	}
	if !validation.IsValidBasename(basename) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBasename, basename)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateAccount(ctx, login, hashed, basename)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}

	s.updateLeaderboard(ctx, id, basename, 0)
	return id, nil
}

// AuthenticateUser проверяет логин и пароль и возвращает идентификатор участника.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	a, err := s.repo.GetAccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if !checkPassword(a.PasswordHash, password) {
		return 0, ErrInvalidCredentials
	}

	return a.ID, nil
}

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: password longer than 72 bytes", ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

func checkPassword(hashed []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hashed, []byte(password)) == nil
}

// GetProfile возвращает профиль участника.
func (s *Service) GetProfile(ctx context.Context, accountID int64) (*Profile, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.profile(a), nil
}

func (s *Service) profile(a *model.Account) *Profile {
	return &Profile{
		ID:                a.ID,
		Login:             a.Login,
		Basename:          a.Basename,
		Wallet:            a.Wallet,
		WalletConnected:   a.Wallet != "",
		WalletConnectedAt: a.WalletConnectedAt,
		Tier:              s.catalog.Ladder.Resolve(a.Lifetime),
		Balance:           balanceOf(a),
		CreatedAt:         a.CreatedAt,
	}
}

func balanceOf(a *model.Account) model.Balance {
	return model.Balance{Current: a.Balance, Lifetime: a.Lifetime, Pending: a.Pending}
}

// GetBalance возвращает текущий, накопленный и ожидающий баланс участника.
func (s *Service) GetBalance(ctx context.Context, accountID int64) (*model.Balance, error) {
	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	b := balanceOf(a)
	return &b, nil
}

// ConnectWallet привязывает кошелёк к аккаунту. При первом подключении
// участник получает приветственные уведомления.
func (s *Service) ConnectWallet(ctx context.Context, accountID int64, address string) (*Profile, error) {
	wallet, err := validation.NormalizeWallet(address)
	if err != nil {
		return nil, err
	}

	first, err := s.repo.ConnectWallet(ctx, accountID, wallet, s.now())
	if err != nil {
		return nil, err
	}

	a, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if first {
		s.logger.Info("wallet connected", zap.Int64("account_id", accountID), zap.String("wallet", wallet))
		s.welcome(ctx, a)
	}

	return s.profile(a), nil
}
