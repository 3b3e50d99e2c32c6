// Package service реализует бизнес-логику сервиса пресейла WUSLE.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/wusle-presale/internal/chain"
	"github.com/mmeshcher/wusle-presale/internal/model"
	"github.com/mmeshcher/wusle-presale/internal/presale"
	"github.com/mmeshcher/wusle-presale/internal/repository"
	"github.com/mmeshcher/wusle-presale/internal/validation"
)

// ErrNoActiveStage возвращается при попытке покупки вне окна активного этапа.
var (
	ErrNoActiveStage = errors.New("no active presale stage")
	// ErrInvalidAmount возвращается для неположительной суммы платежа.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUnsupportedCurrency возвращается для валюты вне поддерживаемого набора.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrInvalidWallet возвращается для некорректного адреса кошелька.
	ErrInvalidWallet = errors.New("invalid wallet address")
	// ErrInvalidSignature возвращается для некорректной подписи транзакции.
	ErrInvalidSignature = errors.New("invalid transaction signature")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetStages(ctx context.Context) ([]model.Stage, error)
	CreateSlip(ctx context.Context, slip *model.Slip, stageID int64, usdValue float64) (*model.Slip, error)
	GetSlipsByUser(ctx context.Context, userID int64) ([]model.Slip, error)
	GetUserTotals(ctx context.Context, userID int64) (model.UserTotals, error)
}

// TransferVerifier проверяет заявленный перевод по данным сети.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, claim chain.VerifyClaim) error
}

// Options содержит параметры пресейла, известные из конфигурации.
type Options struct {
	TreasuryAddress     string
	TreasuryUSDTAccount string
	USDTMint            string
	TotalWusleSupply    string
	LiquidityAtLaunch   string
	// SOLPriceUSD — курс пересчёта платежа в SOL в долларовый эквивалент
	// для учёта в raised этапа.
	SOLPriceUSD float64
}

// Service содержит бизнес-логику пресейла.
type Service struct {
	repo     Repository
	verifier TransferVerifier
	opts     Options
}

// NewService создаёт сервис с указанным репозиторием и верификатором платежей.
// Нулевой verifier отключает проверку транзакций в сети (режим разработки).
func NewService(repo Repository, verifier TransferVerifier, opts Options) *Service {
	if opts.SOLPriceUSD <= 0 {
		opts.SOLPriceUSD = 1
	}
	return &Service{
		repo:     repo,
		verifier: verifier,
		opts:     opts,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return 0, repository.ErrUserExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetPresaleSnapshot собирает текущий снимок состояния пресейла.
func (s *Service) GetPresaleSnapshot(ctx context.Context) (*presale.Snapshot, error) {
	stages, err := s.repo.GetStages(ctx)
	if err != nil {
		return nil, err
	}

	snap := presale.BuildSnapshot(time.Now(), stages, s.opts.TotalWusleSupply, s.opts.LiquidityAtLaunch)
	return &snap, nil
}

// PurchaseRequest описывает заявку на создание квитанции о покупке.
type PurchaseRequest struct {
	UserID        int64
	WalletAddress string
	Currency      model.Currency
	AmountPaid    float64
	TxSignature   string
}

// CreateSlip проводит покупку: проверяет заявку, сверяет транзакцию с сетью,
// пересчитывает количество токенов по курсу активного этапа и атомарно
// записывает квитанцию вместе с инкрементом raised этапа.
//
// Количество токенов всегда вычисляется на сервере; присланное клиентом
// значение игнорируется. Повторная заявка с той же подписью транзакции
// завершается repository.ErrDuplicateTransaction, поэтому ретрай после
// неоднозначного сбоя безопасен.
func (s *Service) CreateSlip(ctx context.Context, req PurchaseRequest) (*model.Slip, error) {
	if !req.Currency.IsValid() {
		return nil, ErrUnsupportedCurrency
	}
	if req.AmountPaid <= 0 {
		return nil, ErrInvalidAmount
	}
	if !validation.IsValidSolanaAddress(req.WalletAddress) {
		return nil, ErrInvalidWallet
	}
	if !validation.IsValidTxSignature(req.TxSignature) {
		return nil, ErrInvalidSignature
	}

	stages, err := s.repo.GetStages(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	current := presale.ResolveStage(now, stages)
	if !presale.IsActive(now, current) {
		return nil, ErrNoActiveStage
	}

	if err := s.verifyPayment(ctx, req); err != nil {
		return nil, err
	}

	usdValue := req.AmountPaid
	if req.Currency == model.CurrencySOL {
		usdValue = req.AmountPaid * s.opts.SOLPriceUSD
	}

	wusle := presale.ConvertToTokens(usdValue, current.Rate)

	// Коллизия кода погашения практически невероятна, но уникальность
	// гарантируется индексом, поэтому вставка повторяется с новым кодом.
	for attempt := 0; attempt < 3; attempt++ {
		slip := &model.Slip{
			UserID:         req.UserID,
			WalletAddress:  req.WalletAddress,
			Currency:       req.Currency,
			AmountPaid:     req.AmountPaid,
			WuslePurchased: wusle,
			RedeemCode:     newRedeemCode(),
			TxSignature:    req.TxSignature,
		}

		created, err := s.repo.CreateSlip(ctx, slip, current.ID, usdValue)
		if errors.Is(err, repository.ErrRedeemCodeCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return created, nil
	}

	return nil, repository.ErrRedeemCodeCollision
}

// verifyPayment сверяет заявленный платёж с данными сети. Сразу после
// отправки транзакция может быть ещё не видна узлу, поэтому проверка
// повторяется с нарастающей задержкой.
func (s *Service) verifyPayment(ctx context.Context, req PurchaseRequest) error {
	if s.verifier == nil {
		return nil
	}

	claim := chain.VerifyClaim{
		Signature: req.TxSignature,
		Sender:    req.WalletAddress,
		Amount:    req.AmountPaid,
	}

	switch req.Currency {
	case model.CurrencySOL:
		claim.Destination = s.opts.TreasuryAddress
	case model.CurrencyUSDT:
		claim.Destination = s.opts.TreasuryUSDTAccount
		claim.Mint = s.opts.USDTMint
	}

	backoff := retry.WithMaxDuration(30*time.Second, retry.NewFibonacci(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.verifier.VerifyTransfer(ctx, claim)
		if errors.Is(err, chain.ErrTransactionNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func newRedeemCode() string {
	return "WUSLE-" + strings.ToUpper(uuid.NewString())
}

// GetSlipsByUser возвращает историю квитанций пользователя.
func (s *Service) GetSlipsByUser(ctx context.Context, userID int64) ([]model.Slip, error) {
	return s.repo.GetSlipsByUser(ctx, userID)
}

// GetUserTotals возвращает накопленные итоги покупок пользователя.
func (s *Service) GetUserTotals(ctx context.Context, userID int64) (model.UserTotals, error) {
	return s.repo.GetUserTotals(ctx, userID)
}
