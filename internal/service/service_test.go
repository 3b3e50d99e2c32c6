package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmeshcher/wusle-presale/internal/chain"
	"github.com/mmeshcher/wusle-presale/internal/model"
	"github.com/mmeshcher/wusle-presale/internal/repository"
)

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

var testSignature = strings.Repeat("3x", 44)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	stages    []model.Stage
	stagesErr error

	createSlipErrs []error
	createdSlips   []*model.Slip
	stageIDs       []int64
	usdValues      []float64

	slips    []model.Slip
	slipsErr error

	totals    model.UserTotals
	totalsErr error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetStages(ctx context.Context) ([]model.Stage, error) {
	return s.stages, s.stagesErr
}

func (s *stubRepo) CreateSlip(ctx context.Context, slip *model.Slip, stageID int64, usdValue float64) (*model.Slip, error) {
	copied := *slip
	s.createdSlips = append(s.createdSlips, &copied)
	s.stageIDs = append(s.stageIDs, stageID)
	s.usdValues = append(s.usdValues, usdValue)

	if len(s.createSlipErrs) > 0 {
		err := s.createSlipErrs[0]
		s.createSlipErrs = s.createSlipErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	copied.ID = int64(len(s.createdSlips))
	copied.CreatedAt = time.Now()
	return &copied, nil
}

func (s *stubRepo) GetSlipsByUser(ctx context.Context, userID int64) ([]model.Slip, error) {
	return s.slips, s.slipsErr
}

func (s *stubRepo) GetUserTotals(ctx context.Context, userID int64) (model.UserTotals, error) {
	return s.totals, s.totalsErr
}

type stubVerifier struct {
	err    error
	claims []chain.VerifyClaim
}

func (v *stubVerifier) VerifyTransfer(ctx context.Context, claim chain.VerifyClaim) error {
	v.claims = append(v.claims, claim)
	return v.err
}

func activeStage() model.Stage {
	now := time.Now()
	return model.Stage{
		ID:          7,
		StageNumber: 2,
		Target:      200000,
		Raised:      50000,
		StartTime:   now.Add(-time.Hour),
		EndTime:     now.Add(time.Hour),
		Rate:        0.0037,
	}
}

func validPurchase() PurchaseRequest {
	return PurchaseRequest{
		UserID:        1,
		WalletAddress: testWallet,
		Currency:      model.CurrencyUSDT,
		AmountPaid:    10,
		TxSignature:   testSignature,
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil, Options{})

	_, err := svc.RegisterUser(context.Background(), "login", "pass")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashed,
		},
	}

	svc := NewService(repo, nil, Options{})

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if err == nil {
		t.Fatalf("expected error for invalid credentials")
	}
}

func TestCreateSlip_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, Options{})

	cases := []struct {
		name    string
		mutate  func(*PurchaseRequest)
		wantErr error
	}{
		{"unknown currency", func(r *PurchaseRequest) { r.Currency = "BTC" }, ErrUnsupportedCurrency},
		{"zero amount", func(r *PurchaseRequest) { r.AmountPaid = 0 }, ErrInvalidAmount},
		{"negative amount", func(r *PurchaseRequest) { r.AmountPaid = -5 }, ErrInvalidAmount},
		{"bad wallet", func(r *PurchaseRequest) { r.WalletAddress = "short" }, ErrInvalidWallet},
		{"bad signature", func(r *PurchaseRequest) { r.TxSignature = "nope" }, ErrInvalidSignature},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPurchase()
			tc.mutate(&req)

			_, err := svc.CreateSlip(context.Background(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateSlip_NoActiveStage(t *testing.T) {
	past := activeStage()
	past.StartTime = past.StartTime.Add(-48 * time.Hour)
	past.EndTime = past.EndTime.Add(-48 * time.Hour)

	repo := &stubRepo{stages: []model.Stage{past}}
	svc := NewService(repo, nil, Options{})

	_, err := svc.CreateSlip(context.Background(), validPurchase())
	if !errors.Is(err, ErrNoActiveStage) {
		t.Fatalf("err = %v, want ErrNoActiveStage", err)
	}
}

func TestCreateSlip_ComputesTokensServerSide(t *testing.T) {
	repo := &stubRepo{stages: []model.Stage{activeStage()}}
	verifier := &stubVerifier{}
	svc := NewService(repo, verifier, Options{
		TreasuryUSDTAccount: "treasuryTokenAccount11111111111111",
		USDTMint:            "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
	})

	slip, err := svc.CreateSlip(context.Background(), validPurchase())
	if err != nil {
		t.Fatalf("CreateSlip error: %v", err)
	}

	want := 10 / 0.0037
	if diff := slip.WuslePurchased - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("wusle = %v, want %v", slip.WuslePurchased, want)
	}
	if !strings.HasPrefix(slip.RedeemCode, "WUSLE-") {
		t.Fatalf("redeem code %q has no WUSLE- prefix", slip.RedeemCode)
	}

	if len(verifier.claims) != 1 {
		t.Fatalf("verifier called %d times, want 1", len(verifier.claims))
	}
	claim := verifier.claims[0]
	if claim.Mint != "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB" {
		t.Fatalf("claim mint = %q", claim.Mint)
	}
	if claim.Destination != "treasuryTokenAccount11111111111111" {
		t.Fatalf("claim destination = %q", claim.Destination)
	}

	if repo.stageIDs[0] != 7 {
		t.Fatalf("stageID = %d, want 7", repo.stageIDs[0])
	}
	if repo.usdValues[0] != 10 {
		t.Fatalf("usdValue = %v, want 10", repo.usdValues[0])
	}
}

func TestCreateSlip_SOLConvertedToUSD(t *testing.T) {
	repo := &stubRepo{stages: []model.Stage{activeStage()}}
	svc := NewService(repo, nil, Options{SOLPriceUSD: 150})

	req := validPurchase()
	req.Currency = model.CurrencySOL
	req.AmountPaid = 2

	slip, err := svc.CreateSlip(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateSlip error: %v", err)
	}

	if repo.usdValues[0] != 300 {
		t.Fatalf("usdValue = %v, want 300", repo.usdValues[0])
	}
	want := 300 / 0.0037
	if diff := slip.WuslePurchased - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("wusle = %v, want %v", slip.WuslePurchased, want)
	}
}

func TestCreateSlip_RetriesOnRedeemCodeCollision(t *testing.T) {
	repo := &stubRepo{
		stages:         []model.Stage{activeStage()},
		createSlipErrs: []error{repository.ErrRedeemCodeCollision},
	}
	svc := NewService(repo, nil, Options{})

	slip, err := svc.CreateSlip(context.Background(), validPurchase())
	if err != nil {
		t.Fatalf("CreateSlip error: %v", err)
	}
	if slip == nil {
		t.Fatalf("slip is nil")
	}

	if len(repo.createdSlips) != 2 {
		t.Fatalf("CreateSlip called %d times, want 2", len(repo.createdSlips))
	}
	if repo.createdSlips[0].RedeemCode == repo.createdSlips[1].RedeemCode {
		t.Fatalf("retry must use a fresh redeem code")
	}
}

func TestCreateSlip_DuplicateTransactionPropagates(t *testing.T) {
	repo := &stubRepo{
		stages:         []model.Stage{activeStage()},
		createSlipErrs: []error{repository.ErrDuplicateTransaction},
	}
	svc := NewService(repo, nil, Options{})

	_, err := svc.CreateSlip(context.Background(), validPurchase())
	if !errors.Is(err, repository.ErrDuplicateTransaction) {
		t.Fatalf("err = %v, want ErrDuplicateTransaction", err)
	}
	if len(repo.createdSlips) != 1 {
		t.Fatalf("CreateSlip called %d times, want 1", len(repo.createdSlips))
	}
}

func TestCreateSlip_VerificationMismatchFailsFast(t *testing.T) {
	repo := &stubRepo{stages: []model.Stage{activeStage()}}
	verifier := &stubVerifier{err: chain.ErrTransferMismatch}
	svc := NewService(repo, verifier, Options{})

	_, err := svc.CreateSlip(context.Background(), validPurchase())
	if !errors.Is(err, chain.ErrTransferMismatch) {
		t.Fatalf("err = %v, want ErrTransferMismatch", err)
	}
	if len(repo.createdSlips) != 0 {
		t.Fatalf("slip must not be persisted on verification failure")
	}
}

func TestGetUserTotals_PassThrough(t *testing.T) {
	repo := &stubRepo{
		totals: model.UserTotals{WuslePurchased: 2702.7027, Spent: 10},
	}
	svc := NewService(repo, nil, Options{})

	totals, err := svc.GetUserTotals(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetUserTotals error: %v", err)
	}
	if totals.Spent != 10 {
		t.Fatalf("Spent = %v, want 10", totals.Spent)
	}
}

func TestGetPresaleSnapshot_UsesConfiguredStatics(t *testing.T) {
	repo := &stubRepo{stages: []model.Stage{activeStage()}}
	svc := NewService(repo, nil, Options{
		TotalWusleSupply:  "1,000,000,000 WUSLE",
		LiquidityAtLaunch: "$2,000,000",
	})

	snap, err := svc.GetPresaleSnapshot(context.Background())
	if err != nil {
		t.Fatalf("GetPresaleSnapshot error: %v", err)
	}
	if snap.CurrentStage != 2 {
		t.Fatalf("currentStage = %d, want 2", snap.CurrentStage)
	}
	if snap.TotalWusleSupply != "1,000,000,000 WUSLE" {
		t.Fatalf("supply = %q", snap.TotalWusleSupply)
	}
}
