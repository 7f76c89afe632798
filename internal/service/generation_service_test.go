package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chatmeter-next/internal/aiprovider"
	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type stubProvider struct {
	result *aiprovider.GenerateResult
	err    error
	calls  int
}

func (p *stubProvider) Generate(ctx context.Context, input *aiprovider.GenerateInput) (*aiprovider.GenerateResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func setupGenerationServiceTest(t *testing.T, provider aiprovider.Provider) (*GenerationService, *CreditService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:generation_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.CreditAccount{},
		&models.CreditTransaction{},
		&models.GenerationCharge{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	creditService := NewCreditService(repository.NewCreditRepository(db), 5*time.Second)
	settlement := NewSettlementService(
		creditService,
		repository.NewGenerationChargeRepository(db),
		decimal.RequireFromString("0.01"),
		5*time.Minute,
	)
	// unitPrice 0.002/1K token
	svc := NewGenerationService(settlement, provider, nil, decimal.RequireFromString("0.002"))
	return svc, creditService, db
}

func TestGenerationCostForTokens(t *testing.T) {
	svc, _, _ := setupGenerationServiceTest(t, &stubProvider{})

	if got := svc.CostForTokens(1000).String(); got != "0.002000" {
		t.Fatalf("expected 0.002000 for 1000 tokens, got %s", got)
	}
	if got := svc.CostForTokens(1).String(); got != "0.000002" {
		t.Fatalf("expected 0.000002 for 1 token, got %s", got)
	}
	if got := svc.CostForTokens(0).String(); got != "0.000000" {
		t.Fatalf("expected zero cost for 0 tokens, got %s", got)
	}
}

func TestGenerationGenerateSettlesActualUsage(t *testing.T) {
	provider := &stubProvider{result: &aiprovider.GenerateResult{
		Content:     "hello",
		TotalTokens: 400,
	}}
	svc, creditService, db := setupGenerationServiceTest(t, provider)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")

	// 预估 1000 token 预扣 0.002，实际 400 token 结算 0.0008
	result, err := svc.Generate(ctx, 1, "gpt-4o", []aiprovider.Message{{Role: "user", Content: "hi"}}, 1000)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.Content != "hello" {
		t.Fatalf("expected provider content, got %q", result.Content)
	}
	if result.SettlementStatus != constants.ChargeStatusSettled {
		t.Fatalf("expected settled, got %s", result.SettlementStatus)
	}
	if result.ActualCost.String() != "0.000800" {
		t.Fatalf("expected actual cost 0.000800, got %s", result.ActualCost.String())
	}
	if got := accountBalance(t, creditService, 1); got != "9.999200" {
		t.Fatalf("expected net debit of actual cost only, balance %s", got)
	}

	var charge models.GenerationCharge
	if err := db.Where("reservation_no = ?", result.ReservationNo).First(&charge).Error; err != nil {
		t.Fatalf("load charge failed: %v", err)
	}
	if charge.Status != constants.ChargeStatusSettled {
		t.Fatalf("expected settled charge, got %s", charge.Status)
	}
}

func TestGenerationGenerateRefundsOnProviderFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("upstream 500")}
	svc, creditService, db := setupGenerationServiceTest(t, provider)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")

	_, err := svc.Generate(ctx, 1, "gpt-4o", []aiprovider.Message{{Role: "user", Content: "hi"}}, 1000)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if got := accountBalance(t, creditService, 1); got != "10.000000" {
		t.Fatalf("expected full refund, balance %s", got)
	}

	var charge models.GenerationCharge
	if err := db.First(&charge).Error; err != nil {
		t.Fatalf("load charge failed: %v", err)
	}
	if charge.Status != constants.ChargeStatusRefunded {
		t.Fatalf("expected refunded charge, got %s", charge.Status)
	}
}

func TestGenerationGenerateRejectsWithoutReserve(t *testing.T) {
	provider := &stubProvider{result: &aiprovider.GenerateResult{Content: "x", TotalTokens: 10}}
	svc, _, db := setupGenerationServiceTest(t, provider)
	ctx := context.Background()

	// 余额为零：预扣被拒，供应商不应被调用
	_, err := svc.Generate(ctx, 1, "gpt-4o", []aiprovider.Message{{Role: "user", Content: "hi"}}, 1000)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called without successful reserve, got %d calls", provider.calls)
	}

	var charges int64
	if err := db.Model(&models.GenerationCharge{}).Count(&charges).Error; err != nil {
		t.Fatalf("count charges failed: %v", err)
	}
	if charges != 0 {
		t.Fatalf("expected no charge rows, got %d", charges)
	}
}
