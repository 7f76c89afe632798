package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupSettlementServiceTest(t *testing.T) (*SettlementService, *CreditService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:settlement_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	svc := NewSettlementService(
		creditService,
		repository.NewGenerationChargeRepository(db),
		decimal.RequireFromString("0.01"),
		5*time.Minute,
	)
	return svc, creditService, db
}

func fundAccount(t *testing.T, creditService *CreditService, userID uint, amount string) {
	t.Helper()
	ref := fmt.Sprintf("seed_grant:%d:%s", userID, amount)
	if _, err := creditService.Credit(context.Background(), userID, creditOf(t, amount), constants.CreditTxnTypeSeedGrant, ref, "test funding"); err != nil {
		t.Fatalf("fund account failed: %v", err)
	}
}

func accountBalance(t *testing.T, creditService *CreditService, userID uint) string {
	t.Helper()
	account, err := creditService.GetAccount(context.Background(), userID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	return account.Balance.String()
}

func TestSettlementReserveRejectsLowBalance(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	// 余额低于等于低额阈值时直接拒绝，不发起供应商调用
	fundAccount(t, creditService, 1, "0.005")
	if _, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "0.001")); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits at threshold, got %v", err)
	}

	var charges int64
	if err := db.Model(&models.GenerationCharge{}).Count(&charges).Error; err != nil {
		t.Fatalf("count charges failed: %v", err)
	}
	if charges != 0 {
		t.Fatalf("expected no charge created, got %d", charges)
	}
	if got := accountBalance(t, creditService, 1); got != "0.005000" {
		t.Fatalf("expected untouched balance 0.005000, got %s", got)
	}
}

func TestSettlementReserveInsufficientForEstimate(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "0.5")
	if _, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1")); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	// 未扣到费的单据停留在 pending，只作审计
	var charge models.GenerationCharge
	if err := db.First(&charge).Error; err != nil {
		t.Fatalf("load charge failed: %v", err)
	}
	if charge.Status != constants.ChargeStatusPending {
		t.Fatalf("expected pending charge, got %s", charge.Status)
	}
	if got := accountBalance(t, creditService, 1); got != "0.500000" {
		t.Fatalf("expected untouched balance 0.500000, got %s", got)
	}
}

func TestSettlementReserveAndSettleWithRefund(t *testing.T) {
	svc, creditService, _ := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")
	charge, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if charge.Status != constants.ChargeStatusDebited {
		t.Fatalf("expected debited charge, got %s", charge.Status)
	}
	if got := accountBalance(t, creditService, 1); got != "9.000000" {
		t.Fatalf("expected balance 9.000000 after debit, got %s", got)
	}

	// 实际成本低于预估，差额退回，净扣费恰为实际成本
	status, err := svc.Settle(ctx, charge.ReservationNo, creditOf(t, "0.8"))
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if status != constants.ChargeStatusSettled {
		t.Fatalf("expected settled, got %s", status)
	}
	if got := accountBalance(t, creditService, 1); got != "9.200000" {
		t.Fatalf("expected balance 9.200000 after refund, got %s", got)
	}

	// 重复结算按幂等处理，余额不再变动
	if _, err := svc.Settle(ctx, charge.ReservationNo, creditOf(t, "0.8")); err != nil {
		t.Fatalf("repeated settle failed: %v", err)
	}
	if got := accountBalance(t, creditService, 1); got != "9.200000" {
		t.Fatalf("expected balance unchanged at 9.200000, got %s", got)
	}
}

func TestSettlementSettleCollectsShortfall(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")
	charge, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	status, err := svc.Settle(ctx, charge.ReservationNo, creditOf(t, "1.3"))
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if status != constants.ChargeStatusSettled {
		t.Fatalf("expected settled, got %s", status)
	}
	if got := accountBalance(t, creditService, 1); got != "8.700000" {
		t.Fatalf("expected balance 8.700000 after shortfall debit, got %s", got)
	}

	var reloaded models.GenerationCharge
	if err := db.Where("reservation_no = ?", charge.ReservationNo).First(&reloaded).Error; err != nil {
		t.Fatalf("reload charge failed: %v", err)
	}
	if reloaded.ActualCost.String() != "1.300000" {
		t.Fatalf("expected actual cost 1.300000, got %s", reloaded.ActualCost.String())
	}
}

func TestSettlementSettleShortfallUncollectable(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "1.05")
	charge, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// 生成已交付，余额不足以补扣差额时只记录差异，不报错
	status, err := svc.Settle(ctx, charge.ReservationNo, creditOf(t, "2"))
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if status != constants.ChargeStatusPartialDiscrepancy {
		t.Fatalf("expected partial_discrepancy, got %s", status)
	}

	var reloaded models.GenerationCharge
	if err := db.Where("reservation_no = ?", charge.ReservationNo).First(&reloaded).Error; err != nil {
		t.Fatalf("reload charge failed: %v", err)
	}
	if reloaded.FailReason == "" {
		t.Fatalf("expected fail reason recorded for uncollected shortfall")
	}
	if got := accountBalance(t, creditService, 1); got != "0.050000" {
		t.Fatalf("expected balance 0.050000 untouched by failed extra debit, got %s", got)
	}
}

func TestSettlementRefundRestoresEstimate(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "5")
	charge, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "2"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := svc.Refund(ctx, charge.ReservationNo, "provider error"); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if got := accountBalance(t, creditService, 1); got != "5.000000" {
		t.Fatalf("expected full balance restored, got %s", got)
	}

	var reloaded models.GenerationCharge
	if err := db.Where("reservation_no = ?", charge.ReservationNo).First(&reloaded).Error; err != nil {
		t.Fatalf("reload charge failed: %v", err)
	}
	if reloaded.Status != constants.ChargeStatusRefunded {
		t.Fatalf("expected refunded, got %s", reloaded.Status)
	}
	if reloaded.FailReason != "provider error" {
		t.Fatalf("expected fail reason recorded, got %q", reloaded.FailReason)
	}

	// 终态后的退款与结算都是幂等空操作
	if err := svc.Refund(ctx, charge.ReservationNo, "again"); err != nil {
		t.Fatalf("repeated refund failed: %v", err)
	}
	if got := accountBalance(t, creditService, 1); got != "5.000000" {
		t.Fatalf("expected balance unchanged after repeated refund, got %s", got)
	}
}

func TestSettlementSettleRejectsPendingCharge(t *testing.T) {
	svc, _, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	charge := models.GenerationCharge{
		ReservationNo: "resv-pending",
		UserID:        1,
		ModelID:       "gpt-4o",
		EstimatedCost: creditOf(t, "1"),
		Status:        constants.ChargeStatusPending,
	}
	if err := db.Create(&charge).Error; err != nil {
		t.Fatalf("create charge failed: %v", err)
	}

	if _, err := svc.Settle(ctx, "resv-pending", creditOf(t, "0.5")); !errors.Is(err, ErrChargeStatusInvalid) {
		t.Fatalf("expected ErrChargeStatusInvalid, got %v", err)
	}
	if _, err := svc.Settle(ctx, "resv-missing", creditOf(t, "0.5")); !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("expected ErrChargeNotFound, got %v", err)
	}
	if _, err := svc.Settle(ctx, "resv-pending", creditOf(t, "-1")); !errors.Is(err, ErrCreditAmountInvalid) {
		t.Fatalf("expected ErrCreditAmountInvalid for negative cost, got %v", err)
	}
}

func TestSettlementExpireStuckRefundsTimedOutCharges(t *testing.T) {
	svc, creditService, db := setupSettlementServiceTest(t)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")
	charge, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "3"))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	// 把扣费时间拨回超时线之前
	stale := time.Now().Add(-10 * time.Minute)
	if err := db.Model(&models.GenerationCharge{}).
		Where("reservation_no = ?", charge.ReservationNo).
		Update("debited_at", stale).Error; err != nil {
		t.Fatalf("backdate charge failed: %v", err)
	}

	// 新鲜的 debited 单据不应被扫到
	fresh, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1"))
	if err != nil {
		t.Fatalf("second reserve failed: %v", err)
	}

	refunded, err := svc.ExpireStuck(ctx)
	if err != nil {
		t.Fatalf("expire stuck failed: %v", err)
	}
	if refunded != 1 {
		t.Fatalf("expected 1 refunded charge, got %d", refunded)
	}
	if got := accountBalance(t, creditService, 1); got != "9.000000" {
		t.Fatalf("expected balance 9.000000 after timeout refund, got %s", got)
	}

	var freshReloaded models.GenerationCharge
	if err := db.Where("reservation_no = ?", fresh.ReservationNo).First(&freshReloaded).Error; err != nil {
		t.Fatalf("reload fresh charge failed: %v", err)
	}
	if freshReloaded.Status != constants.ChargeStatusDebited {
		t.Fatalf("fresh charge must stay debited, got %s", freshReloaded.Status)
	}
}

// interruptedChargeRepo 在事务体成功后强制回滚，模拟提交前的写入中断
type interruptedChargeRepo struct {
	*repository.GormGenerationChargeRepository
	db *gorm.DB
}

var errTxInterrupted = errors.New("transaction interrupted")

func (r *interruptedChargeRepo) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errTxInterrupted
	})
}

func TestSettlementReserveRollsBackDebitOnInterruptedTx(t *testing.T) {
	dsn := fmt.Sprintf("file:settlement_interrupt_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	chargeRepo := &interruptedChargeRepo{
		GormGenerationChargeRepository: repository.NewGenerationChargeRepository(db),
		db:                             db,
	}
	svc := NewSettlementService(creditService, chargeRepo, decimal.RequireFromString("0.01"), 5*time.Minute)
	ctx := context.Background()

	fundAccount(t, creditService, 1, "10")
	if _, err := svc.Reserve(ctx, 1, "gpt-4o", creditOf(t, "1")); !errors.Is(err, errTxInterrupted) {
		t.Fatalf("expected interrupted reserve to fail, got %v", err)
	}

	// 扣费与状态翻转同事务：中断后余额必须完整回滚
	if got := accountBalance(t, creditService, 1); got != "10.000000" {
		t.Fatalf("expected balance 10.000000 after rollback, got %s", got)
	}
	var debits int64
	if err := db.Model(&models.CreditTransaction{}).
		Where("type = ?", constants.CreditTxnTypeGenerationDebit).
		Count(&debits).Error; err != nil {
		t.Fatalf("count debit transactions failed: %v", err)
	}
	if debits != 0 {
		t.Fatalf("expected no committed debit transaction, got %d", debits)
	}

	// 单据停留在 pending 仅作审计，不带扣费时间，也不会被超时扫描回退
	var charge models.GenerationCharge
	if err := db.First(&charge).Error; err != nil {
		t.Fatalf("load charge failed: %v", err)
	}
	if charge.Status != constants.ChargeStatusPending {
		t.Fatalf("expected pending charge, got %s", charge.Status)
	}
	if charge.DebitedAt != nil {
		t.Fatalf("expected nil debited_at on rolled back charge")
	}
	if charge.FailReason == "" {
		t.Fatalf("expected fail reason recorded")
	}

	refunded, err := svc.ExpireStuck(ctx)
	if err != nil {
		t.Fatalf("expire stuck failed: %v", err)
	}
	if refunded != 0 {
		t.Fatalf("expected sweep to skip pending residue, got %d refunds", refunded)
	}
}
