package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/provider"
	"github.com/chatmeter-next/internal/queue"
	"github.com/chatmeter-next/internal/repository"
	"github.com/chatmeter-next/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupConsumerTest(t *testing.T) (*Consumer, *service.CreditService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	creditService := service.NewCreditService(repository.NewCreditRepository(db), 5*time.Second)
	settlement := service.NewSettlementService(
		creditService,
		repository.NewGenerationChargeRepository(db),
		decimal.RequireFromString("0.01"),
		5*time.Minute,
	)
	consumer := NewConsumer(&provider.Container{SettlementService: settlement})
	return consumer, creditService, db
}

func timeoutRefundTask(t *testing.T, reservationNo string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.GenerationTimeoutRefundPayload{ReservationNo: reservationNo})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(queue.TaskGenerationTimeoutRefund, payload)
}

func TestHandleGenerationTimeoutRefund(t *testing.T) {
	consumer, creditService, db := setupConsumerTest(t)
	ctx := context.Background()

	if _, err := creditService.Credit(ctx, 1, models.NewCreditFromDecimal(decimal.NewFromInt(10)), constants.CreditTxnTypeSeedGrant, "grant:1", ""); err != nil {
		t.Fatalf("fund account failed: %v", err)
	}
	charge, err := consumer.SettlementService.Reserve(ctx, 1, "gpt-4o", models.NewCreditFromDecimal(decimal.NewFromInt(2)))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := consumer.handleGenerationTimeoutRefund(ctx, timeoutRefundTask(t, charge.ReservationNo)); err != nil {
		t.Fatalf("handle task failed: %v", err)
	}

	var reloaded models.GenerationCharge
	if err := db.Where("reservation_no = ?", charge.ReservationNo).First(&reloaded).Error; err != nil {
		t.Fatalf("reload charge failed: %v", err)
	}
	if reloaded.Status != constants.ChargeStatusRefunded {
		t.Fatalf("expected refunded charge, got %s", reloaded.Status)
	}

	account, err := creditService.GetAccount(ctx, 1)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.Balance.String() != "10.000000" {
		t.Fatalf("expected balance restored to 10.000000, got %s", account.Balance.String())
	}
}

func TestHandleGenerationTimeoutRefundSkipsSettled(t *testing.T) {
	consumer, creditService, _ := setupConsumerTest(t)
	ctx := context.Background()

	if _, err := creditService.Credit(ctx, 1, models.NewCreditFromDecimal(decimal.NewFromInt(10)), constants.CreditTxnTypeSeedGrant, "grant:1", ""); err != nil {
		t.Fatalf("fund account failed: %v", err)
	}
	charge, err := consumer.SettlementService.Reserve(ctx, 1, "gpt-4o", models.NewCreditFromDecimal(decimal.NewFromInt(2)))
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if _, err := consumer.SettlementService.Settle(ctx, charge.ReservationNo, models.NewCreditFromDecimal(decimal.NewFromInt(1))); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	// 结算已完成，兜底任务不应再改变余额
	if err := consumer.handleGenerationTimeoutRefund(ctx, timeoutRefundTask(t, charge.ReservationNo)); err != nil {
		t.Fatalf("handle task failed: %v", err)
	}
	account, err := creditService.GetAccount(ctx, 1)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if account.Balance.String() != "9.000000" {
		t.Fatalf("expected balance unchanged at 9.000000, got %s", account.Balance.String())
	}
}

func TestHandleGenerationTimeoutRefundToleratesBadPayloads(t *testing.T) {
	consumer, _, _ := setupConsumerTest(t)
	ctx := context.Background()

	if err := consumer.handleGenerationTimeoutRefund(ctx, timeoutRefundTask(t, "")); err != nil {
		t.Fatalf("empty reservation no should be skipped, got %v", err)
	}
	if err := consumer.handleGenerationTimeoutRefund(ctx, timeoutRefundTask(t, "resv-missing")); err != nil {
		t.Fatalf("missing charge should be skipped, got %v", err)
	}
}
