package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/provider"
	"github.com/chatmeter-next/internal/queue"
	"github.com/chatmeter-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskGenerationTimeoutRefund, c.handleGenerationTimeoutRefund)
}

// handleGenerationTimeoutRefund 回退超时未结算的扣费
//
// 正常结算后单据已是终态，这里的退款调用会幂等跳过；
// 只有结算丢失（进程崩溃、结算写失败）时任务才真正退钱。
func (c *Consumer) handleGenerationTimeoutRefund(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_generation_timeout_refund_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.GenerationTimeoutRefundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_generation_timeout_refund_unmarshal_failed", "error", err)
		return err
	}
	reservationNo := strings.TrimSpace(payload.ReservationNo)
	if reservationNo == "" {
		logger.Debugw("worker_generation_timeout_refund_skip_invalid_payload")
		return nil
	}
	if c.SettlementService == nil {
		logger.Warnw("worker_generation_timeout_refund_skip_settlement_nil", "reservation_no", reservationNo)
		return nil
	}
	if err := c.SettlementService.Refund(ctx, reservationNo, "settlement timeout"); err != nil {
		switch {
		case errors.Is(err, service.ErrChargeNotFound):
			logger.Debugw("worker_generation_timeout_refund_skip_not_found", "reservation_no", reservationNo)
			return nil
		case errors.Is(err, service.ErrChargeStatusInvalid):
			logger.Debugw("worker_generation_timeout_refund_skip_invalid_status", "reservation_no", reservationNo)
			return nil
		default:
			logger.Warnw("worker_generation_timeout_refund_failed", "reservation_no", reservationNo, "error", err)
			return err
		}
	}
	return nil
}
