package queue

import (
	"encoding/json"

	"github.com/chatmeter-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskGenerationTimeoutRefund 扣费后超时未结算的回退任务
	TaskGenerationTimeoutRefund = constants.TaskGenerationTimeoutRefund
)

// GenerationTimeoutRefundPayload 超时回退任务载荷
type GenerationTimeoutRefundPayload struct {
	ReservationNo string `json:"reservation_no"`
}

// NewGenerationTimeoutRefundTask 创建超时回退任务
func NewGenerationTimeoutRefundTask(payload GenerationTimeoutRefundPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGenerationTimeoutRefund, body), nil
}
