package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatmeter-next/internal/aiprovider"
	"github.com/chatmeter-next/internal/constants"
	"github.com/chatmeter-next/internal/logger"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/queue"

	"github.com/shopspring/decimal"
)

// GenerationResult 一次生成调用的最终结果
type GenerationResult struct {
	ReservationNo    string        `json:"reservation_no"`    // 计费单号
	Content          string        `json:"content"`           // 生成文本
	TotalTokens      int           `json:"total_tokens"`      // 消耗 token 数
	ActualCost       models.Credit `json:"actual_cost"`       // 实际扣费
	SettlementStatus string        `json:"settlement_status"` // 结算终态
}

// GenerationService 生成编排服务
//
// 串联预扣、供应商调用与结算。结算阶段使用与调用方取消解耦的
// context 执行：请求被取消也不允许把单据留在 debited。
type GenerationService struct {
	settlement  *SettlementService
	provider    aiprovider.Provider
	queueClient *queue.Client
	unitPrice   decimal.Decimal
}

// NewGenerationService 创建生成编排服务
func NewGenerationService(
	settlement *SettlementService,
	provider aiprovider.Provider,
	queueClient *queue.Client,
	unitPricePerKiloToken decimal.Decimal,
) *GenerationService {
	return &GenerationService{
		settlement:  settlement,
		provider:    provider,
		queueClient: queueClient,
		unitPrice:   unitPricePerKiloToken,
	}
}

// CostForTokens 按 token 数计算积分成本
func (s *GenerationService) CostForTokens(tokens int) models.Credit {
	if tokens <= 0 {
		return models.NewCreditFromDecimal(decimal.Zero)
	}
	cost := s.unitPrice.Mul(decimal.NewFromInt(int64(tokens))).Div(decimal.NewFromInt(1000))
	return models.NewCreditFromDecimal(cost)
}

// Generate 执行一次计费生成
//
// estimatedTokens 是保守上界，先按其预扣，供应商返回后按实际用量结算；
// 供应商失败全额退回并返回可重试错误。
func (s *GenerationService) Generate(ctx context.Context, userID uint, modelID string, messages []aiprovider.Message, estimatedTokens int) (*GenerationResult, error) {
	estimatedCost := s.CostForTokens(estimatedTokens)
	charge, err := s.settlement.Reserve(ctx, userID, modelID, estimatedCost)
	if err != nil {
		return nil, err
	}

	if s.queueClient.Enabled() {
		payload := queue.GenerationTimeoutRefundPayload{ReservationNo: charge.ReservationNo}
		if err := s.queueClient.EnqueueGenerationTimeoutRefund(payload, s.settlement.ReservationTTL()); err != nil {
			logger.Warnw("generation enqueue timeout refund failed",
				"reservation_no", charge.ReservationNo, "error", err)
		}
	}

	// 扣费之后的账务动作脱离调用方取消语义执行
	detached := context.WithoutCancel(ctx)

	var output *aiprovider.GenerateResult
	if s.provider == nil {
		err = errors.New("generation provider not configured")
	} else {
		output, err = s.provider.Generate(ctx, &aiprovider.GenerateInput{
			ModelID:  modelID,
			Messages: messages,
		})
	}
	if err != nil {
		if refundErr := s.settlement.Refund(detached, charge.ReservationNo, err.Error()); refundErr != nil {
			logger.Errorw("generation refund after provider failure failed",
				"reservation_no", charge.ReservationNo, "error", refundErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	actualCost := s.CostForTokens(output.TotalTokens)
	status, err := s.settlement.Settle(detached, charge.ReservationNo, actualCost)
	if err != nil {
		// 结算失败时单据仍处于 debited，由超时回退任务兜底
		logger.Errorw("generation settle failed",
			"reservation_no", charge.ReservationNo, "error", err)
		status = constants.ChargeStatusDebited
	}

	return &GenerationResult{
		ReservationNo:    charge.ReservationNo,
		Content:          output.Content,
		TotalTokens:      output.TotalTokens,
		ActualCost:       actualCost,
		SettlementStatus: status,
	}, nil
}
