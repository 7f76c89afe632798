package worker

import (
	"context"
	"errors"
)

// SweepService 仅运行卡单回退扫描的服务
//
// 队列未启用时没有延迟回退任务，由它独立承担超时回退。
type SweepService struct {
	name     string
	consumer *Consumer
}

// NewSweepService 创建卡单回退扫描服务
func NewSweepService(consumer *Consumer) (*SweepService, error) {
	if consumer == nil || consumer.SettlementService == nil {
		return nil, errors.New("consumer is nil")
	}
	return &SweepService{name: "charge-sweep", consumer: consumer}, nil
}

// Name 服务名称
func (s *SweepService) Name() string {
	if s == nil || s.name == "" {
		return "charge-sweep"
	}
	return s.name
}

// Start 启动服务（阻塞至 ctx 取消）
func (s *SweepService) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("sweep service not initialized")
	}
	svc := &Service{consumer: s.consumer}
	svc.runStuckChargeSweepLoop(ctx)
	return nil
}

// Stop 停止服务
func (s *SweepService) Stop(ctx context.Context) error {
	return nil
}
