package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmeter-next/internal/models"
)

// 代金券读缓存仅服务只读校验路径，核销路径必须直读数据库。

func voucherKey(code string) string {
	return fmt.Sprintf("voucher:code:%s", code)
}

// GetVoucherByCode 读取代金券缓存
func GetVoucherByCode(ctx context.Context, code string) (*models.Voucher, bool, error) {
	var voucher models.Voucher
	hit, err := GetJSON(ctx, voucherKey(code), &voucher)
	if err != nil || !hit {
		return nil, false, err
	}
	return &voucher, true, nil
}

// SetVoucherByCode 写入代金券缓存
func SetVoucherByCode(ctx context.Context, voucher *models.Voucher, ttl time.Duration) error {
	if voucher == nil || ttl <= 0 {
		return nil
	}
	return SetJSON(ctx, voucherKey(voucher.Code), voucher, ttl)
}

// DelVoucherByCode 失效代金券缓存（核销成功后调用）
func DelVoucherByCode(ctx context.Context, code string) error {
	return Del(ctx, voucherKey(code))
}
