package public

import (
	"strconv"
	"strings"

	"github.com/chatmeter-next/internal/http/response"
	"github.com/chatmeter-next/internal/i18n"
	"github.com/chatmeter-next/internal/models"
	"github.com/chatmeter-next/internal/repository"
	"github.com/chatmeter-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// VoucherValidateRequest 代金券校验请求
type VoucherValidateRequest struct {
	Code       string `json:"code" binding:"required"`
	OrderValue string `json:"order_value"`
	Plan       string `json:"plan"`
}

// VoucherUseRequest 代金券核销请求
type VoucherUseRequest struct {
	Code       string `json:"code" binding:"required"`
	OrderValue string `json:"order_value"`
	Plan       string `json:"plan"`
}

// voucherPayload 对外暴露的代金券字段，不包含核销明细
type voucherPayload struct {
	ID          uint         `json:"id"`
	Code        string       `json:"code"`
	VoucherType string       `json:"voucher_type"`
	Value       models.Money `json:"value"`
	MaxUses     int          `json:"max_uses"`
	Description string       `json:"description"`
}

func buildVoucherPayload(voucher *models.Voucher) voucherPayload {
	return voucherPayload{
		ID:          voucher.ID,
		Code:        voucher.Code,
		VoucherType: voucher.VoucherType,
		Value:       voucher.Value,
		MaxUses:     voucher.MaxUses,
		Description: voucher.Description,
	}
}

// ValidateVoucher 校验代金券（只读，不消耗使用次数）
func (h *Handler) ValidateVoucher(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req VoucherValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondVoucherValidateError(c, service.ErrVoucherCodeInvalid)
		return
	}
	orderValue, ok := parseOrderValue(c, req.OrderValue)
	if !ok {
		return
	}
	plan, ok := h.resolvePlan(c, uid, req.Plan)
	if !ok {
		return
	}

	result, err := h.VoucherService.Validate(c.Request.Context(), req.Code, uid, orderValue, plan)
	if err != nil {
		respondVoucherValidateError(c, err)
		return
	}

	response.Success(c, gin.H{
		"valid":    true,
		"voucher":  buildVoucherPayload(result.Voucher),
		"discount": result.Discount,
	})
}

// UseVoucher 核销代金券
func (h *Handler) UseVoucher(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	var req VoucherUseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.voucher_code_required", err)
		return
	}
	orderValue, ok := parseOrderValue(c, req.OrderValue)
	if !ok {
		return
	}
	plan, ok := h.resolvePlan(c, uid, req.Plan)
	if !ok {
		return
	}

	result, err := h.VoucherService.Redeem(c.Request.Context(), req.Code, uid, orderValue, plan)
	if err != nil {
		respondVoucherError(c, err)
		return
	}

	locale := i18n.ResolveLocale(c)
	response.SuccessWithMsg(c, i18n.T(locale, "success.voucher_redeemed"), gin.H{
		"voucher":  buildVoucherPayload(result.Voucher),
		"discount": result.Discount,
	})
}

// GetMyVoucherRedemptions 获取当前用户核销记录
func (h *Handler) GetMyVoucherRedemptions(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	redemptions, total, err := h.RedemptionRepo.ListByUser(repository.VoucherRedemptionListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   uid,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}

	pagination := response.BuildPagination(page, pageSize, total)
	response.SuccessWithPage(c, redemptions, pagination)
}

// parseOrderValue 解析订单金额（缺省按 0 处理）
func parseOrderValue(c *gin.Context, raw string) (models.Money, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.NewMoneyFromDecimal(decimal.Zero), true
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.IsNegative() {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return models.Money{}, false
	}
	return models.NewMoneyFromDecimal(amount), true
}

// resolvePlan 确定参与资格检查的套餐：请求显式传入优先，否则取用户当前套餐
func (h *Handler) resolvePlan(c *gin.Context, uid uint, plan string) (string, bool) {
	plan = strings.TrimSpace(plan)
	if plan != "" {
		return plan, true
	}
	user, err := h.UserRepo.GetByID(uid)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return "", false
	}
	if user == nil {
		// 鉴权通过后用户行被删除的竞态窗口
		respondError(c, response.CodeUnauthorized, "error.token_invalid", nil)
		return "", false
	}
	return user.Plan, true
}
