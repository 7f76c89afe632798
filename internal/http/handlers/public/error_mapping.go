package public

import (
	"errors"

	"github.com/chatmeter-next/internal/http/response"
	"github.com/chatmeter-next/internal/i18n"
	"github.com/chatmeter-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

var voucherCommonErrorRules = []mappedHandlerError{
	{target: service.ErrVoucherCodeInvalid, code: response.CodeBadRequest, key: "error.voucher_code_required"},
	{target: service.ErrVoucherNotFound, code: response.CodeBadRequest, key: "error.voucher_not_found"},
	{target: service.ErrVoucherExpired, code: response.CodeBadRequest, key: "error.voucher_expired"},
	{target: service.ErrVoucherExhausted, code: response.CodeBadRequest, key: "error.voucher_exhausted"},
	{target: service.ErrVoucherPlanIneligible, code: response.CodeBadRequest, key: "error.voucher_plan_ineligible"},
	{target: service.ErrVoucherOrderTooLow, code: response.CodeBadRequest, key: "error.voucher_order_too_low"},
	{target: service.ErrVoucherAlreadyUsed, code: response.CodeBadRequest, key: "error.voucher_already_used"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, key: "error.store_unavailable"},
}

var generationErrorRules = []mappedHandlerError{
	{target: service.ErrInsufficientCredits, code: response.CodeBadRequest, key: "error.insufficient_credits"},
	{target: service.ErrCreditAmountInvalid, code: response.CodeBadRequest, key: "error.credit_amount_invalid"},
	{target: service.ErrGenerationFailed, code: response.CodeInternal, key: "error.generation_failed"},
	{target: service.ErrStoreUnavailable, code: response.CodeInternal, key: "error.store_unavailable"},
}

func respondVoucherError(c *gin.Context, err error) {
	respondWithMappedError(c, err, voucherCommonErrorRules, response.CodeInternal, "error.internal")
}

// respondVoucherValidateError 校验接口的拒绝响应额外携带 valid:false，
// 调用方无须解析业务码即可判定结果。
func respondVoucherValidateError(c *gin.Context, err error) {
	locale := i18n.ResolveLocale(c)
	for _, rule := range voucherCommonErrorRules {
		if errors.Is(err, rule.target) {
			response.ErrorWithData(c, rule.code, i18n.T(locale, rule.key), gin.H{"valid": false})
			return
		}
	}
	respondError(c, response.CodeInternal, "error.internal", err)
}

func respondGenerationError(c *gin.Context, err error) {
	respondWithMappedError(c, err, generationErrorRules, response.CodeInternal, "error.internal")
}
