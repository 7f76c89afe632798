package i18n

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultLocale 默认语言
const DefaultLocale = "en-US"

var supportedLocales = map[string]struct{}{
	"en-US": {},
	"zh-CN": {},
}

// ResolveLocale 解析请求语言（query > header > 默认）
func ResolveLocale(c *gin.Context) string {
	if c == nil {
		return DefaultLocale
	}
	if lang := normalizeLocale(c.Query("lang")); lang != "" {
		return lang
	}
	header := c.GetHeader("Accept-Language")
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if lang := normalizeLocale(tag); lang != "" {
			return lang
		}
	}
	return DefaultLocale
}

// T 返回指定语言的文案，缺失时回退默认语言再回退 key 本身
func T(locale, key string) string {
	if messages, ok := catalog[locale]; ok {
		if msg, ok := messages[key]; ok {
			return msg
		}
	}
	if msg, ok := catalog[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 返回带格式化参数的文案
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}

func normalizeLocale(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if _, ok := supportedLocales[tag]; ok {
		return tag
	}
	lower := strings.ToLower(tag)
	switch {
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	case strings.HasPrefix(lower, "en"):
		return "en-US"
	}
	return ""
}

var catalog = map[string]map[string]string{
	"en-US": {
		"error.bad_request":             "Invalid request",
		"error.unauthorized":            "Unauthorized",
		"error.internal":                "Internal server error",
		"error.auth_header_missing":     "Authorization header is required",
		"error.auth_header_invalid":     "Authorization header is invalid",
		"error.token_invalid":           "Token is invalid or expired",
		"error.jwt_secret_missing":      "Server auth is not configured",
		"error.user_id_invalid":         "User identity is invalid",
		"error.user_id_type_invalid":    "User identity has unexpected type",
		"error.user_disabled":           "Account is disabled",
		"error.voucher_code_required":   "Voucher code is required",
		"error.voucher_invalid":         "Voucher is invalid",
		"error.voucher_not_found":       "Voucher not found",
		"error.voucher_expired":         "Voucher has expired",
		"error.voucher_exhausted":       "Voucher has reached its usage limit",
		"error.voucher_plan_ineligible": "Voucher is not available for your plan",
		"error.voucher_order_too_low":   "Order value is below the voucher minimum",
		"error.voucher_already_used":    "Voucher has already been used",
		"success.voucher_redeemed":      "Voucher redeemed successfully",
		"error.insufficient_credits":    "Insufficient credits. Please upgrade your plan.",
		"error.credit_amount_invalid":   "Credit amount must be positive",
		"error.generation_failed":       "Generation failed, please retry",
		"error.generation_invalid":      "Generation request is invalid",
		"error.store_unavailable":       "Service temporarily unavailable",
		"error.rate_limited":            "Too many requests, retry in %d seconds",
		"error.rate_limit_unavailable":  "Rate limiter unavailable",
	},
	"zh-CN": {
		"error.bad_request":             "请求参数无效",
		"error.unauthorized":            "未授权",
		"error.internal":                "服务器内部错误",
		"error.auth_header_missing":     "缺少 Authorization 请求头",
		"error.auth_header_invalid":     "Authorization 请求头格式错误",
		"error.token_invalid":           "Token 无效或已过期",
		"error.jwt_secret_missing":      "服务端未配置鉴权密钥",
		"error.user_id_invalid":         "用户身份无效",
		"error.user_id_type_invalid":    "用户身份类型异常",
		"error.user_disabled":           "账号已被禁用",
		"error.voucher_code_required":   "请输入券码",
		"error.voucher_invalid":         "代金券无效",
		"error.voucher_not_found":       "代金券不存在",
		"error.voucher_expired":         "代金券已过期",
		"error.voucher_exhausted":       "代金券已达使用上限",
		"error.voucher_plan_ineligible": "当前套餐不可使用该代金券",
		"error.voucher_order_too_low":   "订单金额未达到使用门槛",
		"error.voucher_already_used":    "代金券已使用过",
		"success.voucher_redeemed":      "代金券核销成功",
		"error.insufficient_credits":    "积分不足，请升级套餐",
		"error.credit_amount_invalid":   "积分金额必须为正数",
		"error.generation_failed":       "生成失败，请重试",
		"error.generation_invalid":      "生成请求无效",
		"error.store_unavailable":       "服务暂不可用",
		"error.rate_limited":            "请求过于频繁，请 %d 秒后重试",
		"error.rate_limit_unavailable":  "限流服务不可用",
	},
}
