package response

// 业务状态码随 HTTP 200 响应体返回，沿用 HTTP 语义便于排查。
const (
	CodeOK              = 0
	CodeBadRequest      = 400 // 参数错误或代金券校验被拒绝
	CodeUnauthorized    = 401 // 未登录或令牌失效
	CodeNotFound        = 404
	CodeTooManyRequests = 429 // 触发限流
	CodeInternal        = 500
)
