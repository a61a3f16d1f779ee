// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorValidation    = "VALIDATION_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 会话相关错误
	ErrorSessionNotFound = "SESSION_NOT_FOUND"
	ErrorRoundNotFound   = "ROUND_NOT_FOUND"
	ErrorChoiceInvalid   = "CHOICE_INVALID"

	// 提供者相关错误
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
	ErrorProviderUnsupported   = "PROVIDER_UNSUPPORTED"
	ErrorProviderRequestFailed = "PROVIDER_REQUEST_FAILED"
	ErrorMalformedResponse     = "MALFORMED_RESPONSE"

	// 诊断日志
	ErrorDiagnosticsDisabled = "DIAGNOSTICS_DISABLED"
)
