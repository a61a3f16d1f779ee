// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 提供者相关错误类型
	ErrorTypeMissingCredential     ErrorType = "missing_credential"
	ErrorTypeUnsupportedProvider   ErrorType = "unsupported_provider"
	ErrorTypeProviderRequestFailed ErrorType = "provider_request_failed"
	ErrorTypeMalformedResponse     ErrorType = "malformed_response"

	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal_error"
)

// MaxPreviewLength 错误中保留的原始文本上限（按字符计）
const MaxPreviewLength = 2000

// AppError 应用程序错误结构
type AppError struct {
	Type     ErrorType
	Message  string
	Err      error
	Code     string // 用户友好的错误代码
	Status   int    // 供应商返回的HTTP状态码，0 表示未知
	Provider string
	Preview  string // 无法解析的原始文本片段
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewMissingCredentialError 所选提供者没有配置API密钥
func NewMissingCredentialError(provider string) *AppError {
	e := NewAppError(ErrorTypeMissingCredential,
		fmt.Sprintf("no API key configured for provider %q, configure your API key", provider), nil)
	e.Provider = provider
	return e
}

// NewUnsupportedProviderError 未知的提供者ID
func NewUnsupportedProviderError(provider string) *AppError {
	e := NewAppError(ErrorTypeUnsupportedProvider, fmt.Sprintf("unsupported provider %q", provider), nil)
	e.Provider = provider
	return e
}

// NewProviderRequestError 网络、传输或供应商侧失败
func NewProviderRequestError(provider string, status int, message string, originalError error) *AppError {
	e := NewAppError(ErrorTypeProviderRequestFailed, message, originalError)
	e.Provider = provider
	e.Status = status
	return e
}

// NewMalformedResponseError 供应商输出无法解析
func NewMalformedResponseError(message string, raw string, originalError error) *AppError {
	e := NewAppError(ErrorTypeMalformedResponse, message, originalError)
	e.Preview = Preview(raw)
	return e
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewInternalError 创建内部错误
func NewInternalError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInternal, message, originalError)
}

// Preview 截取最多 MaxPreviewLength 个字符，不会切断多字节字符
func Preview(raw string) string {
	if utf8.RuneCountInString(raw) <= MaxPreviewLength {
		return raw
	}
	n := 0
	for i := range raw {
		if n == MaxPreviewLength {
			return raw[:i]
		}
		n++
	}
	return raw
}

func isType(err error, t ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == t
	}
	return false
}

// IsMissingCredential 检查是否为缺少密钥错误
func IsMissingCredential(err error) bool { return isType(err, ErrorTypeMissingCredential) }

// IsUnsupportedProvider 检查是否为不支持的提供者错误
func IsUnsupportedProvider(err error) bool { return isType(err, ErrorTypeUnsupportedProvider) }

// IsProviderRequestFailed 检查是否为供应商请求失败
func IsProviderRequestFailed(err error) bool { return isType(err, ErrorTypeProviderRequestFailed) }

// IsMalformedResponse 检查是否为响应格式错误
func IsMalformedResponse(err error) bool { return isType(err, ErrorTypeMalformedResponse) }

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsAuthFailure 供应商拒绝了凭据（401/403）
func IsAuthFailure(err error) bool {
	var appError *AppError
	if errors.As(err, &appError) && appError.Type == ErrorTypeProviderRequestFailed {
		return appError.Status == http.StatusUnauthorized || appError.Status == http.StatusForbidden
	}
	return false
}

// As 取出错误链上的 AppError
func As(err error) (*AppError, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError, true
	}
	return nil, false
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeMissingCredential:
		return "API_KEY_MISSING"
	case ErrorTypeUnsupportedProvider:
		return "PROVIDER_UNSUPPORTED"
	case ErrorTypeProviderRequestFailed:
		return "PROVIDER_REQUEST_FAILED"
	case ErrorTypeMalformedResponse:
		return "MALFORMED_RESPONSE"
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeInternal:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，保留类型与供应商信息
		return &AppError{
			Type:     appError.Type,
			Message:  fmt.Sprintf("%s: %s", message, appError.Message),
			Err:      appError,
			Code:     appError.Code,
			Status:   appError.Status,
			Provider: appError.Provider,
			Preview:  appError.Preview,
		}
	}

	return NewAppError(errType, message, err)
}
