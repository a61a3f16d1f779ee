// internal/api/response_helpers.go
package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/JadeCompass/internal/errors"
)

// APIResponse 统一响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 成功响应
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusOK, data, message...)
}

// Created 创建成功响应
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	rh.write(c, http.StatusCreated, data, message...)
}

func (rh *ResponseHelper) write(c *gin.Context, status int, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}
	if len(message) > 0 {
		response.Message = message[0]
	}
	c.JSON(status, response)
}

// secretPattern 常见供应商密钥的形态
var secretPattern = regexp.MustCompile(`\b(?:(?:sk|gsk)[-_]|AIza)[-_A-Za-z0-9]{8,}`)

// sanitizeErrorMessage 去掉消息中可能出现的密钥
func sanitizeErrorMessage(message string) string {
	return secretPattern.ReplaceAllString(message, "[redacted]")
}

// Error 错误响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: sanitizeErrorMessage(message),
	}
	if len(details) > 0 {
		apiError.Details = sanitizeErrorMessage(details[0])
	}

	c.JSON(statusCode, &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	})
}

// BadRequest 400错误响应
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+" not found", details...)
}

// InternalError 500错误响应
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict 409错误响应
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// AppError 按错误类型映射状态码；prefix 非空时加在消息前
func (rh *ResponseHelper) AppError(c *gin.Context, err error, prefix ...string) {
	status, code, message := statusForError(err)
	if len(prefix) > 0 && prefix[0] != "" && status == http.StatusBadGateway {
		message = prefix[0] + ": " + message
	}

	var details string
	if appErr, ok := apperrors.As(err); ok && appErr.Err != nil {
		details = appErr.Err.Error()
	}
	rh.Error(c, status, code, message, details)
}

// statusForError 错误类型到 HTTP 状态码与错误代码
func statusForError(err error) (int, string, string) {
	appErr, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorInternalError, err.Error()
	}

	switch appErr.Type {
	case apperrors.ErrorTypeMissingCredential:
		return http.StatusBadRequest, ErrorAPIKeyMissing, appErr.Message
	case apperrors.ErrorTypeUnsupportedProvider:
		return http.StatusBadRequest, ErrorProviderUnsupported, appErr.Message
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorValidation, appErr.Message
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict, ErrorConflict, appErr.Message
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound, ErrorNotFound, appErr.Message
	case apperrors.ErrorTypeProviderRequestFailed:
		return http.StatusBadGateway, ErrorProviderRequestFailed, appErr.Message
	case apperrors.ErrorTypeMalformedResponse:
		return http.StatusBadGateway, ErrorMalformedResponse, appErr.Message
	default:
		return http.StatusInternalServerError, ErrorInternalError, appErr.Message
	}
}

// getRequestID 获取请求ID
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// getResourceNotFoundCode 根据资源类型生成错误代码
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "session":
		return ErrorSessionNotFound
	case "round":
		return ErrorRoundNotFound
	default:
		return ErrorNotFound
	}
}
