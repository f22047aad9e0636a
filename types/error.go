package types

import "fmt"

// ErrorCode 统一错误码，用于对齐可重试性与用户可见消息。
type ErrorCode string

const (
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"     // 配置不合法
	ErrNoAPIKey          ErrorCode = "NO_API_KEY"         // 未配置 API Key
	ErrNoProvider        ErrorCode = "NO_PROVIDER"        // 无可用提供商
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"     // 上游错误
	ErrUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"   // 上游超时
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE" // 响应格式错误
	ErrContentFiltered   ErrorCode = "CONTENT_FILTERED"   // 命中内容安全
	ErrNoImageData       ErrorCode = "NO_IMAGE_DATA"      // 响应中无图片数据
	ErrDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"    // 图片下载失败
	ErrImageTooLarge     ErrorCode = "IMAGE_TOO_LARGE"    // 图片超过大小限制
	ErrNotEnoughImages   ErrorCode = "NOT_ENOUGH_IMAGES"  // 参考图片数量不足
	ErrKeysExhausted     ErrorCode = "KEYS_EXHAUSTED"     // 所有 Key 均已用尽
	ErrRecaptchaFailed   ErrorCode = "RECAPTCHA_FAILED"   // reCAPTCHA 交换失败
	ErrCancelled         ErrorCode = "CANCELLED"          // 请求被取消
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"     // 程序错误
)

// Error 结构化错误。Message 是面向用户的简短描述；
// 原始响应体等诊断细节只进日志，不进 Message。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层原因。
func (e *Error) Unwrap() error { return e.Cause }

// NewError 创建指定错误码与消息的错误。
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 附加底层原因。
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus 设置 HTTP 状态码。
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable 标记错误是否可重试。
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider 设置提供商名称。
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable 检查错误是否可重试。
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode 提取错误码，非 *Error 返回空串。
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
