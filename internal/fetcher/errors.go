package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized 后端返回401，需要重新认证
	ErrUnauthorized = errors.New("认证已失效，请重新登录")
	// ErrBreakerOpen 熔断器打开，请求未发出
	ErrBreakerOpen = errors.New("后端接口暂时不可用")
)

// APIError 后端返回的错误
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Timestamp  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("HTTP状态码错误: %d", e.StatusCode)
}

// Is 使 errors.Is(err, ErrUnauthorized) 对401生效
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// errorBody 新版错误体
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// errorEnvelope 同时兼容 {error:{...}} 和旧版 {detail:"..."}
type errorEnvelope struct {
	Error  *errorBody      `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// parseAPIError 解析非2xx响应，无法解析时返回通用错误
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apiErr
	}

	if envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Timestamp = envelope.Error.Timestamp
		return apiErr
	}

	if len(envelope.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
			apiErr.Message = detail
		} else {
			apiErr.Message = strings.TrimSpace(string(envelope.Detail))
		}
	}

	return apiErr
}

// retryable 仅对网络错误和5xx重试
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrBreakerOpen) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// countsAsFailure 判断错误是否计入熔断统计，4xx属于请求本身的问题
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
