package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"sector-strength-sentry/pkg/types"
)

const (
	classificationsPath  = "/sector-classifications"
	fixPath              = "/admin/sector-classification/fix"
	monitoringStatusPath = "/admin/sector-classification/monitoring-status"
)

// APIClient 板块分类后端接口客户端
type APIClient struct {
	client       *resty.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	retryCount   int
	retryBackoff time.Duration
	pageSize     int
}

// ListResult 分类列表分页结果
type ListResult struct {
	Records []types.ClassificationRecord
	Total   *int
}

type listResponse struct {
	Data  []types.ClassificationRecord `json:"data"`
	Total *int                         `json:"total"`
}

type recordResponse struct {
	Data *types.ClassificationRecord `json:"data"`
}

type fixResponse struct {
	Success bool              `json:"success"`
	Data    *types.FixOutcome `json:"data"`
	Error   *errorBody        `json:"error"`
}

type monitoringResponse struct {
	Success bool                    `json:"success"`
	Data    *types.MonitoringStatus `json:"data"`
	Error   *errorBody              `json:"error"`
}

// NewAPIClient 创建后端接口客户端
func NewAPIClient(apiConfig types.APIConfig, breakerConfig types.BreakerConfig, networkConfig types.NetworkConfig) *APIClient {
	// 设置超时时间
	timeout := apiConfig.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(apiConfig.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "Sector-Strength-Sentry/1.0")

	if apiConfig.Token != "" {
		client.SetAuthToken(apiConfig.Token)
	}

	// 如果配置了代理，则使用代理
	if networkConfig.Proxy != "" {
		if _, err := url.Parse(networkConfig.Proxy); err == nil {
			client.SetProxy(networkConfig.Proxy)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	limit := rate.Inf
	if apiConfig.RateLimit > 0 {
		limit = rate.Limit(apiConfig.RateLimit)
	}
	burst := apiConfig.RateBurst
	if burst <= 0 {
		burst = 1
	}

	retryCount := apiConfig.RetryCount
	if retryCount <= 0 {
		retryCount = 1
	}

	pageSize := apiConfig.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	zap.L().Info("✅ 初始化后端接口客户端",
		zap.String("base_url", apiConfig.BaseURL),
		zap.Duration("timeout", timeout))

	return &APIClient{
		client:       client,
		limiter:      rate.NewLimiter(limit, burst),
		breaker:      newBreaker(breakerConfig),
		retryCount:   retryCount,
		retryBackoff: time.Second,
		pageSize:     pageSize,
	}
}

func newBreaker(cfg types.BreakerConfig) *gobreaker.CircuitBreaker {
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sector-classification-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("⚡ 后端接口熔断状态变化",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
	})
}

// ListClassifications 分页获取板块分类列表，limit<=0 时不带分页参数
func (c *APIClient) ListClassifications(ctx context.Context, skip, limit int) (*ListResult, error) {
	query := map[string]string{}
	if skip > 0 {
		query["skip"] = strconv.Itoa(skip)
	}
	if limit > 0 {
		query["limit"] = strconv.Itoa(limit)
	}

	body, err := c.do(ctx, http.MethodGet, classificationsPath, query, nil)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析分类列表失败: %w", err)
	}

	return &ListResult{Records: resp.Data, Total: resp.Total}, nil
}

// ListAllClassifications 逐页拉取全部分类记录
func (c *APIClient) ListAllClassifications(ctx context.Context) ([]types.ClassificationRecord, error) {
	all := make([]types.ClassificationRecord, 0)

	for skip := 0; ; {
		page, err := c.ListClassifications(ctx, skip, c.pageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Records...)
		skip += len(page.Records)

		if len(page.Records) < c.pageSize {
			break
		}
		if page.Total != nil && skip >= *page.Total {
			break
		}
	}

	zap.L().Debug("📊 分类数据拉取完成", zap.Int("count", len(all)))
	return all, nil
}

// GetClassification 获取单个板块的分类记录
func (c *APIClient) GetClassification(ctx context.Context, sectorID string) (*types.ClassificationRecord, error) {
	body, err := c.do(ctx, http.MethodGet, classificationsPath+"/"+url.PathEscape(sectorID), nil, nil)
	if err != nil {
		return nil, err
	}

	var resp recordResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析分类记录失败: %w", err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("板块 %s 没有分类数据", sectorID)
	}

	return resp.Data, nil
}

// FixClassification 提交数据修复请求，修复请求不做重试
func (c *APIClient) FixClassification(ctx context.Context, req types.FixRequest) (*types.FixOutcome, error) {
	body, err := c.do(ctx, http.MethodPost, fixPath, nil, req)
	if err != nil {
		return nil, err
	}

	var resp fixResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析修复结果失败: %w", err)
	}

	if !resp.Success {
		return nil, envelopeError(resp.Error, "数据修复失败")
	}
	if resp.Data == nil {
		return nil, errors.New("修复响应缺少结果数据")
	}

	return resp.Data, nil
}

// GetMonitoringStatus 获取分类计算监控状态
func (c *APIClient) GetMonitoringStatus(ctx context.Context) (*types.MonitoringStatus, error) {
	body, err := c.do(ctx, http.MethodGet, monitoringStatusPath, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp monitoringResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("解析监控状态失败: %w", err)
	}

	if !resp.Success {
		return nil, envelopeError(resp.Error, "获取监控状态失败")
	}
	if resp.Data == nil {
		return nil, errors.New("监控状态响应缺少数据")
	}

	return resp.Data, nil
}

// do 发送请求，GET请求在网络错误或5xx时按退避重试
func (c *APIClient) do(ctx context.Context, method, path string, query map[string]string, payload interface{}) ([]byte, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts = c.retryCount
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			zap.L().Info("🔄 重试请求后端接口",
				zap.String("path", path),
				zap.Int("attempt", attempt))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * c.retryBackoff):
			}
		}

		body, err := c.execute(ctx, method, path, query, payload)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
	}

	return nil, lastErr
}

// execute 经过限流与熔断后发出单次请求
func (c *APIClient) execute(ctx context.Context, method, path string, query map[string]string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req := c.client.R().SetContext(ctx)
		if len(query) > 0 {
			req.SetQueryParams(query)
		}
		if payload != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(payload)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, fmt.Errorf("HTTP请求失败: %w", err)
		}

		if !resp.IsSuccess() {
			return nil, parseAPIError(resp.StatusCode(), resp.Body())
		}
		return resp.Body(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
		}
		return nil, err
	}

	return result.([]byte), nil
}

func envelopeError(body *errorBody, fallback string) error {
	if body == nil {
		return &APIError{StatusCode: http.StatusOK, Message: fallback}
	}

	apiErr := &APIError{
		StatusCode: http.StatusOK,
		Code:       body.Code,
		Message:    body.Message,
		Timestamp:  body.Timestamp,
	}
	if apiErr.Message == "" {
		apiErr.Message = fallback
	}
	return apiErr
}
