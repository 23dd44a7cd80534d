package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sector-strength-sentry/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *APIClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewAPIClient(
		types.APIConfig{BaseURL: server.URL, Token: "test-token", Timeout: 2 * time.Second, RetryCount: 3, PageSize: 2},
		types.BreakerConfig{ConsecutiveFailures: 100},
		types.NetworkConfig{},
	)
	client.retryBackoff = time.Millisecond
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestAPIClient_ListClassifications(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sector-classifications", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "10", r.URL.Query().Get("skip"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{
				{"sector_id": "1", "sector_name": "新能源", "classification_level": 9, "state": "bounce", "change_percent": 2.5},
				{"sector_id": "2", "sector_name": "金融", "classification_level": 1, "state": "adjustment", "change_percent": nil},
			},
			"total": 12,
		})
	})

	result, err := client.ListClassifications(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	require.NotNil(t, result.Total)
	assert.Equal(t, 12, *result.Total)
	assert.Equal(t, 9, result.Records[0].Level)
	assert.Equal(t, types.StateBounce, result.Records[0].State)
	assert.Nil(t, result.Records[1].ChangePercent)
}

func TestAPIClient_ListAllClassificationsPages(t *testing.T) {
	t.Parallel()

	pages := map[string][]types.ClassificationRecord{
		"":  {{SectorID: "1"}, {SectorID: "2"}},
		"2": {{SectorID: "3"}},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(t, w, http.StatusOK, map[string]interface{}{"data": pages[r.URL.Query().Get("skip")]})
	})

	records, err := client.ListAllClassifications(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "3", records[2].SectorID)
}

func TestAPIClient_GetClassification(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sector-classifications/BK0001", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"sector_id": "BK0001", "sector_name": "医药", "classification_level": 5},
		})
	})

	record, err := client.GetClassification(context.Background(), "BK0001")
	require.NoError(t, err)
	assert.Equal(t, "医药", record.SectorName)
	assert.Equal(t, 5, record.Level)
}

func TestAPIClient_FixClassificationPartialFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/sector-classification/fix", r.URL.Path)

		var req types.FixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.FixRequest{SectorID: "1", Days: 30}, req)

		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"success_count":    2,
				"failed_count":     1,
				"duration_seconds": 1.5,
				"sectors": []map[string]interface{}{
					{"sector_id": "1", "sector_name": "a", "success": true},
					{"sector_id": "2", "sector_name": "b", "success": true},
					{"sector_id": "3", "sector_name": "c", "success": false, "error": "缺少行情数据"},
				},
			},
		})
	})

	outcome, err := client.FixClassification(context.Background(), types.FixRequest{SectorID: "1", Days: 30})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.SuccessCount)
	assert.Equal(t, 1, outcome.FailedCount)
	require.Len(t, outcome.Sectors, 3)
	assert.Equal(t, "缺少行情数据", outcome.Sectors[2].Error)
}

func TestAPIClient_FixClassificationApplicationFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   map[string]interface{}{"code": "SECTOR_NOT_FOUND", "message": "板块不存在"},
		})
	})

	_, err := client.FixClassification(context.Background(), types.FixRequest{SectorID: "404", Days: 30})
	require.Error(t, err)
	assert.Equal(t, "板块不存在", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SECTOR_NOT_FOUND", apiErr.Code)
}

func TestAPIClient_ErrorEnvelopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       int
		body         string
		expectedMsg  string
		unauthorized bool
	}{
		{
			name:        "structured envelope",
			status:      http.StatusBadRequest,
			body:        `{"error":{"code":"INVALID_DAYS","message":"修复天数无效","timestamp":"2025-03-03T10:00:00Z"}}`,
			expectedMsg: "修复天数无效",
		},
		{
			name:        "legacy detail",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":"参数错误"}`,
			expectedMsg: "参数错误",
		},
		{
			name:         "unauthorized",
			status:       http.StatusUnauthorized,
			body:         `{"detail":"Not authenticated"}`,
			expectedMsg:  "Not authenticated",
			unauthorized: true,
		},
		{
			name:        "unparseable body",
			status:      http.StatusForbidden,
			body:        `<html>forbidden</html>`,
			expectedMsg: "HTTP状态码错误: 403",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetClassification(context.Background(), "1")
			require.Error(t, err)
			assert.Equal(t, tt.expectedMsg, err.Error())
			assert.Equal(t, tt.unauthorized, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestAPIClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"calculation_status": "normal"},
		})
	})

	status, err := client.GetMonitoringStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.CalculationNormal, status.CalculationStatus)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestAPIClient_DoesNotRetryClientErrorsOrFix(t *testing.T) {
	t.Parallel()

	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetClassification(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = client.FixClassification(context.Background(), types.FixRequest{SectorID: "1", Days: 1})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAPIClient_BreakerOpens(t *testing.T) {
	t.Parallel()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewAPIClient(
		types.APIConfig{BaseURL: server.URL, RetryCount: 1},
		types.BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute},
		types.NetworkConfig{},
	)

	for i := 0; i < 2; i++ {
		_, err := client.GetMonitoringStatus(context.Background())
		require.Error(t, err)
	}

	_, err := client.GetMonitoringStatus(context.Background())
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryableAndFailureClassification(t *testing.T) {
	t.Parallel()

	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(&APIError{StatusCode: http.StatusBadRequest}))
	assert.True(t, retryable(&APIError{StatusCode: http.StatusBadGateway}))
	assert.True(t, retryable(errors.New("connection refused")))

	assert.False(t, countsAsFailure(nil))
	assert.False(t, countsAsFailure(&APIError{StatusCode: http.StatusUnauthorized}))
	assert.True(t, countsAsFailure(&APIError{StatusCode: http.StatusInternalServerError}))
}

func TestAPIClient_GetMonitoringStatusNaiveTimestamp(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/sector-classification/monitoring-status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"last_calculation_time":"2024-01-15T10:30:00",` +
			`"calculation_status":"normal","last_duration_ms":850,"today_calculation_count":2,` +
			`"data_integrity":{"total_sectors":2,"sectors_with_data":2,"missing_sectors":[]}}}`))
	})

	status, err := client.GetMonitoringStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.LastCalculationTime)
	assert.True(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local).Equal(status.LastCalculationTime.Time))
	assert.True(t, status.Healthy())
}
