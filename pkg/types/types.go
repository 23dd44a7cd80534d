package types

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// CalculationStatus 后端计算任务状态
type CalculationStatus string

const (
	CalculationNormal   CalculationStatus = "normal"
	CalculationAbnormal CalculationStatus = "abnormal"
	CalculationFailed   CalculationStatus = "failed"
)

// SectorRef 板块标识
type SectorRef struct {
	SectorID   string `json:"sector_id"`
	SectorName string `json:"sector_name"`
}

// DataIntegrity 数据完整性统计
type DataIntegrity struct {
	TotalSectors    int         `json:"total_sectors"`
	SectorsWithData int         `json:"sectors_with_data"`
	MissingSectors  []SectorRef `json:"missing_sectors"`
}

// MonitoringStatus 分类计算监控状态
type MonitoringStatus struct {
	LastCalculationTime   *Timestamp        `json:"last_calculation_time"`
	CalculationStatus     CalculationStatus `json:"calculation_status"`
	LastDurationMs        int64             `json:"last_duration_ms"`
	TodayCalculationCount int               `json:"today_calculation_count"`
	DataIntegrity         DataIntegrity     `json:"data_integrity"`
}

// Healthy 计算状态正常且没有缺失数据的板块
func (s *MonitoringStatus) Healthy() bool {
	return s.CalculationStatus == CalculationNormal && len(s.DataIntegrity.MissingSectors) == 0
}

// 后端时间戳可能不带时区，不带时区时按本地时间解析
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp 兼容 RFC3339 与不带时区的 ISO 8601 时间
type Timestamp struct {
	time.Time
}

// UnmarshalJSON 解析时间字符串，null 保持零值
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("时间格式错误: %s", data)
	}

	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("无法解析时间: %q", raw)
}
