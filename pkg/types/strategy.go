package types

import "time"

// FixRequest 数据修复请求，SectorID 与 SectorName 必须且只能指定一个
type FixRequest struct {
	SectorID   string `json:"sector_id,omitempty"`
	SectorName string `json:"sector_name,omitempty"`
	Days       int    `json:"days"`
	Overwrite  bool   `json:"overwrite"`
}

// FixSectorResult 单个板块的修复结果
type FixSectorResult struct {
	SectorID   string `json:"sector_id"`
	SectorName string `json:"sector_name"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// FixOutcome 一次修复任务的汇总结果
type FixOutcome struct {
	SuccessCount    int               `json:"success_count"`
	FailedCount     int               `json:"failed_count"`
	DurationSeconds float64           `json:"duration_seconds"`
	Sectors         []FixSectorResult `json:"sectors"`
}

// FixReport 一次修复会话的终态报告，用于通知与历史记录
type FixReport struct {
	SessionID  string      `json:"session_id"`
	Request    FixRequest  `json:"request"`
	Success    bool        `json:"success"` // 请求是否到达后端并返回结果
	Outcome    *FixOutcome `json:"outcome,omitempty"`
	Message    string      `json:"message,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}
