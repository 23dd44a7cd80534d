package types

import "time"

// ClassificationResult 分类引擎输出
type ClassificationResult struct {
	Level int         `json:"level"` // 1-9，9最强
	State SectorState `json:"state"`
}

// CrossType 均线交叉类型
type CrossType string

const (
	CrossGolden CrossType = "golden" // 金叉：MA5上穿MA20
	CrossDeath  CrossType = "death"  // 死叉：MA5下穿MA20
)

// CrossEvent 均线交叉事件，仅用于展示，不做持久化
type CrossEvent struct {
	Date  time.Time `json:"date"`
	Index int       `json:"index"` // 在输入序列中的位置
	Type  CrossType `json:"type"`
	Value float64   `json:"value"` // 交叉点的MA5值
}
