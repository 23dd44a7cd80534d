package types

import "time"

// SectorState 板块短期状态
type SectorState string

const (
	StateBounce     SectorState = "bounce"     // 反弹：现价高于N日前价格
	StateAdjustment SectorState = "adjustment" // 调整：现价不高于N日前价格
)

// MovingAverageSample 某一交易日的价格与均线梯队
// MA 的键为均线周期，值为空表示该周期数据不足
type MovingAverageSample struct {
	Date         time.Time        `json:"date"`
	CurrentPrice *float64         `json:"current_price"`
	MA           map[int]*float64 `json:"ma"`
}

// MAValue 返回指定周期的均线值
func (s MovingAverageSample) MAValue(period int) *float64 {
	if s.MA == nil {
		return nil
	}
	return s.MA[period]
}

// ClassificationRecord 板块分类记录，每个板块每个交易日一条
type ClassificationRecord struct {
	SectorID      string      `json:"sector_id"`
	SectorName    string      `json:"sector_name"`
	Date          string      `json:"date"` // YYYY-MM-DD
	Level         int         `json:"classification_level"`
	State         SectorState `json:"state"`
	CurrentPrice  *float64    `json:"current_price"`
	ChangePercent *float64    `json:"change_percent"`
}

// SectorSeries 单个板块按日期升序排列的均线样本
type SectorSeries struct {
	SectorID   string
	SectorName string
	Samples    []MovingAverageSample
}

// Float64 返回指向v的指针，便于构造可空数值
func Float64(v float64) *float64 {
	return &v
}
