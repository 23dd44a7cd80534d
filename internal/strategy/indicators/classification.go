package indicators

import (
	"errors"
	"math"

	"sector-strength-sentry/pkg/types"
)

// ErrInsufficientData 输入缺失或不是有限数值，无法给出分类级别
var ErrInsufficientData = errors.New("数据不足，无法计算分类级别")

// Classifier 板块强弱分类计算器
type Classifier struct {
	ladder Ladder
}

// NewClassifier 创建分类计算器
func NewClassifier(ladder Ladder) *Classifier {
	return &Classifier{ladder: ladder}
}

// Classify 根据现价与均线梯队计算级别（1-9）和反弹/调整状态
//
// 从最短周期开始，现价连续站上的均线数量为 n，则级别为 n+1。
// 某周期均线为空视为未站上，连续计数在此中断。
func (c *Classifier) Classify(currentPrice *float64, ma map[int]*float64, priceNDaysAgo *float64) (types.ClassificationResult, error) {
	if !isFinite(currentPrice) || !isFinite(priceNDaysAgo) {
		return types.ClassificationResult{}, ErrInsufficientData
	}

	for _, value := range ma {
		if value != nil && (math.IsNaN(*value) || math.IsInf(*value, 0)) {
			return types.ClassificationResult{}, ErrInsufficientData
		}
	}

	price := *currentPrice
	crossed := 0
	for _, period := range c.ladder.periods {
		value := ma[period]
		if value == nil || price <= *value {
			break
		}
		crossed++
	}

	return types.ClassificationResult{
		Level: crossed + 1,
		State: c.State(price, *priceNDaysAgo),
	}, nil
}

// State 现价高于基准价为反弹，相等或更低为调整
func (c *Classifier) State(currentPrice, priceNDaysAgo float64) types.SectorState {
	if currentPrice > priceNDaysAgo {
		return types.StateBounce
	}
	return types.StateAdjustment
}

// ClassifySample 对序列中 index 位置的样本分类，基准价取 BenchmarkDays 个交易日之前的样本
func (c *Classifier) ClassifySample(samples []types.MovingAverageSample, index int) (types.ClassificationResult, error) {
	benchmark := index - c.ladder.benchmarkDays
	if index < 0 || index >= len(samples) || benchmark < 0 {
		return types.ClassificationResult{}, ErrInsufficientData
	}

	current := samples[index]
	return c.Classify(current.CurrentPrice, current.MA, samples[benchmark].CurrentPrice)
}

func isFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
