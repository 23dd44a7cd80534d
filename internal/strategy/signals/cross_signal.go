package signals

import (
	"go.uber.org/zap"
	"sector-strength-sentry/internal/strategy/indicators"
	"sector-strength-sentry/pkg/types"
)

// CrossDetector 均线金叉/死叉检测器，只比较短周期与长周期两条均线
type CrossDetector struct {
	fast int
	slow int
}

// NewCrossDetector 创建 MA5/MA20 交叉检测器
func NewCrossDetector() *CrossDetector {
	return &CrossDetector{
		fast: indicators.MA5,
		slow: indicators.MA20,
	}
}

// DetectCrosses 单次正向遍历相邻样本，返回按输入顺序排列的交叉事件
//
// 相邻两点任一均线为空则跳过；两侧都必须严格有序才算交叉，
// 经过相等点的穿越不计入。
func (cd *CrossDetector) DetectCrosses(series []types.MovingAverageSample) []types.CrossEvent {
	events := make([]types.CrossEvent, 0)
	if len(series) < 2 {
		return events
	}

	for i := 1; i < len(series); i++ {
		prevFast := series[i-1].MAValue(cd.fast)
		prevSlow := series[i-1].MAValue(cd.slow)
		currFast := series[i].MAValue(cd.fast)
		currSlow := series[i].MAValue(cd.slow)

		if prevFast == nil || prevSlow == nil || currFast == nil || currSlow == nil {
			continue
		}

		var crossType types.CrossType
		switch {
		case *prevFast < *prevSlow && *currFast > *currSlow:
			crossType = types.CrossGolden
		case *prevFast > *prevSlow && *currFast < *currSlow:
			crossType = types.CrossDeath
		default:
			continue
		}

		events = append(events, types.CrossEvent{
			Date:  series[i].Date,
			Index: i,
			Type:  crossType,
			Value: *currFast,
		})

		zap.L().Debug("检测到均线交叉",
			zap.String("type", string(crossType)),
			zap.Time("date", series[i].Date),
			zap.Float64("ma_fast", *currFast),
			zap.Float64("ma_slow", *currSlow))
	}

	return events
}

// Latest 返回最近一次交叉事件
func Latest(events []types.CrossEvent) (types.CrossEvent, bool) {
	if len(events) == 0 {
		return types.CrossEvent{}, false
	}
	return events[len(events)-1], true
}
