package indicators

import (
	"errors"
	"time"

	"sector-strength-sentry/pkg/types"
)

// CalculateSMA 计算截止到 end（含）的 period 日简单移动平均
func CalculateSMA(closes []float64, end, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("均线周期必须为正数")
	}
	if end < 0 || end >= len(closes) {
		return 0, errors.New("计算位置超出数据范围")
	}
	if end+1 < period {
		return 0, errors.New("数据不足，无法计算均线")
	}

	sum := 0.0
	for i := end - period + 1; i <= end; i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// BuildSamples 由升序收盘价生成均线样本序列，历史长度不足的周期置为空
func BuildSamples(dates []time.Time, closes []float64, ladder Ladder) ([]types.MovingAverageSample, error) {
	if len(dates) != len(closes) {
		return nil, errors.New("日期与收盘价数量不一致")
	}

	samples := make([]types.MovingAverageSample, 0, len(closes))
	for i := range closes {
		if i > 0 && !dates[i].After(dates[i-1]) {
			return nil, errors.New("日期必须严格升序且不能重复")
		}

		ma := make(map[int]*float64, len(ladder.periods))
		for _, period := range ladder.periods {
			value, err := CalculateSMA(closes, i, period)
			if err != nil {
				ma[period] = nil
				continue
			}
			ma[period] = types.Float64(value)
		}

		samples = append(samples, types.MovingAverageSample{
			Date:         dates[i],
			CurrentPrice: types.Float64(closes[i]),
			MA:           ma,
		})
	}

	return samples, nil
}
