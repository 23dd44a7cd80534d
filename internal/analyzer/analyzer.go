package analyzer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"sector-strength-sentry/internal/strategy/indicators"
	"sector-strength-sentry/internal/strategy/signals"
	"sector-strength-sentry/pkg/types"
)

const dateLayout = "2006-01-02"

// SectorAnalysis 单个板块的分析结果
type SectorAnalysis struct {
	Record  types.ClassificationRecord
	Crosses []types.CrossEvent
}

// AnalysisEngine 分析引擎，由本地均线序列得出分类记录与交叉信号
type AnalysisEngine struct {
	classifier *indicators.Classifier
	detector   *signals.CrossDetector
}

func NewAnalysisEngine(ladder indicators.Ladder) *AnalysisEngine {
	return &AnalysisEngine{
		classifier: indicators.NewClassifier(ladder),
		detector:   signals.NewCrossDetector(),
	}
}

// ClassifySeries 对板块最新一个交易日分类，并检测整个序列的均线交叉
func (ae *AnalysisEngine) ClassifySeries(series types.SectorSeries) (*SectorAnalysis, error) {
	samples := series.Samples
	if len(samples) == 0 {
		return nil, fmt.Errorf("板块 %s 没有样本数据", series.SectorID)
	}

	last := len(samples) - 1
	result, err := ae.classifier.ClassifySample(samples, last)
	if err != nil {
		return nil, fmt.Errorf("板块 %s 分类失败: %w", series.SectorID, err)
	}

	record := types.ClassificationRecord{
		SectorID:     series.SectorID,
		SectorName:   series.SectorName,
		Date:         samples[last].Date.Format(dateLayout),
		Level:        result.Level,
		State:        result.State,
		CurrentPrice: samples[last].CurrentPrice,
	}
	if last > 0 {
		record.ChangePercent = changePercent(samples[last].CurrentPrice, samples[last-1].CurrentPrice)
	}

	return &SectorAnalysis{
		Record:  record,
		Crosses: ae.detector.DetectCrosses(samples),
	}, nil
}

// ClassifyAll 并发分析所有板块，结果保持输入顺序，失败的板块跳过并记录日志
func (ae *AnalysisEngine) ClassifyAll(series []types.SectorSeries) []SectorAnalysis {
	if len(series) == 0 {
		return []SectorAnalysis{}
	}

	zap.L().Info("📊 开始分析板块", zap.Int("count", len(series)))

	results := make([]*SectorAnalysis, len(series))

	var wg sync.WaitGroup
	for i := range series {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			analysis, err := ae.ClassifySeries(series[idx])
			if err != nil {
				zap.L().Warn("⚠️ 板块分析跳过", zap.String("sector_id", series[idx].SectorID), zap.Error(err))
				return
			}
			results[idx] = analysis
		}(i)
	}
	wg.Wait()

	out := make([]SectorAnalysis, 0, len(series))
	for _, analysis := range results {
		if analysis != nil {
			out = append(out, *analysis)
		}
	}

	zap.L().Info("✅ 分析完成",
		zap.Int("classified", len(out)),
		zap.Int("skipped", len(series)-len(out)))
	return out
}

// Records 提取分类记录
func Records(analyses []SectorAnalysis) []types.ClassificationRecord {
	records := make([]types.ClassificationRecord, len(analyses))
	for i, analysis := range analyses {
		records[i] = analysis.Record
	}
	return records
}

// changePercent 相对前一交易日的涨跌幅，任一价格缺失或前值为0时为空
func changePercent(current, previous *float64) *float64 {
	if current == nil || previous == nil || *previous == 0 {
		return nil
	}
	return types.Float64((*current - *previous) / *previous * 100)
}
