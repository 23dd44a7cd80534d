package analyzer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"sector-strength-sentry/internal/strategy/indicators"
	"sector-strength-sentry/pkg/types"
)

type dailyClose struct {
	date  time.Time
	close float64
}

// LoadSeriesCSV 读取 sector_id,sector_name,date,close 格式的日线收盘价，
// 按板块分组并计算均线序列，板块顺序与首次出现的顺序一致
func LoadSeriesCSV(r io.Reader, ladder indicators.Ladder) ([]types.SectorSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	var (
		order  []string
		names  = make(map[string]string)
		closes = make(map[string][]dailyClose)
	)

	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取CSV失败: %w", err)
		}

		// 表头
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[3]), "close") {
			continue
		}

		id := strings.TrimSpace(row[0])
		if id == "" {
			return nil, fmt.Errorf("第%d行缺少板块ID", line)
		}
		date, err := time.Parse(dateLayout, strings.TrimSpace(row[2]))
		if err != nil {
			return nil, fmt.Errorf("第%d行日期格式错误: %w", line, err)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return nil, fmt.Errorf("第%d行收盘价格式错误: %w", line, err)
		}

		if _, ok := names[id]; !ok {
			order = append(order, id)
			names[id] = strings.TrimSpace(row[1])
		}
		closes[id] = append(closes[id], dailyClose{date: date, close: value})
	}

	series := make([]types.SectorSeries, 0, len(order))
	for _, id := range order {
		points := closes[id]
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].date.Before(points[j].date)
		})

		dates := make([]time.Time, len(points))
		values := make([]float64, len(points))
		for i, p := range points {
			dates[i] = p.date
			values[i] = p.close
		}

		samples, err := indicators.BuildSamples(dates, values, ladder)
		if err != nil {
			return nil, fmt.Errorf("板块 %s: %w", id, err)
		}
		if len(points) < ladder.Longest() {
			zap.L().Debug("历史数据不足最长均线周期，高级别不可达",
				zap.String("sector_id", id),
				zap.Int("days", len(points)),
				zap.Int("longest", ladder.Longest()))
		}

		series = append(series, types.SectorSeries{
			SectorID:   id,
			SectorName: names[id],
			Samples:    samples,
		})
	}

	return series, nil
}
