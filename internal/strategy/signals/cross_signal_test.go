package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sector-strength-sentry/internal/strategy/indicators"
	"sector-strength-sentry/pkg/types"
)

var baseDate = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

// buildSeries 用MA5/MA20构造升序样本，nil表示该点均线缺失
func buildSeries(ma5, ma20 []*float64) []types.MovingAverageSample {
	series := make([]types.MovingAverageSample, len(ma5))
	for i := range ma5 {
		series[i] = types.MovingAverageSample{
			Date: baseDate.AddDate(0, 0, i),
			MA: map[int]*float64{
				indicators.MA5:  ma5[i],
				indicators.MA20: ma20[i],
			},
		}
	}
	return series
}

func values(vs ...float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = types.Float64(v)
	}
	return out
}

func TestCrossDetector_GoldenCrossScenario(t *testing.T) {
	t.Parallel()

	series := buildSeries(values(1000, 1015), values(1010, 1012))

	events := NewCrossDetector().DetectCrosses(series)

	require.Len(t, events, 1)
	assert.Equal(t, types.CrossGolden, events[0].Type)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, 1015.0, events[0].Value)
	assert.Equal(t, baseDate.AddDate(0, 0, 1), events[0].Date)
}

func TestCrossDetector_MonotonicCrossing(t *testing.T) {
	t.Parallel()

	ma5 := []float64{90, 95, 99, 103, 108, 112}
	ma20 := []float64{100, 100, 100, 100, 100, 100}

	events := NewCrossDetector().DetectCrosses(buildSeries(values(ma5...), values(ma20...)))
	require.Len(t, events, 1)
	assert.Equal(t, types.CrossGolden, events[0].Type)
	assert.Equal(t, 3, events[0].Index)

	// 反转数值方向，得到镜像的死叉
	reversed := make([]float64, len(ma5))
	for i := range ma5 {
		reversed[i] = ma5[len(ma5)-1-i]
	}
	mirrored := NewCrossDetector().DetectCrosses(buildSeries(values(reversed...), values(ma20...)))
	require.Len(t, mirrored, len(events))
	assert.Equal(t, types.CrossDeath, mirrored[0].Type)
}

func TestCrossDetector_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ma5      []*float64
		ma20     []*float64
		expected []types.CrossType
	}{
		{
			name:     "empty series",
			ma5:      nil,
			ma20:     nil,
			expected: []types.CrossType{},
		},
		{
			name:     "single point",
			ma5:      values(1),
			ma20:     values(2),
			expected: []types.CrossType{},
		},
		{
			name:     "touching equality is not a cross",
			ma5:      values(99, 100, 101),
			ma20:     values(100, 100, 100),
			expected: []types.CrossType{},
		},
		{
			name:     "nil values skip the pair",
			ma5:      []*float64{types.Float64(90), nil, types.Float64(110)},
			ma20:     values(100, 100, 100),
			expected: []types.CrossType{},
		},
		{
			name:     "golden then death keeps input order",
			ma5:      values(90, 110, 120, 95),
			ma20:     values(100, 100, 100, 100),
			expected: []types.CrossType{types.CrossGolden, types.CrossDeath},
		},
		{
			name:     "nil only in slow MA",
			ma5:      values(90, 110),
			ma20:     []*float64{types.Float64(100), nil},
			expected: []types.CrossType{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			events := NewCrossDetector().DetectCrosses(buildSeries(tt.ma5, tt.ma20))
			require.NotNil(t, events)

			got := make([]types.CrossType, len(events))
			for i, e := range events {
				got[i] = e.Type
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	_, ok := Latest(nil)
	assert.False(t, ok)

	events := []types.CrossEvent{{Index: 1, Type: types.CrossGolden}, {Index: 4, Type: types.CrossDeath}}
	latest, ok := Latest(events)
	assert.True(t, ok)
	assert.Equal(t, 4, latest.Index)
}
