package indicators

// 均线梯队周期，按从短到长排列
const (
	MA5   = 5
	MA10  = 10
	MA20  = 20
	MA30  = 30
	MA60  = 60
	MA90  = 90
	MA120 = 120
	MA240 = 240
)

// DefaultBenchmarkDays 判断反弹/调整时对比的交易日数
const DefaultBenchmarkDays = 5

// Ladder 均线梯队配置
type Ladder struct {
	periods       []int
	benchmarkDays int
}

// DefaultLadder 返回 5/10/20/30/60/90/120/240 日均线梯队，基准窗口5日
func DefaultLadder() Ladder {
	return Ladder{
		periods:       []int{MA5, MA10, MA20, MA30, MA60, MA90, MA120, MA240},
		benchmarkDays: DefaultBenchmarkDays,
	}
}

// Periods 返回周期副本
func (l Ladder) Periods() []int {
	out := make([]int, len(l.periods))
	copy(out, l.periods)
	return out
}

// BenchmarkDays 基准窗口
func (l Ladder) BenchmarkDays() int {
	return l.benchmarkDays
}

// MaxLevel 全部均线之上对应的级别
func (l Ladder) MaxLevel() int {
	return len(l.periods) + 1
}

// Longest 最长周期
func (l Ladder) Longest() int {
	return l.periods[len(l.periods)-1]
}
