// Package resultset 对板块分类结果集做排序、搜索等纯内存变换，不修改输入。
package resultset

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"sector-strength-sentry/pkg/types"
)

// Column 排序字段
type Column string

const (
	ColumnLevel         Column = "classification_level"
	ColumnName          Column = "sector_name"
	ColumnChangePercent Column = "change_percent"
)

// Order 排序方向
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseColumn 解析排序字段，兼容前端使用的简写
func ParseColumn(s string) (Column, error) {
	switch strings.TrimSpace(s) {
	case "classification_level", "level":
		return ColumnLevel, nil
	case "sector_name", "name":
		return ColumnName, nil
	case "change_percent", "changePercent":
		return ColumnChangePercent, nil
	default:
		return "", fmt.Errorf("不支持的排序字段: %s", s)
	}
}

// ParseOrder 解析排序方向
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc":
		return OrderAsc, nil
	case "desc":
		return OrderDesc, nil
	default:
		return "", fmt.Errorf("不支持的排序方向: %s", s)
	}
}

// Query 一次视图变换：先搜索再排序
type Query struct {
	Search string
	Column Column
	Order  Order
}

// Processor 结果集处理器
type Processor struct {
	tag language.Tag
}

// NewProcessor 创建处理器，tag 决定板块名称的排序规则
func NewProcessor(tag language.Tag) *Processor {
	return &Processor{tag: tag}
}

// NewProcessorForLocale 按语言代码创建处理器，无法识别时使用中文
func NewProcessorForLocale(locale string) *Processor {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Chinese
	}
	return NewProcessor(tag)
}

// Sort 返回排序后的新切片，相等元素保持原有顺序
func (p *Processor) Sort(records []types.ClassificationRecord, column Column, order Order) []types.ClassificationRecord {
	out := make([]types.ClassificationRecord, len(records))
	copy(out, records)

	// collate.Collator 不是并发安全的，每次排序单独创建
	collator := collate.New(p.tag)

	compare := func(a, b types.ClassificationRecord) int {
		switch column {
		case ColumnName:
			return collator.CompareString(a.SectorName, b.SectorName)
		case ColumnChangePercent:
			return compareNumbers(a.ChangePercent, b.ChangePercent)
		default:
			return compareInts(a.Level, b.Level)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		// 涨跌幅为空的记录无论升降序都排在最后
		if column == ColumnChangePercent {
			ni, nj := out[i].ChangePercent == nil, out[j].ChangePercent == nil
			if ni != nj {
				return nj
			}
		}

		c := compare(out[i], out[j])
		if order == OrderDesc {
			return c > 0
		}
		return c < 0
	})

	return out
}

// Filter 返回名称包含关键字的记录，关键字去除首尾空白并忽略大小写；
// 关键字为空时返回全部记录的副本
func (p *Processor) Filter(records []types.ClassificationRecord, query string) []types.ClassificationRecord {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]types.ClassificationRecord, len(records))
		copy(out, records)
		return out
	}

	folder := cases.Fold()
	needle := folder.String(query)

	out := make([]types.ClassificationRecord, 0, len(records))
	for _, record := range records {
		if strings.Contains(folder.String(record.SectorName), needle) {
			out = append(out, record)
		}
	}
	return out
}

// Apply 先搜索后排序，未指定排序字段时只做搜索
func (p *Processor) Apply(records []types.ClassificationRecord, q Query) []types.ClassificationRecord {
	filtered := p.Filter(records, q.Search)
	if q.Column == "" {
		return filtered
	}

	order := q.Order
	if order == "" {
		order = OrderDesc
	}
	return p.Sort(filtered, q.Column, order)
}

// LevelDistribution 统计各级别的板块数量，下标即级别
func LevelDistribution(records []types.ClassificationRecord) [10]int {
	var dist [10]int
	for _, record := range records {
		if record.Level >= 1 && record.Level <= 9 {
			dist[record.Level]++
		}
	}
	return dist
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareNumbers(a, b *float64) int {
	if a == nil || b == nil {
		return 0
	}
	switch {
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}
