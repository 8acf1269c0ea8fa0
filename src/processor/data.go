// data.go
package processor

import (
	"fmt"
	"math"
	"sort"

	"NoShowInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"
)

// OutcomeWaits 按是否爽约分组的平均等待天数
// 某组没有记录时对应的均值为0，计数为0
type OutcomeWaits struct {
	Show        float64 `json:"show" yaml:"show"`
	NoShow      float64 `json:"no_show" yaml:"no_show"`
	ShowCount   int     `json:"show_count" yaml:"show_count"`
	NoShowCount int     `json:"no_show_count" yaml:"no_show_count"`
}

// LongerWaitsMissMore 爽约组平均等待严格大于到诊组时为true，任一组为空时为false
func (w OutcomeWaits) LongerWaitsMissMore() bool {
	return w.ShowCount > 0 && w.NoShowCount > 0 && w.NoShow > w.Show
}

// BoxStats 箱线图所需的五数概括
type BoxStats struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Q1     float64 `json:"q1" yaml:"q1"`
	Median float64 `json:"median" yaml:"median"`
	Q3     float64 `json:"q3" yaml:"q3"`
	Max    float64 `json:"max" yaml:"max"`
}

// Histogram 按到诊/爽约堆叠的年龄分布
type Histogram struct {
	Edges  []float64 // len(Edges) == bins+1
	Show   []int
	NoShow []int
}

// DataProcessor 对清洗后的数据集计算描述统计，不修改数据本身
type DataProcessor struct {
	df     dataframe.DataFrame
	schema Schema
}

func NewDataProcessor(df dataframe.DataFrame, schema Schema) *DataProcessor {
	return &DataProcessor{df: df, schema: schema.WithDefaults()}
}

// DataFrame 返回当前数据集
func (p *DataProcessor) DataFrame() dataframe.DataFrame { return p.df }

func (p *DataProcessor) Schema() Schema { return p.schema }

// Len 记录数
func (p *DataProcessor) Len() int { return p.df.Nrow() }

// check 数据集为空或缺少统计所需列时返回错误
func (p *DataProcessor) check(cols ...string) error {
	if p.df.Err != nil {
		return p.df.Err
	}
	for _, c := range cols {
		if !utils.HasColumn(p.df, c) {
			return &ParseError{Column: c, Err: fmt.Errorf("missing column, dataset is not cleaned")}
		}
	}
	if p.df.Nrow() == 0 {
		return ErrEmptyDataset
	}
	return nil
}

// OverallNoShowRate 全体爽约率(百分比)
func (p *DataProcessor) OverallNoShowRate() (float64, error) {
	if err := p.check(p.schema.NoShow); err != nil {
		return math.NaN(), err
	}
	return p.df.Col(p.schema.NoShow).Mean() * 100, nil
}

// AverageWaitingDays 平均等待天数
func (p *DataProcessor) AverageWaitingDays() (float64, error) {
	if err := p.check(p.schema.WaitingDays); err != nil {
		return math.NaN(), err
	}
	return p.df.Col(p.schema.WaitingDays).Mean(), nil
}

// AverageWaitingDaysByOutcome 分别计算到诊组与爽约组的平均等待天数
func (p *DataProcessor) AverageWaitingDaysByOutcome() (OutcomeWaits, error) {
	var w OutcomeWaits
	show, noShow, err := p.waitsByOutcome()
	if err != nil {
		return w, err
	}

	w.ShowCount, w.NoShowCount = len(show), len(noShow)
	if len(show) > 0 {
		w.Show = stat.Mean(show, nil)
	}
	if len(noShow) > 0 {
		w.NoShow = stat.Mean(noShow, nil)
	}
	return w, nil
}

// RateByGroup 按key列的每个取值计算爽约率(百分比)
// 返回的键恰好是数据集中出现过的取值
func (p *DataProcessor) RateByGroup(key string) (map[string]float64, error) {
	if err := p.check(key, p.schema.NoShow); err != nil {
		return nil, err
	}

	keys := p.df.Col(key)
	rates := make(map[string]float64)
	for _, v := range utils.DistinctValues(keys) {
		group := p.df.Subset(utils.IndicesOf(keys, v))
		if group.Err != nil {
			return nil, fmt.Errorf("group %s=%s: %w", key, v, group.Err)
		}
		rates[v] = group.Col(p.schema.NoShow).Mean() * 100
	}
	return rates, nil
}

// Groups 返回key列的不同取值(按首次出现顺序)，用于看板下拉框
func (p *DataProcessor) Groups(key string) []string {
	if !utils.HasColumn(p.df, key) {
		return nil
	}
	return utils.DistinctValues(p.df.Col(key))
}

// 年龄段，未满18为青少年，60及以上为老年
const (
	AgeBandYouth   = "youth"
	AgeBandAdult   = "adult"
	AgeBandElderly = "elderly"
)

// AgeBand 年龄所属的年龄段
func AgeBand(age int) string {
	switch {
	case age < 18:
		return AgeBandYouth
	case age >= 60:
		return AgeBandElderly
	default:
		return AgeBandAdult
	}
}

// RateByAgeBand 各年龄段的爽约率(百分比)，没有记录的年龄段不出现
func (p *DataProcessor) RateByAgeBand() (map[string]float64, error) {
	if err := p.check(p.schema.Age, p.schema.NoShow); err != nil {
		return nil, err
	}

	ages, err := p.df.Col(p.schema.Age).Int()
	if err != nil {
		return nil, fmt.Errorf("age column: %w", err)
	}
	outcomes := p.df.Col(p.schema.NoShow).Float()

	total := make(map[string]int)
	missed := make(map[string]float64)
	for i, a := range ages {
		band := AgeBand(a)
		total[band]++
		missed[band] += outcomes[i]
	}

	rates := make(map[string]float64, len(total))
	for band, n := range total {
		rates[band] = missed[band] / float64(n) * 100
	}
	return rates, nil
}

// Takeaway 根据两组平均等待天数给出结论
func (p *DataProcessor) Takeaway() (string, error) {
	w, err := p.AverageWaitingDaysByOutcome()
	if err != nil {
		return "", err
	}
	return TakeawayFor(w), nil
}

// OutcomeCounts 到诊与爽约的记录数
func (p *DataProcessor) OutcomeCounts() (show, noShow int, err error) {
	if err := p.check(p.schema.NoShow); err != nil {
		return 0, 0, err
	}
	for _, v := range p.df.Col(p.schema.NoShow).Float() {
		if v == 1 {
			noShow++
		} else {
			show++
		}
	}
	return show, noShow, nil
}

// WaitingDaysByOutcome 两组的等待天数原始值，供箱线图使用
func (p *DataProcessor) WaitingDaysByOutcome() (show, noShow []float64, err error) {
	return p.waitsByOutcome()
}

// WaitingStats 两组等待天数的五数概括
func (p *DataProcessor) WaitingStats() (show, noShow BoxStats, err error) {
	s, n, err := p.waitsByOutcome()
	if err != nil {
		return show, noShow, err
	}
	return boxStats(s), boxStats(n), nil
}

// AgeHistogram 年龄分bins个等宽区间，按到诊/爽约分别计数
// 最后一个区间包含上界；所有年龄相同时区间为[v-0.5, v+0.5]
func (p *DataProcessor) AgeHistogram(bins int) (*Histogram, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("bins must be positive, got %d", bins)
	}
	if err := p.check(p.schema.Age, p.schema.NoShow); err != nil {
		return nil, err
	}

	ages := p.df.Col(p.schema.Age).Float()
	outcomes := p.df.Col(p.schema.NoShow).Float()

	lo, hi := ages[0], ages[0]
	for _, a := range ages {
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}

	width := (hi - lo) / float64(bins)
	h := &Histogram{
		Edges:  make([]float64, bins+1),
		Show:   make([]int, bins),
		NoShow: make([]int, bins),
	}
	for i := range h.Edges {
		h.Edges[i] = lo + float64(i)*width
	}
	for i, a := range ages {
		idx := int((a - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if outcomes[i] == 1 {
			h.NoShow[idx]++
		} else {
			h.Show[idx]++
		}
	}
	return h, nil
}

func (p *DataProcessor) waitsByOutcome() (show, noShow []float64, err error) {
	if err := p.check(p.schema.WaitingDays, p.schema.NoShow); err != nil {
		return nil, nil, err
	}

	waits := p.df.Col(p.schema.WaitingDays).Float()
	outcomes := p.df.Col(p.schema.NoShow).Float()
	for i, w := range waits {
		if outcomes[i] == 1 {
			noShow = append(noShow, w)
		} else {
			show = append(show, w)
		}
	}
	return show, noShow, nil
}

func boxStats(values []float64) BoxStats {
	if len(values) == 0 {
		return BoxStats{}
	}
	x := append([]float64(nil), values...)
	sort.Float64s(x)
	return BoxStats{
		Count:  len(x),
		Min:    x[0],
		Q1:     quantile(x, 0.25),
		Median: quantile(x, 0.5),
		Q3:     quantile(x, 0.75),
		Max:    x[len(x)-1],
	}
}

// quantile 已排序数据的分位数，位置h=(n-1)p，在相邻两值之间线性插值
// 与箱线图常用的定义一致，例如[1,2,3,4]的四分位为1.75、2.5、3.25
func quantile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	return sorted[lo] + (h-float64(lo))*(sorted[hi]-sorted[lo])
}
