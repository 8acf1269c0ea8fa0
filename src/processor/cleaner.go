package processor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"NoShowInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// WaitingPolicy 等待天数为负时的处理方式
type WaitingPolicy string

const (
	// DropNegative 丢弃等待天数为负的记录(看板模式的原有行为)
	DropNegative WaitingPolicy = "drop"
	// ClampNegative 负值置0并保留记录(批处理报告的原有行为)
	ClampNegative WaitingPolicy = "clamp"
)

// ParseWaitingPolicy 解析配置中的策略名，空值取默认的drop
func ParseWaitingPolicy(s string) (WaitingPolicy, error) {
	switch WaitingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DropNegative:
		return DropNegative, nil
	case ClampNegative:
		return ClampNegative, nil
	default:
		return "", fmt.Errorf("unknown waiting policy %q (want %q or %q)", s, DropNegative, ClampNegative)
	}
}

// NoShowLabel 标签列中表示爽约的唯一取值，严格相等匹配
const NoShowLabel = "Yes"

// CleanStats 一次清洗的行数统计
type CleanStats struct {
	Input           int `json:"input" yaml:"input"`
	DroppedNegative int `json:"dropped_negative_wait" yaml:"dropped_negative_wait"`
	ClampedNegative int `json:"clamped_negative_wait" yaml:"clamped_negative_wait"`
	DroppedAge      int `json:"dropped_invalid_age" yaml:"dropped_invalid_age"`
	Remaining       int `json:"remaining" yaml:"remaining"`
}

// Cleaner 把原始预约数据转换为校验过的记录
type Cleaner struct {
	schema Schema
	policy WaitingPolicy
}

func NewCleaner(schema Schema, policy WaitingPolicy) *Cleaner {
	if policy == "" {
		policy = DropNegative
	}
	return &Cleaner{schema: schema.WithDefaults(), policy: policy}
}

func (c *Cleaner) Policy() WaitingPolicy { return c.policy }

// Clean 依次执行清洗步骤，返回新的DataFrame
// 对已清洗过的数据再次执行结果不变
func (c *Cleaner) Clean(df dataframe.DataFrame) (dataframe.DataFrame, CleanStats, error) {
	stats := CleanStats{Input: df.Nrow()}
	if df.Err != nil {
		return df, stats, &ParseError{Err: df.Err}
	}

	// 1. 统一标签列名
	df, err := c.normalizeColumns(df)
	if err != nil {
		return df, stats, err
	}

	// 2. 标签转0/1
	df = c.recodeNoShow(df)

	// 3. 解析时间列
	scheduled, err := c.parseDates(df, c.schema.ScheduledDay)
	if err != nil {
		return df, stats, err
	}
	appointment, err := c.parseDates(df, c.schema.AppointmentDay)
	if err != nil {
		return df, stats, err
	}

	ages, err := intColumn(df, c.schema.Age)
	if err != nil {
		return df, stats, err
	}
	sms, err := intColumn(df, c.schema.SMSReceived)
	if err != nil {
		return df, stats, err
	}

	// 4. 计算等待天数
	waiting, err := utils.SubSeriesDays(scheduled, appointment, c.schema.WaitingDays)
	if err != nil {
		return df, stats, err
	}
	waits, _ := waiting.Int()

	// 5. 按策略处理负等待天数，并剔除非法年龄
	keep := make([]int, 0, df.Nrow())
	for i := range waits {
		if waits[i] < 0 {
			if c.policy == ClampNegative {
				waits[i] = 0
				stats.ClampedNegative++
			} else {
				stats.DroppedNegative++
				continue
			}
		}
		if ages[i] < 0 {
			stats.DroppedAge++
			continue
		}
		keep = append(keep, i)
	}

	df = df.Mutate(series.New(formatTimes(scheduled), series.String, c.schema.ScheduledDay))
	df = df.Mutate(series.New(formatTimes(appointment), series.String, c.schema.AppointmentDay))
	df = df.Mutate(series.New(ages, series.Int, c.schema.Age))
	df = df.Mutate(series.New(sms, series.Int, c.schema.SMSReceived))
	df = df.Mutate(series.New(waits, series.Int, c.schema.WaitingDays))

	if len(keep) != df.Nrow() {
		df = df.Subset(keep)
	}
	if df.Err != nil {
		return df, stats, fmt.Errorf("clean: %w", df.Err)
	}

	stats.Remaining = df.Nrow()
	return df, stats, nil
}

// normalizeColumns 标签列使用别名(如"No-show")时改为标准列名
func (c *Cleaner) normalizeColumns(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if utils.HasColumn(df, c.schema.NoShow) {
		return df, nil
	}
	for _, alias := range c.schema.NoShowAliases {
		if utils.HasColumn(df, alias) {
			return df.Rename(c.schema.NoShow, alias), nil
		}
	}
	return df, &ParseError{
		Column: c.schema.NoShow,
		Err:    fmt.Errorf("missing no-show label column (accepted names: %s)", strings.Join(c.schema.LabelColumns(), ", ")),
	}
}

// recodeNoShow 只有原值恰好为"Yes"时记为1，其余一律为0
// 已经是Int类型的列视为已转换过，保持不变
func (c *Cleaner) recodeNoShow(df dataframe.DataFrame) dataframe.DataFrame {
	col := df.Col(c.schema.NoShow)
	if col.Type() == series.Int {
		return df
	}

	labels := col.Records()
	codes := make([]int, len(labels))
	for i, v := range labels {
		if v == NoShowLabel {
			codes[i] = 1
		}
	}
	return df.Mutate(series.New(codes, series.Int, c.schema.NoShow))
}

// parseDates 解析整列时间，任何一个值无法解析即返回DateParseError
func (c *Cleaner) parseDates(df dataframe.DataFrame, colName string) ([]time.Time, error) {
	if !utils.HasColumn(df, colName) {
		return nil, &ParseError{Column: colName, Err: fmt.Errorf("missing required column")}
	}

	records := df.Col(colName).Records()
	times := make([]time.Time, len(records))
	for i, v := range records {
		t, err := utils.ParseTime(v)
		if err != nil {
			return nil, &DateParseError{Column: colName, Row: i + 1, Value: v, Err: err}
		}
		times[i] = t
	}
	return times, nil
}

// intColumn 把整列转换为整数，允许"30.0"这类整数值的浮点写法
func intColumn(df dataframe.DataFrame, colName string) ([]int, error) {
	if !utils.HasColumn(df, colName) {
		return nil, &ParseError{Column: colName, Err: fmt.Errorf("missing required column")}
	}

	records := df.Col(colName).Records()
	values := make([]int, len(records))
	for i, v := range records {
		n, err := parseInt(v)
		if err != nil {
			return nil, &ParseError{Column: colName, Row: i + 1, Value: v, Err: err}
		}
		values[i] = n
	}
	return values, nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}

func formatTimes(times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = t.Format(utils.TimeLayout)
	}
	return out
}
