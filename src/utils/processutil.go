package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// TimeLayout 清洗后时间列统一使用的格式
const TimeLayout = time.RFC3339Nano

// 可识别的时间格式，按优先级排列
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ParseTime 按多种格式尝试解析时间，不带时区的值按UTC处理
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}

// DayDiff 计算end-start的整天数，向下取整
// 当天预约但挂号时间晚于就诊零点时结果为-1
func DayDiff(start, end time.Time) int {
	return int(math.Floor(end.Sub(start).Hours() / 24))
}

// SubSeriesDays 逐行计算两组时间的天数差并生成Int列
func SubSeriesDays(start, end []time.Time, name string) (series.Series, error) {
	if len(start) != len(end) {
		return series.Series{}, fmt.Errorf("length mismatch: %d vs %d", len(start), len(end))
	}

	// 预分配切片容量
	days := make([]int, 0, len(start))
	for i := range start {
		days = append(days, DayDiff(start[i], end[i]))
	}
	return series.New(days, series.Int, name), nil
}

// DistinctValues 按首次出现顺序返回列中的不同取值
func DistinctValues(s series.Series) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, v := range s.Records() {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	return values
}

// IndicesOf 返回列中等于value的行号
func IndicesOf(s series.Series, value string) []int {
	var idx []int
	for i, v := range s.Records() {
		if v == value {
			idx = append(idx, i)
		}
	}
	return idx
}
