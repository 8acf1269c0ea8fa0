package processor

import (
	"fmt"
	"io"
	"sort"
)

const (
	TakeawayLongerWaits = "Patients with longer waiting times tend to miss appointments more often."
	TakeawayNeutral     = "Waiting time does not significantly affect attendance in this dataset."
	KeyTakeaway         = "Key Takeaway: Shorter waiting times and SMS reminders improve attendance rates."
	Tip                 = "Tip: Use SMS reminders and shorter scheduling windows to reduce no-shows in Kenyan hospitals."
)

// TakeawayFor 爽约组平均等待严格大于到诊组时给出"等待越久越易爽约"的结论
func TakeawayFor(w OutcomeWaits) string {
	if w.LongerWaitsMissMore() {
		return TakeawayLongerWaits
	}
	return TakeawayNeutral
}

// Summary 一个数据集的全部统计结果
type Summary struct {
	Total          int                `json:"total" yaml:"total"`
	NoShowRate     float64            `json:"no_show_rate" yaml:"no_show_rate"`
	AvgWaitingDays float64            `json:"avg_waiting_days" yaml:"avg_waiting_days"`
	WaitByOutcome  OutcomeWaits       `json:"waiting_by_outcome" yaml:"waiting_by_outcome"`
	WaitShowStats  BoxStats           `json:"waiting_show_stats" yaml:"waiting_show_stats"`
	WaitNoShowStat BoxStats           `json:"waiting_no_show_stats" yaml:"waiting_no_show_stats"`
	RateByGender   map[string]float64 `json:"rate_by_gender" yaml:"rate_by_gender"`
	RateBySMS      map[string]float64 `json:"rate_by_sms" yaml:"rate_by_sms"`
	RateByAgeBand  map[string]float64 `json:"rate_by_age_band" yaml:"rate_by_age_band"`
	Takeaway       string             `json:"takeaway" yaml:"takeaway"`
}

// CalculateMetrics 计算汇总指标，数据集为空时返回ErrEmptyDataset
func (p *DataProcessor) CalculateMetrics() (*Summary, error) {
	rate, err := p.OverallNoShowRate()
	if err != nil {
		return nil, err
	}
	avg, err := p.AverageWaitingDays()
	if err != nil {
		return nil, err
	}
	waits, err := p.AverageWaitingDaysByOutcome()
	if err != nil {
		return nil, err
	}
	showStats, noShowStats, err := p.WaitingStats()
	if err != nil {
		return nil, err
	}
	byGender, err := p.RateByGroup(p.schema.Gender)
	if err != nil {
		return nil, err
	}
	bySMS, err := p.RateByGroup(p.schema.SMSReceived)
	if err != nil {
		return nil, err
	}
	byAge, err := p.RateByAgeBand()
	if err != nil {
		return nil, err
	}

	return &Summary{
		Total:          p.Len(),
		NoShowRate:     rate,
		AvgWaitingDays: avg,
		WaitByOutcome:  waits,
		WaitShowStats:  showStats,
		WaitNoShowStat: noShowStats,
		RateByGender:   byGender,
		RateBySMS:      bySMS,
		RateByAgeBand:  byAge,
		Takeaway:       TakeawayFor(waits),
	}, nil
}

// WriteText 输出批处理模式的文字总结
func (s *Summary) WriteText(w io.Writer) error {
	lines := []string{
		"",
		" Summary Insights:",
		fmt.Sprintf("- Average waiting days (No-Show): %.2f", s.WaitByOutcome.NoShow),
		fmt.Sprintf("- Average waiting days (Show): %.2f", s.WaitByOutcome.Show),
		" " + s.Takeaway,
		"- No-Show Rate by Gender:",
	}
	lines = append(lines, rateLines(s.RateByGender)...)
	lines = append(lines, "", "- SMS Reminder Impact:")
	lines = append(lines, rateLines(s.RateBySMS)...)
	lines = append(lines, "", KeyTakeaway)

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Highlights 看板"Insights Summary"中的要点
func (s *Summary) Highlights() []string {
	sms := "SMS reminders: no clear difference between patients with and without SMS."
	if with, ok := s.RateBySMS["1"]; ok {
		if without, ok := s.RateBySMS["0"]; ok && with < without {
			sms = "SMS reminders: Patients with SMS are less likely to miss appointments."
		}
	}
	wait := "Waiting time: " + TakeawayNeutral
	if s.WaitByOutcome.LongerWaitsMissMore() {
		wait = "Waiting time: Patients with longer waiting periods are more likely to skip."
	}
	return []string{
		fmt.Sprintf("Overall no-show rate: %.1f%%", s.NoShowRate),
		sms,
		wait,
		ageTrend(s.RateByAgeBand),
	}
}

// ageTrend 青少年和老年的爽约率都高于成年人时沿用看板原有的结论，否则指出爽约率最高的年龄段
func ageTrend(rates map[string]float64) string {
	if len(rates) < 2 {
		return "Age trend: not enough age groups to compare."
	}
	adult, hasAdult := rates[AgeBandAdult]
	youth, hasYouth := rates[AgeBandYouth]
	elderly, hasElderly := rates[AgeBandElderly]
	if hasAdult && hasYouth && hasElderly && youth > adult && elderly > adult {
		return "Age trend: Youth and elderly show higher absence rates."
	}

	top := ""
	for _, band := range []string{AgeBandYouth, AgeBandAdult, AgeBandElderly} {
		if r, ok := rates[band]; ok && (top == "" || r > rates[top]) {
			top = band
		}
	}
	return fmt.Sprintf("Age trend: %s patients show the highest absence rate (%.1f%%).", top, rates[top])
}

// SortedKeys 按键排序，保证输出稳定
func SortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func rateLines(m map[string]float64) []string {
	var lines []string
	for _, k := range SortedKeys(m) {
		lines = append(lines, fmt.Sprintf("  %-8s %.6f", k, m[k]))
	}
	return lines
}
