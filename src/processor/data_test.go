package processor

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func cleanedScenario(t *testing.T, policy WaitingPolicy) *DataProcessor {
	t.Helper()
	df, _, err := NewCleaner(DefaultSchema(), policy).Clean(scenarioFrame())
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	return NewDataProcessor(df, DefaultSchema())
}

func TestScenarioMetrics(t *testing.T) {
	p := cleanedScenario(t, DropNegative)

	rate, err := p.OverallNoShowRate()
	if err != nil || rate != 50 {
		t.Errorf("OverallNoShowRate = %v, %v; want 50", rate, err)
	}
	avg, err := p.AverageWaitingDays()
	if err != nil || avg != 2.0 {
		t.Errorf("AverageWaitingDays = %v, %v; want 2.0", avg, err)
	}

	w, err := p.AverageWaitingDaysByOutcome()
	if err != nil {
		t.Fatal(err)
	}
	want := OutcomeWaits{Show: 0, NoShow: 4, ShowCount: 1, NoShowCount: 1}
	if w != want {
		t.Errorf("AverageWaitingDaysByOutcome = %+v, want %+v", w, want)
	}

	takeaway, err := p.Takeaway()
	if err != nil || takeaway != TakeawayLongerWaits {
		t.Errorf("Takeaway = %q, %v", takeaway, err)
	}
}

func TestRateByGroupKeysAreDistinctValues(t *testing.T) {
	p := cleanedScenario(t, ClampNegative)

	byGender, err := p.RateByGroup("Gender")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(byGender, map[string]float64{"F": 50, "M": 0}) {
		t.Errorf("by gender = %v", byGender)
	}

	bySMS, err := p.RateByGroup("SMS_received")
	if err != nil {
		t.Fatal(err)
	}
	keys := SortedKeys(bySMS)
	if !reflect.DeepEqual(keys, []string{"0", "1"}) {
		t.Errorf("sms keys = %v", keys)
	}

	filtered, err := Filter{Gender: "M"}.Apply(p.DataFrame(), DefaultSchema())
	if err != nil {
		t.Fatal(err)
	}
	onlyM, err := NewDataProcessor(filtered, DefaultSchema()).RateByGroup("Gender")
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyM) != 1 {
		t.Errorf("filtered groups = %v, want only M", onlyM)
	}
}

func TestTakeawayUsesStrictGreater(t *testing.T) {
	cases := []struct {
		w    OutcomeWaits
		want string
	}{
		{OutcomeWaits{Show: 3, NoShow: 3, ShowCount: 2, NoShowCount: 2}, TakeawayNeutral},
		{OutcomeWaits{Show: 3, NoShow: 3.5, ShowCount: 2, NoShowCount: 2}, TakeawayLongerWaits},
		{OutcomeWaits{Show: 5, NoShow: 1, ShowCount: 2, NoShowCount: 2}, TakeawayNeutral},
		{OutcomeWaits{Show: 0, NoShow: 9, ShowCount: 0, NoShowCount: 2}, TakeawayNeutral},
	}
	for _, tc := range cases {
		if got := TakeawayFor(tc.w); got != tc.want {
			t.Errorf("TakeawayFor(%+v) = %q, want %q", tc.w, got, tc.want)
		}
	}
}

func TestEmptyDataset(t *testing.T) {
	p := cleanedScenario(t, DropNegative)
	empty, err := Filter{Gender: "X"}.Apply(p.DataFrame(), DefaultSchema())
	if err != nil {
		t.Fatal(err)
	}
	ep := NewDataProcessor(empty, DefaultSchema())

	rate, err := ep.OverallNoShowRate()
	if !errors.Is(err, ErrEmptyDataset) || !math.IsNaN(rate) {
		t.Errorf("OverallNoShowRate = %v, %v", rate, err)
	}
	if _, err := ep.AverageWaitingDays(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("AverageWaitingDays err = %v", err)
	}
	if _, err := ep.RateByGroup("Gender"); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("RateByGroup err = %v", err)
	}
	if _, err := ep.CalculateMetrics(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("CalculateMetrics err = %v", err)
	}
}

func TestHeaderOnlyDataset(t *testing.T) {
	var cols []series.Series
	for _, name := range []string{"Gender", "ScheduledDay", "AppointmentDay", "Age", "SMS_received", "No-show"} {
		cols = append(cols, series.New([]string{}, series.String, name))
	}
	out, stats, err := NewCleaner(DefaultSchema(), DropNegative).Clean(dataframe.New(cols...))
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if stats.Remaining != 0 {
		t.Errorf("Remaining = %d", stats.Remaining)
	}
	if _, err := NewDataProcessor(out, DefaultSchema()).OverallNoShowRate(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("err = %v, want ErrEmptyDataset", err)
	}
}

func TestRateWithinBounds(t *testing.T) {
	df := rawFrame([][]string{
		{"Gender", "ScheduledDay", "AppointmentDay", "Age", "SMS_received", "No-show"},
		{"F", "2024-01-01", "2024-01-05", "30", "1", "Yes"},
		{"F", "2024-01-01", "2024-01-09", "31", "1", "Yes"},
		{"M", "2024-01-01", "2024-01-02", "32", "0", "Yes"},
	})
	out, _, err := NewCleaner(DefaultSchema(), DropNegative).Clean(df)
	if err != nil {
		t.Fatal(err)
	}
	p := NewDataProcessor(out, DefaultSchema())
	rate, err := p.OverallNoShowRate()
	if err != nil || rate < 0 || rate > 100 {
		t.Errorf("rate = %v, %v", rate, err)
	}
	// 没有到诊记录时结论必须是中性的
	if takeaway, _ := p.Takeaway(); takeaway != TakeawayNeutral {
		t.Errorf("Takeaway = %q", takeaway)
	}
}

func TestAgeHistogram(t *testing.T) {
	p := cleanedScenario(t, ClampNegative)
	h, err := p.AgeHistogram(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Edges) != 6 || h.Edges[0] != 20 || h.Edges[5] != 45 {
		t.Errorf("edges = %v", h.Edges)
	}

	total := 0
	for i := range h.Show {
		total += h.Show[i] + h.NoShow[i]
	}
	if total != 3 {
		t.Errorf("histogram counts %d rows, want 3", total)
	}
	// 最大值落在最后一个区间
	if h.Show[4] != 1 {
		t.Errorf("last bin = %d, want 1", h.Show[4])
	}
	if _, err := p.AgeHistogram(0); err == nil {
		t.Error("expected error for zero bins")
	}
}

func TestOutcomeCountsAndStats(t *testing.T) {
	p := cleanedScenario(t, ClampNegative)
	show, noShow, err := p.OutcomeCounts()
	if err != nil || show != 2 || noShow != 1 {
		t.Errorf("OutcomeCounts = %d, %d, %v", show, noShow, err)
	}

	s, n, err := p.WaitingStats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 2 || s.Min != 0 || s.Max != 0 {
		t.Errorf("show stats = %+v", s)
	}
	if n.Count != 1 || n.Median != 4 {
		t.Errorf("no-show stats = %+v", n)
	}
}

func TestBoxStatsQuartiles(t *testing.T) {
	cases := []struct {
		values         []float64
		q1, median, q3 float64
	}{
		{[]float64{4, 1, 3, 2}, 1.75, 2.5, 3.25},
		{[]float64{1, 2, 3, 4, 5}, 2, 3, 4},
		{[]float64{7}, 7, 7, 7},
		{[]float64{0, 10}, 2.5, 5, 7.5},
	}
	for _, c := range cases {
		got := boxStats(c.values)
		if got.Q1 != c.q1 || got.Median != c.median || got.Q3 != c.q3 {
			t.Errorf("boxStats(%v) = %+v, want q1=%v median=%v q3=%v", c.values, got, c.q1, c.median, c.q3)
		}
		if got.Count != len(c.values) {
			t.Errorf("count = %d", got.Count)
		}
	}
	if got := boxStats(nil); got != (BoxStats{}) {
		t.Errorf("boxStats(nil) = %+v", got)
	}
}

func TestRateByAgeBand(t *testing.T) {
	df := dataframe.New(
		series.New([]int{10, 15, 30, 40, 65, 70}, series.Int, "Age"),
		series.New([]int{1, 0, 0, 0, 1, 0}, series.Int, "No_show"),
	)
	p := NewDataProcessor(df, DefaultSchema())

	rates, err := p.RateByAgeBand()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{AgeBandYouth: 50, AgeBandAdult: 0, AgeBandElderly: 50}
	if !reflect.DeepEqual(rates, want) {
		t.Errorf("RateByAgeBand = %v, want %v", rates, want)
	}
	if got := ageTrend(rates); got != "Age trend: Youth and elderly show higher absence rates." {
		t.Errorf("ageTrend = %q", got)
	}

	cases := map[string]map[string]float64{
		"Age trend: elderly patients show the highest absence rate (40.0%).": {AgeBandYouth: 10, AgeBandAdult: 20, AgeBandElderly: 40},
		"Age trend: adult patients show the highest absence rate (30.0%).":   {AgeBandAdult: 30, AgeBandElderly: 5},
		"Age trend: not enough age groups to compare.":                       {AgeBandAdult: 30},
	}
	for want, rates := range cases {
		if got := ageTrend(rates); got != want {
			t.Errorf("ageTrend(%v) = %q, want %q", rates, got, want)
		}
	}

	empty := NewDataProcessor(dataframe.New(
		series.New([]int{}, series.Int, "Age"),
		series.New([]int{}, series.Int, "No_show"),
	), DefaultSchema())
	if _, err := empty.RateByAgeBand(); !errors.Is(err, ErrEmptyDataset) {
		t.Errorf("empty: %v", err)
	}
}

func TestSummaryText(t *testing.T) {
	p := cleanedScenario(t, DropNegative)
	summary, err := p.CalculateMetrics()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := summary.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"- Average waiting days (No-Show): 4.00",
		"- Average waiting days (Show): 0.00",
		TakeawayLongerWaits,
		KeyTakeaway,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary text missing %q:\n%s", want, out)
		}
	}

	highlights := summary.Highlights()
	if len(highlights) != 4 || !strings.HasPrefix(highlights[3], "Age trend: ") {
		t.Errorf("highlights = %v", highlights)
	}
	sort.Strings(highlights)
	if !strings.HasPrefix(highlights[0], "Overall no-show rate: 50.0%") {
		t.Errorf("highlights = %v", highlights)
	}
}
