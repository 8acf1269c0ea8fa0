// chart.go
package chart

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"

	"NoShowInsight/src/processor"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// 图表名称，同时用作PNG文件名和看板路由参数
const (
	Attendance   = "attendance"
	AgeByOutcome = "age"
	RateByGender = "gender"
	RateBySMS    = "sms"
	WaitingDays  = "waiting"
)

// Names 报告中图表的输出顺序
func Names() []string {
	return []string{Attendance, AgeByOutcome, RateByGender, RateBySMS, WaitingDays}
}

var (
	setupOnce sync.Once

	showColor   color.Color
	noShowColor color.Color
	gridColor   color.Color
)

// Setup 设置一次全局绘图主题(白底网格)，重复调用无副作用
func Setup() {
	setupOnce.Do(func() {
		showColor = color.RGBA{R: 76, G: 114, B: 176, A: 255}
		noShowColor = color.RGBA{R: 221, G: 132, B: 82, A: 255}
		gridColor = color.Gray{Y: 220}

		plotter.DefaultLineStyle.Width = vg.Points(0.8)
		plotter.DefaultGlyphStyle.Radius = vg.Points(2)
	})
}

// newPlot 统一标题、坐标轴与背景网格
func newPlot(title, xLabel, yLabel string) *plot.Plot {
	Setup()

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.BackgroundColor = color.White

	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor
	grid.Vertical.Width = 0
	p.Add(grid)
	return p
}

// AttendanceCount 到诊与爽约人数柱状图
func AttendanceCount(show, noShow int) (*plot.Plot, error) {
	p := newPlot("Appointment Attendance (0 = Show, 1 = No-Show)", "0 = Show, 1 = No-Show", "count")

	bars, err := plotter.NewBarChart(plotter.Values{float64(show), float64(noShow)}, vg.Points(40))
	if err != nil {
		return nil, err
	}
	bars.Color = showColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX("0", "1")
	return p, nil
}

// GroupRates 各分组爽约率柱状图，order决定柱子的顺序
func GroupRates(title, xLabel string, rates map[string]float64, order []string) (*plot.Plot, error) {
	if len(order) == 0 {
		order = processor.SortedKeys(rates)
	}

	values := make(plotter.Values, len(order))
	for i, k := range order {
		values[i] = rates[k]
	}

	p := newPlot(title, xLabel, "No-Show Rate (%)")
	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return nil, err
	}
	bars.Color = noShowColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(order...)
	p.Y.Min = 0
	return p, nil
}

// AgeHistogram 年龄分布，到诊在下、爽约堆叠在上
func AgeHistogram(h *processor.Histogram) (*plot.Plot, error) {
	if h == nil || len(h.Show) == 0 {
		return nil, fmt.Errorf("age histogram has no bins")
	}

	show := make(plotter.Values, len(h.Show))
	noShow := make(plotter.Values, len(h.NoShow))
	for i := range h.Show {
		show[i] = float64(h.Show[i])
		noShow[i] = float64(h.NoShow[i])
	}

	p := newPlot("Age Distribution by Attendance", "Age", "count")
	width := vg.Points(10)

	showBars, err := plotter.NewBarChart(show, width)
	if err != nil {
		return nil, err
	}
	showBars.Color = showColor
	showBars.LineStyle.Width = 0

	noShowBars, err := plotter.NewBarChart(noShow, width)
	if err != nil {
		return nil, err
	}
	noShowBars.Color = noShowColor
	noShowBars.LineStyle.Width = 0
	noShowBars.StackOn(showBars)

	p.Add(showBars, noShowBars)
	p.Legend.Add("No_show = 0", showBars)
	p.Legend.Add("No_show = 1", noShowBars)
	p.Legend.Top = true

	// 柱子数量多时每隔几个区间标注一次下界
	step := len(h.Show)/6 + 1
	labels := make([]string, len(h.Show))
	for i := range labels {
		if i%step == 0 {
			labels[i] = fmt.Sprintf("%.0f", h.Edges[i])
		}
	}
	p.NominalX(labels...)
	return p, nil
}

// WaitingBox 两组等待天数的箱线图，空组不画
func WaitingBox(show, noShow []float64) (*plot.Plot, error) {
	p := newPlot("Waiting Days vs Attendance", "0 = Show, 1 = No-Show", "WaitingDays")

	groups := []struct {
		values []float64
		c      color.Color
	}{
		{show, showColor},
		{noShow, noShowColor},
	}
	drawn := 0
	for i, g := range groups {
		if len(g.values) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(40), float64(i), plotter.Values(g.values))
		if err != nil {
			return nil, err
		}
		box.FillColor = g.c
		box.MedianStyle = draw.LineStyle{Color: color.Black, Width: vg.Points(1.5)}
		p.Add(box)
		drawn++
	}
	if drawn == 0 {
		return nil, processor.ErrEmptyDataset
	}
	p.NominalX("0", "1")
	return p, nil
}

// Build 按名称从数据集生成图表
func Build(name string, dp *processor.DataProcessor, bins int) (*plot.Plot, error) {
	schema := dp.Schema()
	switch name {
	case Attendance:
		show, noShow, err := dp.OutcomeCounts()
		if err != nil {
			return nil, err
		}
		return AttendanceCount(show, noShow)
	case AgeByOutcome:
		h, err := dp.AgeHistogram(bins)
		if err != nil {
			return nil, err
		}
		return AgeHistogram(h)
	case RateByGender:
		rates, err := dp.RateByGroup(schema.Gender)
		if err != nil {
			return nil, err
		}
		return GroupRates("No-Show Rate by Gender", schema.Gender, rates, nil)
	case RateBySMS:
		rates, err := dp.RateByGroup(schema.SMSReceived)
		if err != nil {
			return nil, err
		}
		return GroupRates("Effect of SMS Reminders on Attendance", "SMS Received (1 = Yes)", rates, nil)
	case WaitingDays:
		show, noShow, err := dp.WaitingDaysByOutcome()
		if err != nil {
			return nil, err
		}
		return WaitingBox(show, noShow)
	default:
		return nil, fmt.Errorf("unknown chart %q", name)
	}
}

// Render 以PNG格式写出图表
func Render(p *plot.Plot, w io.Writer) error {
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveAll 生成全部图表并保存到dir，返回文件路径
func SaveAll(dp *processor.DataProcessor, bins int, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for _, name := range Names() {
		p, err := Build(name, dp, bins)
		if err != nil {
			return paths, fmt.Errorf("chart %s: %w", name, err)
		}
		path := filepath.Join(dir, name+".png")
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("save chart %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
