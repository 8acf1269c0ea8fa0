// workbook.go
package datapush

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"NoShowInsight/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// 工作表名称
const (
	SummarySheet = "Summary"
	DataSheet    = "Data"
)

// NewWorkbook 生成报告工作簿：汇总表(含原生图表)和清洗后的明细
// 调用方负责Close
func NewWorkbook(df dataframe.DataFrame, summary *processor.Summary) (*excelize.File, error) {
	if summary == nil {
		return nil, processor.ErrEmptyDataset
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(DataSheet); err != nil {
		f.Close()
		return nil, err
	}

	// 1. 汇总指标与分组爽约率
	if err := writeSummary(f, summary); err != nil {
		f.Close()
		return nil, fmt.Errorf("写入汇总失败: %w", err)
	}

	// 2. 明细数据
	if err := writeData(f, df); err != nil {
		f.Close()
		return nil, fmt.Errorf("写入明细失败: %w", err)
	}
	return f, nil
}

// WriteWorkbook 把报告工作簿写到w(看板导出)
func WriteWorkbook(w io.Writer, df dataframe.DataFrame, summary *processor.Summary) error {
	f, err := NewWorkbook(df, summary)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteTo(w)
	return err
}

// SaveWorkbook 保存报告工作簿到文件
func SaveWorkbook(path string, df dataframe.DataFrame, summary *processor.Summary) error {
	f, err := NewWorkbook(df, summary)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

// writeSummary 汇总表布局:
//
//	A1:B7    指标
//	A10:B?   按性别爽约率
//	D10:E?   按短信爽约率
//	G10:H12  到诊/爽约人数
func writeSummary(f *excelize.File, s *processor.Summary) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total Appointments", s.Total},
		{"No-Show Rate (%)", round2(s.NoShowRate)},
		{"Avg. Waiting Days", round2(s.AvgWaitingDays)},
		{"Avg. Waiting Days (Show)", round2(s.WaitByOutcome.Show)},
		{"Avg. Waiting Days (No-Show)", round2(s.WaitByOutcome.NoShow)},
		{"Takeaway", s.Takeaway},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return err
		}
	}

	const tableRow = 10
	genderEnd, err := writeRates(f, 1, tableRow, "Gender", s.RateByGender)
	if err != nil {
		return err
	}
	smsEnd, err := writeRates(f, 4, tableRow, "SMS_received", s.RateBySMS)
	if err != nil {
		return err
	}
	counts := [][]interface{}{
		{"Outcome", "Count"},
		{"Show (0)", s.WaitByOutcome.ShowCount},
		{"No-Show (1)", s.WaitByOutcome.NoShowCount},
	}
	for i := range counts {
		cell, _ := excelize.CoordinatesToCellName(7, tableRow+i)
		if err := f.SetSheetRow(SummarySheet, cell, &counts[i]); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SummarySheet, "A", "A", 28); err != nil {
		return err
	}

	// 原生图表，数据引用上面的表格
	charts := []struct {
		anchor string
		title  string
		typ    excelize.ChartType
		cats   string
		vals   string
	}{
		{"A20", "Appointment Attendance", excelize.Col,
			fmt.Sprintf("%s!$G$%d:$G$%d", SummarySheet, tableRow+1, tableRow+2),
			fmt.Sprintf("%s!$H$%d:$H$%d", SummarySheet, tableRow+1, tableRow+2)},
		{"J20", "No-Show Rate by Gender", excelize.Col,
			fmt.Sprintf("%s!$A$%d:$A$%d", SummarySheet, tableRow+1, genderEnd),
			fmt.Sprintf("%s!$B$%d:$B$%d", SummarySheet, tableRow+1, genderEnd)},
		{"A36", "Effect of SMS Reminders on Attendance", excelize.Col,
			fmt.Sprintf("%s!$D$%d:$D$%d", SummarySheet, tableRow+1, smsEnd),
			fmt.Sprintf("%s!$E$%d:$E$%d", SummarySheet, tableRow+1, smsEnd)},
	}
	for _, c := range charts {
		err := f.AddChart(SummarySheet, c.anchor, &excelize.Chart{
			Type: c.typ,
			Series: []excelize.ChartSeries{
				{Name: c.title, Categories: c.cats, Values: c.vals},
			},
			Title:    []excelize.RichTextRun{{Text: c.title}},
			Legend:   excelize.ChartLegend{Position: "none"},
			PlotArea: excelize.ChartPlotArea{ShowVal: true},
		})
		if err != nil {
			return fmt.Errorf("添加图表 %s 失败: %w", c.title, err)
		}
	}
	return nil
}

// writeRates 在(col,row)处写入分组爽约率表，返回最后一行的行号
func writeRates(f *excelize.File, col, row int, key string, rates map[string]float64) (int, error) {
	header := []interface{}{key, "No-Show Rate (%)"}
	cell, _ := excelize.CoordinatesToCellName(col, row)
	if err := f.SetSheetRow(SummarySheet, cell, &header); err != nil {
		return row, err
	}
	last := row
	for _, k := range processor.SortedKeys(rates) {
		last++
		values := []interface{}{k, round2(rates[k])}
		cell, _ := excelize.CoordinatesToCellName(col, last)
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return last, err
		}
	}
	return last, nil
}

// writeData 写入列名和明细，Int列保持数值类型
func writeData(f *excelize.File, df dataframe.DataFrame) error {
	names := df.Names()
	header := make([]interface{}, len(names))
	for i, n := range names {
		header[i] = n
	}
	if err := f.SetSheetRow(DataSheet, "A1", &header); err != nil {
		return err
	}

	columns := make([][]interface{}, len(names))
	for i, n := range names {
		col := df.Col(n)
		columns[i] = make([]interface{}, col.Len())
		if col.Type() == series.Int {
			ints, err := col.Int()
			if err != nil {
				return err
			}
			for j, v := range ints {
				columns[i][j] = v
			}
			continue
		}
		for j, v := range col.Records() {
			columns[i][j] = v
		}
	}

	for r := 0; r < df.Nrow(); r++ {
		row := make([]interface{}, len(names))
		for c := range names {
			row[c] = columns[c][r]
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(DataSheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
