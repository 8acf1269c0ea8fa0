package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"NoShowInsight/src/chart"
	"NoShowInsight/src/datapush"
	"NoShowInsight/src/datasource/email"
	"NoShowInsight/src/datasource/file"
	"NoShowInsight/src/processor"
)

// 报告目录下的输出文件名
const (
	workbookName = "report.xlsx"
	summaryName  = "summary.yaml"
)

// reportResult 一次批处理生成的文件
type reportResult struct {
	Source   string
	Charts   []string
	Workbook string
	Document string
	Summary  *processor.Summary
}

// Files 全部输出文件，作为邮件附件
func (r *reportResult) Files() []string {
	return append([]string{r.Workbook, r.Document}, r.Charts...)
}

// generateReport 读取→清洗→统计→输出图表、文字总结、工作簿和YAML汇总
// 遇到第一个错误即停止
func (a *app) generateReport(path string, out io.Writer) (*reportResult, error) {
	// 1. 读取数据
	raw, err := file.Load(path, file.Options{
		Schema:    a.schema,
		Encoding:  a.cfg.InputEncoding,
		SheetName: a.cfg.SheetName,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(out, file.Describe(raw))

	// 2. 清洗
	df, stats, err := processor.NewCleaner(a.schema, a.policy).Clean(raw)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Data cleaned. Remaining records: %d\n", stats.Remaining)

	// 3. 统计
	dp := processor.NewDataProcessor(df, a.schema)
	summary, err := dp.CalculateMetrics()
	if err != nil {
		if errors.Is(err, processor.ErrEmptyDataset) {
			return nil, fmt.Errorf("%s: no appointments left after cleaning: %w", path, err)
		}
		return nil, err
	}
	fmt.Fprintf(out, "Overall No-Show Rate: %.2f%%\n", summary.NoShowRate)

	// 4. 图表
	charts, err := chart.SaveAll(dp, a.cfg.HistogramBins, a.cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	if err := summary.WriteText(out); err != nil {
		return nil, err
	}

	// 5. 工作簿和YAML汇总
	res := &reportResult{
		Source:   path,
		Charts:   charts,
		Workbook: filepath.Join(a.cfg.ReportDir, workbookName),
		Document: filepath.Join(a.cfg.ReportDir, summaryName),
		Summary:  summary,
	}
	if err := datapush.SaveWorkbook(res.Workbook, df, summary); err != nil {
		return nil, err
	}
	doc := datapush.NewSummaryDocument(path, a.policy, stats, summary)
	doc.Charts = charts
	if err := doc.Save(res.Document); err != nil {
		return nil, err
	}

	a.logger.Info(fmt.Sprintf("报告已生成: %s (%d条记录, 爽约率 %.2f%%)", a.cfg.ReportDir, summary.Total, summary.NoShowRate))
	return res, nil
}

// mailReport send_email.enabled 时把报告发给收件人
func (a *app) mailReport(res *reportResult) error {
	if !a.cfg.SendEmail.Enabled {
		return nil
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "Source: %s\nTotal appointments: %d\nOverall No-Show Rate: %.2f%%\n",
		res.Source, res.Summary.Total, res.Summary.NoShowRate)
	if err := res.Summary.WriteText(&body); err != nil {
		return err
	}

	if err := email.SendReport(a.cfg, body.String(), res.Files()); err != nil {
		a.logger.Error(err.Error())
		return err
	}
	a.logger.Info(fmt.Sprintf("报告邮件已发送: %v", a.cfg.SendEmail.To))
	return nil
}
