// summary.go
package datapush

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"NoShowInsight/src/processor"

	"gopkg.in/yaml.v3"
)

// SummaryDocument summary.yaml的内容
type SummaryDocument struct {
	GeneratedAt   time.Time            `yaml:"generated_at"`
	Source        string               `yaml:"source"`
	WaitingPolicy string               `yaml:"waiting_policy"`
	Cleaning      processor.CleanStats `yaml:"cleaning"`
	Metrics       *processor.Summary   `yaml:"metrics"`
	Highlights    []string             `yaml:"highlights"`
	Charts        []string             `yaml:"charts,omitempty"`
}

// NewSummaryDocument 汇总一次报告运行的结果
func NewSummaryDocument(source string, policy processor.WaitingPolicy, stats processor.CleanStats, summary *processor.Summary) *SummaryDocument {
	doc := &SummaryDocument{
		GeneratedAt:   time.Now().UTC().Truncate(time.Second),
		Source:        source,
		WaitingPolicy: string(policy),
		Cleaning:      stats,
		Metrics:       summary,
	}
	if summary != nil {
		doc.Highlights = summary.Highlights()
	}
	return doc
}

// WriteYAML 以YAML格式写出
func (d *SummaryDocument) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}

// Save 保存为YAML文件
func (d *SummaryDocument) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
