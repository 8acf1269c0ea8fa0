package dashboard

import (
	"errors"
	"sync"
	"time"

	"NoShowInsight/src/processor"

	"github.com/go-gota/gota/dataframe"
	"github.com/google/uuid"
)

// Snapshot 看板当前使用的数据集，创建后只读
type Snapshot struct {
	ID       string
	Name     string
	LoadedAt time.Time
	Stats    processor.CleanStats
	Data     *processor.DataProcessor
	Summary  *processor.Summary // 清洗后没有记录时为nil
}

// NewSnapshot 清洗原始数据并计算全量指标
func NewSnapshot(name string, raw dataframe.DataFrame, cleaner *processor.Cleaner, schema processor.Schema) (*Snapshot, error) {
	df, stats, err := cleaner.Clean(raw)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{
		ID:       uuid.NewString(),
		Name:     name,
		LoadedAt: time.Now(),
		Stats:    stats,
		Data:     processor.NewDataProcessor(df, schema),
	}
	summary, err := s.Data.CalculateMetrics()
	switch {
	case errors.Is(err, processor.ErrEmptyDataset):
	case err != nil:
		return nil, err
	default:
		s.Summary = summary
	}
	return s, nil
}

// Filtered 按筛选条件返回子集，条件为All时返回全量
func (s *Snapshot) Filtered(f processor.Filter) (*processor.DataProcessor, error) {
	df, err := f.Apply(s.Data.DataFrame(), s.Data.Schema())
	if err != nil {
		return nil, err
	}
	return processor.NewDataProcessor(df, s.Data.Schema()), nil
}

// Genders 性别下拉框选项，All在前
func (s *Snapshot) Genders() []string {
	return append([]string{processor.FilterAll}, s.Data.Groups(s.Data.Schema().Gender)...)
}

// store 读写锁保护的当前快照
type store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func (st *store) Get() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap
}

func (st *store) Set(s *Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = s
}
