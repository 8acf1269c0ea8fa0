package processor

import (
	"fmt"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 筛选项取值
const (
	FilterAll = "All"
	SMSYes    = "Yes"
	SMSNo     = "No"
)

// Filter 看板侧边栏的筛选条件，空字符串等同于All
type Filter struct {
	Gender string `query:"gender" json:"gender"`
	SMS    string `query:"sms" json:"sms"`
}

func (f Filter) isAll(v string) bool { return v == "" || v == FilterAll }

// Validate 检查SMS筛选项
func (f Filter) Validate() error {
	switch f.SMS {
	case "", FilterAll, SMSYes, SMSNo:
		return nil
	default:
		return fmt.Errorf("invalid SMS filter %q (want All, Yes or No)", f.SMS)
	}
}

// Apply 依次应用等值筛选，返回新的DataFrame
func (f Filter) Apply(df dataframe.DataFrame, schema Schema) (dataframe.DataFrame, error) {
	if err := f.Validate(); err != nil {
		return df, err
	}
	schema = schema.WithDefaults()
	if df.Nrow() == 0 {
		return df, nil
	}

	if !f.isAll(f.Gender) {
		df = df.Filter(
			dataframe.F{Colname: schema.Gender, Comparator: series.Eq, Comparando: f.Gender},
		)
	}

	if !f.isAll(f.SMS) && df.Nrow() > 0 {
		flag := 0
		if f.SMS == SMSYes {
			flag = 1
		}
		df = df.Filter(
			dataframe.F{Colname: schema.SMSReceived, Comparator: series.Eq, Comparando: flag},
		)
	}

	if df.Err != nil {
		return df, fmt.Errorf("apply filter: %w", df.Err)
	}
	return df, nil
}
