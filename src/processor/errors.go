package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound 数据文件不存在
	ErrFileNotFound = errors.New("file not found")
	// ErrEmptyDataset 数据集没有任何记录，无法计算统计量
	ErrEmptyDataset = errors.New("empty dataset")
)

// ParseError 数据无法解析为预期结构(CSV格式错误、缺列、数值非法)
type ParseError struct {
	Path   string // 文件路径或上传文件名
	Column string // 出错的列
	Row    int    // 数据行号(从1开始)，0表示与行无关
	Value  string // 出错的原始值
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Path != "" {
		msg += fmt.Sprintf(" in %s", e.Path)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(", column %q", e.Column)
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(", row %d", e.Row)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(", value %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// DateParseError 时间列中存在无法识别的值
type DateParseError struct {
	Column string
	Row    int
	Value  string
	Err    error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("date parse error: column %q, row %d, value %q", e.Column, e.Row, e.Value)
}

func (e *DateParseError) Unwrap() error { return e.Err }
