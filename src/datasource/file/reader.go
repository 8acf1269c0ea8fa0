// reader.go
package file

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"NoShowInsight/src/processor"
	"NoShowInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options 读取数据文件的参数
type Options struct {
	Schema    processor.Schema // 用于检查必需列
	Encoding  string           // CSV文本编码，空则为utf-8
	SheetName string           // xlsx工作表名，空则取第一个
}

// Supported 判断文件扩展名是否为支持的数据格式
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

// Load 按扩展名读取CSV或XLSX文件
func Load(path string, opts Options) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path, opts)
	case ".csv":
		return LoadCSV(path, opts)
	default:
		return dataframe.DataFrame{}, &processor.ParseError{Path: path, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(path))}
	}
}

// Read 读取上传的数据流，name仅用于判断格式和报错
func Read(r io.Reader, name string, opts Options) (dataframe.DataFrame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: err}
	}
	if strings.EqualFold(filepath.Ext(name), ".xlsx") || sniff(data) {
		return ReadXLSX(data, name, opts)
	}
	return ReadCSV(bytes.NewReader(data), name, opts)
}

// LoadCSV 读取CSV文件，所有值按字符串载入
func LoadCSV(path string, opts Options) (dataframe.DataFrame, error) {
	f, err := openFile(path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	return ReadCSV(f, path, opts)
}

// ReadCSV 从数据流读取CSV
func ReadCSV(r io.Reader, name string, opts Options) (dataframe.DataFrame, error) {
	decoded, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: err}
	}

	reader := csv.NewReader(decoded)
	records, err := reader.ReadAll()
	if err != nil {
		perr := &processor.ParseError{Path: name, Err: err}
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			perr.Row = csvErr.Line
		}
		return dataframe.DataFrame{}, perr
	}

	return buildFrame(records, name, opts.Schema)
}

// LoadXLSX 读取xlsx文件
func LoadXLSX(path string, opts Options) (dataframe.DataFrame, error) {
	if _, err := os.Stat(path); err != nil {
		return dataframe.DataFrame{}, notFound(path, err)
	}

	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, &processor.ParseError{Path: path, Err: fmt.Errorf("xlsx open file: %w", err)}
	}
	return sheetToFrame(xlFile, path, opts)
}

// ReadXLSX 从内存中的xlsx内容读取
func ReadXLSX(data []byte, name string, opts Options) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: fmt.Errorf("xlsx open file: %w", err)}
	}
	return sheetToFrame(xlFile, name, opts)
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, notFound(path, err)
	}
	return f, nil
}

func notFound(path string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, processor.ErrFileNotFound)
	}
	return fmt.Errorf("open %s: %w", path, err)
}

// decodeReader 按编码名包装输入流，UTF-8/UTF-16的BOM优先
func decodeReader(r io.Reader, encoding string) (io.Reader, error) {
	if encoding == "" {
		encoding = "utf-8"
	}
	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// sheetToFrame 将工作表转换为dataframe，首个非空行为标题行
func sheetToFrame(xlFile *xlsx.File, name string, opts Options) (dataframe.DataFrame, error) {
	// 1. 选择工作表
	if len(xlFile.Sheets) == 0 {
		return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: fmt.Errorf("excel文件中没有工作表")}
	}
	sheet := xlFile.Sheets[0]
	if opts.SheetName != "" {
		s, ok := xlFile.Sheet[opts.SheetName]
		if !ok {
			return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: fmt.Errorf("sheet %q not found", opts.SheetName)}
		}
		sheet = s
	}

	// 2. 读取所有单元格文本
	schema := opts.Schema.WithDefaults()
	dateCols := []string{schema.ScheduledDay, schema.AppointmentDay}

	var records [][]string
	var header []string
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		// 单元格保留原值，标签列按原文严格匹配
		values := make([]string, len(row.Cells))
		empty := true
		for i, cell := range row.Cells {
			values[i] = cell.Value
			if strings.TrimSpace(cell.Value) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		if header == nil {
			for i := range values {
				values[i] = strings.TrimSpace(values[i])
			}
			header = values
			records = append(records, header)
			continue
		}

		// 3. 日期列中的Excel序列号转换为时间字符串
		for i := range values {
			if i < len(header) && utils.Contains(dateCols, header[i]) {
				values[i] = excelToTime(values[i], xlFile.Date1904)
			}
		}
		records = append(records, values)
	}

	// 4. 补齐短行
	for i := range records {
		if len(records[i]) < len(header) {
			records[i] = append(records[i], make([]string, len(header)-len(records[i]))...)
		}
		records[i] = records[i][:len(header)]
	}
	return buildFrame(records, name, opts.Schema)
}

// excelToTime Excel日期序列号转时间字符串，非数值原样返回
func excelToTime(v string, date1904 bool) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return v
	}
	return xlsx.TimeFromExcelTime(serial, date1904).UTC().Format(utils.TimeLayout)
}

// buildFrame 第一行为标题，所有列按字符串载入；只有标题时返回0行的DataFrame
func buildFrame(records [][]string, name string, schema processor.Schema) (dataframe.DataFrame, error) {
	if len(records) == 0 {
		return dataframe.DataFrame{}, &processor.ParseError{Path: name, Err: fmt.Errorf("no header row")}
	}
	header := records[0]
	if err := checkColumns(header, name, schema); err != nil {
		return dataframe.DataFrame{}, err
	}

	var df dataframe.DataFrame
	if len(records) == 1 {
		cols := make([]series.Series, len(header))
		for i, h := range header {
			cols[i] = series.New([]string{}, series.String, h)
		}
		df = dataframe.New(cols...)
	} else {
		df = dataframe.LoadRecords(records,
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
			dataframe.HasHeader(true),
		)
	}
	if df.Err != nil {
		return df, &processor.ParseError{Path: name, Err: df.Err}
	}
	return df, nil
}

// checkColumns 检查必需列，标签列接受任意别名
func checkColumns(header []string, name string, schema processor.Schema) error {
	schema = schema.WithDefaults()

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return &processor.ParseError{Path: name, Column: h, Err: fmt.Errorf("duplicate column")}
		}
		seen[h] = true
	}

	for _, col := range schema.Required() {
		if !seen[col] {
			return &processor.ParseError{Path: name, Column: col, Err: fmt.Errorf("missing required column")}
		}
	}
	for _, col := range schema.LabelColumns() {
		if seen[col] {
			return nil
		}
	}
	return &processor.ParseError{
		Path:   name,
		Column: schema.NoShow,
		Err:    fmt.Errorf("missing required column (accepted names: %s)", strings.Join(schema.LabelColumns(), ", ")),
	}
}

// Describe 批处理模式的载入提示
func Describe(df dataframe.DataFrame) string {
	return fmt.Sprintf("Data successfully loaded: %d rows, %d columns", df.Nrow(), df.Ncol())
}

// sniff 是否为xlsx(zip)内容，用于无扩展名的上传
func sniff(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}
