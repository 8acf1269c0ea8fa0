package file

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"NoShowInsight/src/processor"

	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const sampleCSV = `Gender,ScheduledDay,AppointmentDay,Age,SMS_received,No-show
F,2024-01-01T08:00:00Z,2024-01-05T00:00:00Z,30,1,Yes
M,2024-01-02T08:00:00Z,2024-01-02T00:00:00Z,40,0,No
F,2024-01-03T08:00:00Z,2024-01-01T00:00:00Z,25,1,No
`

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTemp(t, "medical appointment.csv", []byte(sampleCSV))

	df, err := LoadCSV(path, Options{Schema: processor.DefaultSchema()})
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if df.Nrow() != 3 || df.Ncol() != 6 {
		t.Errorf("shape = %dx%d", df.Nrow(), df.Ncol())
	}
	if got := Describe(df); got != "Data successfully loaded: 3 rows, 6 columns" {
		t.Errorf("Describe = %q", got)
	}
	// 所有值按字符串载入，数值在清洗阶段再转换
	if got := df.Col("Age").Records()[0]; got != "30" {
		t.Errorf("Age[0] = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	for _, name := range []string{"missing.csv", "missing.xlsx"} {
		_, err := Load(filepath.Join(t.TempDir(), name), Options{})
		if !errors.Is(err, processor.ErrFileNotFound) {
			t.Errorf("%s: err = %v, want ErrFileNotFound", name, err)
		}
		if err != nil && !strings.Contains(err.Error(), name) {
			t.Errorf("error should name the path: %v", err)
		}
	}
}

func TestReadCSVParseErrors(t *testing.T) {
	cases := map[string]struct {
		data   string
		column string
	}{
		"missing column": {
			data:   "Gender,ScheduledDay,AppointmentDay,SMS_received,No-show\nF,2024-01-01,2024-01-02,1,No\n",
			column: "Age",
		},
		"missing label": {
			data:   "Gender,ScheduledDay,AppointmentDay,Age,SMS_received\nF,2024-01-01,2024-01-02,3,1\n",
			column: "No_show",
		},
		"ragged rows": {
			data: "Gender,ScheduledDay,AppointmentDay,Age,SMS_received,No-show\nF,2024-01-01\n",
		},
		"bad quote": {
			data: "Gender,ScheduledDay,AppointmentDay,Age,SMS_received,No-show\n\"F,2024-01-01,2024-01-02,3,1,No\n",
		},
		"empty": {data: ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.data), "upload.csv", Options{})
			var perr *processor.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
			if perr.Path != "upload.csv" {
				t.Errorf("Path = %q", perr.Path)
			}
			if tc.column != "" && perr.Column != tc.column {
				t.Errorf("Column = %q, want %q", perr.Column, tc.column)
			}
		})
	}
}

func TestReadCSVHeaderOnly(t *testing.T) {
	df, err := ReadCSV(strings.NewReader("Gender,ScheduledDay,AppointmentDay,Age,SMS_received,No_show\n"), "empty.csv", Options{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if df.Nrow() != 0 || df.Ncol() != 6 {
		t.Errorf("shape = %dx%d", df.Nrow(), df.Ncol())
	}
}

func TestReadCSVEncodings(t *testing.T) {
	bom := append([]byte("\xef\xbb\xbf"), sampleCSV...)
	df, err := ReadCSV(bytes.NewReader(bom), "bom.csv", Options{})
	if err != nil {
		t.Fatalf("BOM: %v", err)
	}
	if df.Names()[0] != "Gender" {
		t.Errorf("BOM not stripped: %q", df.Names()[0])
	}

	gbk, err := simplifiedchinese.GBK.NewEncoder().String(strings.Replace(sampleCSV, "\nF,", "\n女,", 1))
	if err != nil {
		t.Fatal(err)
	}
	df, err = ReadCSV(strings.NewReader(gbk), "gbk.csv", Options{Encoding: "gbk"})
	if err != nil {
		t.Fatalf("GBK: %v", err)
	}
	if got := df.Col("Gender").Records()[0]; got != "女" {
		t.Errorf("Gender[0] = %q", got)
	}

	if _, err := ReadCSV(strings.NewReader(sampleCSV), "x.csv", Options{Encoding: "klingon"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestLoadXLSX(t *testing.T) {
	xf := xlsx.NewFile()
	sheet, err := xf.AddSheet("appointments")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]string{
		{"Gender", "ScheduledDay", "AppointmentDay", "Age", "SMS_received", "No-show"},
		{"F", "", "2024-01-05", "30", "1", "Yes"},
	}
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().Value = v
		}
	}
	// ScheduledDay 使用Excel日期序列号
	sheet.Rows[1].Cells[1].SetFloat(45292.5)

	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := xf.Save(path); err != nil {
		t.Fatal(err)
	}

	df, err := Load(path, Options{SheetName: "appointments"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if df.Nrow() != 1 {
		t.Fatalf("rows = %d", df.Nrow())
	}
	if got := df.Col("ScheduledDay").Records()[0]; got != "2024-01-01T12:00:00Z" {
		t.Errorf("ScheduledDay = %q", got)
	}
	if got := df.Col("AppointmentDay").Records()[0]; got != "2024-01-05" {
		t.Errorf("AppointmentDay = %q", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// 上传时文件名没有扩展名也能识别xlsx
	if df, err := Read(bytes.NewReader(data), "upload", Options{}); err != nil || df.Nrow() != 1 {
		t.Errorf("Read = %v rows, %v", df.Nrow(), err)
	}

	if _, err := Load(path, Options{SheetName: "nope"}); err == nil {
		t.Error("expected error for missing sheet")
	}
}

func TestLoadXLSXKeepsRawLabels(t *testing.T) {
	xf := xlsx.NewFile()
	sheet, err := xf.AddSheet("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	rows := [][]string{
		{"Gender", "ScheduledDay", "AppointmentDay", "Age", "SMS_received", "No-show"},
		{"F", "2024-01-01", "2024-01-05", "30", "1", " Yes"},
		{"M", "2024-01-01", "2024-01-05", "40", "0", "Yes "},
		{"F", "2024-01-01", "2024-01-05", "50", "1", "Yes"},
	}
	for _, values := range rows {
		row := sheet.AddRow()
		for _, v := range values {
			row.AddCell().Value = v
		}
	}
	path := filepath.Join(t.TempDir(), "labels.xlsx")
	if err := xf.Save(path); err != nil {
		t.Fatal(err)
	}

	schema := processor.DefaultSchema()
	raw, err := Load(path, Options{Schema: schema})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	labels := raw.Col("No-show").Records()
	if strings.Join(labels, "|") != " Yes|Yes |Yes" {
		t.Errorf("labels = %q", labels)
	}

	df, _, err := processor.NewCleaner(schema, processor.DropNegative).Clean(raw)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	codes, err := df.Col(schema.NoShow).Int()
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 1}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("No_show codes = %v, want %v", codes, want)
			break
		}
	}
}

func TestLoadUnsupported(t *testing.T) {
	path := writeTemp(t, "data.json", []byte("{}"))
	var perr *processor.ParseError
	if _, err := Load(path, Options{}); !errors.As(err, &perr) {
		t.Errorf("err = %v", err)
	}
	if Supported(path) || !Supported("A.XLSX") {
		t.Error("Supported mismatch")
	}
}
