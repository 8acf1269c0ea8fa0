package dashboard

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"NoShowInsight/src/processor"
	"NoShowInsight/src/storage"

	"github.com/gorilla/websocket"
)

const sampleCSV = `Gender,ScheduledDay,AppointmentDay,Age,SMS_received,No-show
F,2024-01-01,2024-01-05,30,1,Yes
M,2024-01-02,2024-01-02,45,0,No
F,2024-01-10,2024-01-08,20,1,No
`

func newTestServer(t *testing.T) (*Server, *storage.Logger) {
	t.Helper()
	logger, err := storage.NewLogger(filepath.Join(t.TempDir(), "app.log"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = logger.Close() })

	s := NewServer(Options{
		Listen:        "127.0.0.1:0",
		Schema:        processor.DefaultSchema(),
		Policy:        processor.DropNegative,
		HistogramBins: 10,
	}, logger)
	return s, logger
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func getSummary(t *testing.T, s *Server, query string) summaryResponse {
	t.Helper()
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary"+query, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/summary%s = %d: %s", query, rec.Code, rec.Body)
	}
	var resp summaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestIndexBeforeUpload(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Upload your dataset to begin analysis.") {
		t.Errorf("GET / = %d\n%s", rec.Code, rec.Body)
	}

	if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("summary without data = %d", rec.Code)
	}
}

func TestUploadAndSummary(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, uploadRequest(t, "appointments.csv", sampleCSV))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body)
	}

	resp := getSummary(t, s, "")
	if resp.Overall == nil || resp.Overall.Total != 2 || resp.Overall.NoShowRate != 50 || resp.Overall.AvgWaitingDays != 2 {
		t.Errorf("overall = %+v", resp.Overall)
	}
	if resp.Cleaning.DroppedNegative != 1 || resp.Source != "appointments.csv" || resp.Dataset == "" {
		t.Errorf("resp = %+v", resp)
	}
	if strings.Join(resp.Genders, ",") != "All,F,M" {
		t.Errorf("genders = %v", resp.Genders)
	}

	// 筛选只影响filtered，overall保持全量
	male := getSummary(t, s, "?gender=M&sms=All")
	if male.Filtered == nil || male.Filtered.Total != 1 || male.Filtered.NoShowRate != 0 {
		t.Errorf("filtered = %+v", male.Filtered)
	}
	if male.Overall.Total != 2 {
		t.Errorf("overall changed by filter: %+v", male.Overall)
	}

	none := getSummary(t, s, "?gender=M&sms=Yes")
	if none.Filtered != nil {
		t.Errorf("expected empty filtered summary, got %+v", none.Filtered)
	}

	if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/summary?sms=maybe", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid sms filter = %d", rec.Code)
	}

	page := do(s, httptest.NewRequest(http.MethodGet, "/?gender=F", nil)).Body.String()
	for _, want := range []string{"50.0%", "2.0", "/charts/attendance?gender=F", processor.Tip, `<option value="F" selected>`} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestUploadErrors(t *testing.T) {
	s, _ := newTestServer(t)

	cases := map[string]string{
		"missing column": "Gender,Age\nF,3\n",
		"bad date":       strings.Replace(sampleCSV, "2024-01-05", "someday", 1),
		"bad age":        strings.Replace(sampleCSV, ",30,", ",thirty,", 1),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(s, uploadRequest(t, "bad.csv", content))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `class="error"`) || !strings.Contains(rec.Body.String(), "upload") {
				t.Errorf("page should show the error and prompt re-upload:\n%s", rec.Body)
			}
		})
	}
	if s.Snapshot() != nil {
		t.Error("failed uploads must not replace the dataset")
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("upload without file = %d", rec.Code)
	}
}

func TestChartsAndExport(t *testing.T) {
	s, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "appointments.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/charts/attendance?sms=Yes", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("chart = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/charts/pie", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chart = %d", rec.Code)
	}
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/charts/age?gender=X", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("chart for empty segment = %d", rec.Code)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/export.xlsx", nil))
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Errorf("export = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "no-show-report.xlsx") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

func TestLogStream(t *testing.T) {
	s, logger := newTestServer(t)
	ts := httptest.NewServer(s.Echo())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/logs", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	logger.Info("dataset reloaded")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.Contains(string(msg), "dataset reloaded") {
			return
		}
	}
}
