package dashboard

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"

	"NoShowInsight/src/chart"
	"NoShowInsight/src/processor"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// renderer 实现echo.Renderer
type renderer struct {
	tmpl *template.Template
}

func newRenderer() *renderer {
	return &renderer{tmpl: template.Must(template.New("index").Parse(indexTemplate))}
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

// metricCards 三个指标卡片的显示文本
type metricCards struct {
	Total   string
	Rate    string
	AvgWait string
}

var printer = message.NewPrinter(language.English)

func newCards(s *processor.Summary) *metricCards {
	if s == nil {
		return &metricCards{Total: "0", Rate: "n/a", AvgWait: "n/a"}
	}
	return &metricCards{
		Total:   printer.Sprintf("%d", s.Total),
		Rate:    fmt.Sprintf("%.1f%%", s.NoShowRate),
		AvgWait: fmt.Sprintf("%.1f", s.AvgWaitingDays),
	}
}

type chartRef struct {
	Title string
	URL   string
}

type option struct {
	Value    string
	Selected bool
}

// pageData 首页模板数据
type pageData struct {
	Error      string
	Loaded     bool
	Source     string
	DatasetID  string
	Stats      processor.CleanStats
	Overall    *metricCards
	Filtered   *metricCards
	Genders    []option
	SMS        []option
	NoMatch    bool
	Charts     []chartRef
	ExportURL  string
	Highlights []string
	Tip        string
}

var chartTitles = map[string]string{
	chart.Attendance:   "Attendance vs No-Show",
	chart.RateBySMS:    "Effect of SMS Reminders on Attendance",
	chart.AgeByOutcome: "Age Distribution by Attendance",
	chart.WaitingDays:  "Waiting Days vs Attendance",
	chart.RateByGender: "No-Show Rate by Gender",
}

func (s *Server) index(c echo.Context) error {
	if s.data.Get() == nil {
		return c.Render(http.StatusOK, "index", pageData{})
	}
	v, err := s.currentView(c)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "index", s.buildPage(v))
}

func (s *Server) buildPage(v *view) pageData {
	q := url.Values{}
	q.Set("gender", orAll(v.filter.Gender))
	q.Set("sms", orAll(v.filter.SMS))
	query := q.Encode()

	data := pageData{
		Loaded:    true,
		Source:    v.snap.Name,
		DatasetID: v.snap.ID,
		Stats:     v.snap.Stats,
		Overall:   newCards(v.snap.Summary),
		Filtered:  newCards(v.summary),
		NoMatch:   v.summary == nil,
		ExportURL: "/export.xlsx?" + query,
		Tip:       processor.Tip,
	}
	for _, g := range v.snap.Genders() {
		data.Genders = append(data.Genders, option{Value: g, Selected: g == orAll(v.filter.Gender)})
	}
	for _, o := range []string{processor.FilterAll, processor.SMSYes, processor.SMSNo} {
		data.SMS = append(data.SMS, option{Value: o, Selected: o == orAll(v.filter.SMS)})
	}
	if v.summary != nil {
		data.Highlights = v.summary.Highlights()
		for _, name := range chart.Names() {
			data.Charts = append(data.Charts, chartRef{Title: chartTitles[name], URL: "/charts/" + name + "?" + query})
		}
	}
	return data
}

func (s *Server) renderError(c echo.Context, status int, msg string) error {
	data := pageData{Error: msg}
	if snap := s.data.Get(); snap != nil {
		data = s.buildPage(&view{snap: snap, filtered: snap.Data, summary: snap.Summary})
		data.Error = msg
	}
	return c.Render(status, "index", data)
}

func orAll(v string) string {
	if v == "" {
		return processor.FilterAll
	}
	return v
}

const indexTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Hospital Appointment Dashboard</title>
<style>
body { font-family: sans-serif; margin: 0; display: flex; }
aside { width: 220px; padding: 16px; background: #f4f5f7; min-height: 100vh; }
main { flex: 1; padding: 16px 24px; }
.cards { display: flex; gap: 16px; }
.card { border: 1px solid #ddd; border-radius: 6px; padding: 12px 20px; min-width: 160px; }
.card b { display: block; font-size: 1.6em; }
.charts { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; }
.charts img { width: 100%; }
.error { background: #fdecea; color: #8a1c1c; padding: 10px; border-radius: 4px; }
.info { background: #e8f1fb; padding: 10px; border-radius: 4px; }
.tip { background: #e9f7ef; padding: 10px; border-radius: 4px; }
</style>
</head>
<body>
<aside>
<h3>Filters</h3>
{{if .Loaded}}
<form method="get" action="/">
<label>Filter by Gender<br>
<select name="gender">{{range .Genders}}<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>{{end}}</select>
</label>
<p>Filter by SMS Received<br>
{{range .SMS}}<label><input type="radio" name="sms" value="{{.Value}}"{{if .Selected}} checked{{end}}> {{.Value}}</label><br>{{end}}
</p>
<button type="submit">Apply</button>
</form>
<hr>
<small>Filters help you explore different patient segments.</small>
{{end}}
</aside>
<main>
<h1>Hospital Appointment No-Show Dashboard</h1>
<p>Analyze hospital appointment data to identify trends and reduce patient no-shows.</p>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/upload" enctype="multipart/form-data">
<label>Upload appointment dataset (CSV or XLSX) <input type="file" name="file" accept=".csv,.xlsx"></label>
<button type="submit">Upload</button>
</form>
{{if not .Loaded}}
<p class="info">Upload your dataset to begin analysis.</p>
{{else}}
<p><small>Dataset {{.Source}} ({{.DatasetID}}): {{.Stats.Input}} rows loaded, {{.Stats.Remaining}} after cleaning.</small></p>
<h2>Summary Metrics</h2>
<div class="cards">
<div class="card">Total Appointments<b>{{.Overall.Total}}</b></div>
<div class="card">No-Show Rate<b>{{.Overall.Rate}}</b></div>
<div class="card">Avg. Waiting Days<b>{{.Overall.AvgWait}}</b></div>
</div>
<h3>Selected segment</h3>
<div class="cards">
<div class="card">Appointments<b>{{.Filtered.Total}}</b></div>
<div class="card">No-Show Rate<b>{{.Filtered.Rate}}</b></div>
<div class="card">Avg. Waiting Days<b>{{.Filtered.AvgWait}}</b></div>
</div>
<hr>
{{if .NoMatch}}
<p class="info">No appointments match the selected filters.</p>
{{else}}
<h2>Visual Insights</h2>
<div class="charts">{{range .Charts}}<figure><img src="{{.URL}}" alt="{{.Title}}"><figcaption>{{.Title}}</figcaption></figure>{{end}}</div>
<h2>Insights Summary</h2>
<ul>{{range .Highlights}}<li>{{.}}</li>{{end}}</ul>
<p><a href="{{.ExportURL}}">Download filtered report (XLSX)</a></p>
{{end}}
<p class="tip">{{.Tip}}</p>
{{end}}
</main>
</body>
</html>
`
