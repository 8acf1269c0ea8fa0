package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"NoShowInsight/src/chart"
	"NoShowInsight/src/datapush"
	"NoShowInsight/src/datasource/file"
	"NoShowInsight/src/processor"
	"NoShowInsight/src/storage"

	"github.com/go-gota/gota/dataframe"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// Options 看板运行参数
type Options struct {
	Listen        string
	UploadLimit   string // 例如 "50M"
	Schema        processor.Schema
	Policy        processor.WaitingPolicy
	Encoding      string
	SheetName     string
	HistogramBins int
}

// Server 本地看板
type Server struct {
	opts    Options
	logger  *storage.Logger
	cleaner *processor.Cleaner
	data    store
	e       *echo.Echo
}

func NewServer(opts Options, logger *storage.Logger) *Server {
	opts.Schema = opts.Schema.WithDefaults()
	if opts.HistogramBins <= 0 {
		opts.HistogramBins = 30
	}
	if opts.UploadLimit == "" {
		opts.UploadLimit = "50M"
	}

	s := &Server{
		opts:    opts,
		logger:  logger,
		cleaner: processor.NewCleaner(opts.Schema, opts.Policy),
	}
	s.e = s.routes()
	return s
}

// Echo 返回路由，测试中直接调用ServeHTTP
func (s *Server) Echo() *echo.Echo { return s.e }

// Snapshot 当前数据集，未加载时为nil
func (s *Server) Snapshot() *Snapshot { return s.data.Get() }

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = newRenderer()

	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(s.opts.UploadLimit))
	e.Use(s.requestLogger)

	e.GET("/", s.index)
	e.POST("/upload", s.upload)
	e.GET("/api/summary", s.summary)
	e.GET("/charts/:name", s.chart)
	e.GET("/export.xlsx", s.export)
	e.GET("/logs", s.logs)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	return e
}

// requestLogger 每个请求记录一条结构化日志
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.WithFields(logrus.Fields{
			"method":  c.Request().Method,
			"path":    c.Path(),
			"status":  c.Response().Status,
			"latency": time.Since(start).String(),
		}).Debug("request")
		return nil
	}
}

// Start 启动监听，ctx取消后优雅退出
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.e.Start(s.opts.Listen)
	}()
	s.logger.Info("看板已启动: http://" + s.opts.Listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.e.Shutdown(shutdownCtx)
	}
}

// LoadFile 从磁盘读取数据集并替换当前快照(预加载和目录监控使用)
func (s *Server) LoadFile(path string) error {
	raw, err := file.Load(path, s.readOptions())
	if err != nil {
		return err
	}
	return s.replace(path, raw)
}

func (s *Server) readOptions() file.Options {
	return file.Options{Schema: s.opts.Schema, Encoding: s.opts.Encoding, SheetName: s.opts.SheetName}
}

func (s *Server) replace(name string, raw dataframe.DataFrame) error {
	snap, err := NewSnapshot(name, raw, s.cleaner, s.opts.Schema)
	if err != nil {
		return err
	}
	s.data.Set(snap)
	s.logger.WithFields(logrus.Fields{
		"dataset":   snap.ID,
		"source":    name,
		"input":     snap.Stats.Input,
		"remaining": snap.Stats.Remaining,
	}).Info("数据集已更新")
	return nil
}

// upload 处理上传的CSV/XLSX，失败时在页面提示重新上传
func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.renderError(c, http.StatusBadRequest, "Please choose a CSV or XLSX file to upload.")
	}
	f, err := fh.Open()
	if err != nil {
		return s.renderError(c, http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	raw, err := file.Read(f, fh.Filename, s.readOptions())
	if err == nil {
		err = s.replace(fh.Filename, raw)
	}
	if err != nil {
		s.logger.Warning(fmt.Sprintf("上传文件 %s 处理失败: %v", fh.Filename, err))
		return s.renderError(c, http.StatusBadRequest, uploadErrorMessage(err))
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func uploadErrorMessage(err error) string {
	var dateErr *processor.DateParseError
	var parseErr *processor.ParseError
	switch {
	case errors.As(err, &dateErr):
		return fmt.Sprintf("Could not read dates: %v. Please fix the file and upload it again.", dateErr)
	case errors.As(err, &parseErr):
		return fmt.Sprintf("Could not read the dataset: %v. Please upload a valid appointments file.", parseErr)
	default:
		return fmt.Sprintf("Upload failed: %v. Please try again.", err)
	}
}

// bindFilter 读取查询参数中的筛选条件
func bindFilter(c echo.Context) (processor.Filter, error) {
	var f processor.Filter
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &f); err != nil {
		return f, err
	}
	return f, f.Validate()
}

// view 当前快照按筛选条件计算出的数据
type view struct {
	snap     *Snapshot
	filter   processor.Filter
	filtered *processor.DataProcessor
	summary  *processor.Summary // 筛选后为空时为nil
}

func (s *Server) currentView(c echo.Context) (*view, error) {
	snap := s.data.Get()
	if snap == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no dataset loaded, upload one first")
	}
	f, err := bindFilter(c)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dp, err := snap.Filtered(f)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	v := &view{snap: snap, filter: f, filtered: dp}
	summary, err := dp.CalculateMetrics()
	switch {
	case errors.Is(err, processor.ErrEmptyDataset):
	case err != nil:
		return nil, err
	default:
		v.summary = summary
	}
	return v, nil
}

// summaryResponse /api/summary 的返回结构
type summaryResponse struct {
	Dataset  string               `json:"dataset"`
	Source   string               `json:"source"`
	Filter   processor.Filter     `json:"filter"`
	Cleaning processor.CleanStats `json:"cleaning"`
	Genders  []string             `json:"genders"`
	Overall  *processor.Summary   `json:"overall"`
	Filtered *processor.Summary   `json:"filtered"`
}

func (s *Server) summary(c echo.Context) error {
	v, err := s.currentView(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summaryResponse{
		Dataset:  v.snap.ID,
		Source:   v.snap.Name,
		Filter:   v.filter,
		Cleaning: v.snap.Stats,
		Genders:  v.snap.Genders(),
		Overall:  v.snap.Summary,
		Filtered: v.summary,
	})
}

func (s *Server) chart(c echo.Context) error {
	name := c.Param("name")
	known := false
	for _, n := range chart.Names() {
		known = known || n == name
	}
	if !known {
		return echo.NewHTTPError(http.StatusNotFound, "unknown chart "+name)
	}

	v, err := s.currentView(c)
	if err != nil {
		return err
	}
	if v.summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no appointments match the selected filters")
	}

	p, err := chart.Build(name, v.filtered, s.opts.HistogramBins)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := chart.Render(p, &buf); err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// export 下载筛选后的数据和汇总(xlsx)
func (s *Server) export(c echo.Context) error {
	v, err := s.currentView(c)
	if err != nil {
		return err
	}
	if v.summary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no appointments match the selected filters")
	}

	var buf bytes.Buffer
	if err := datapush.WriteWorkbook(&buf, v.filtered.DataFrame(), v.summary); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="no-show-report.xlsx"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
