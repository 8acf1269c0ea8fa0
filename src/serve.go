package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"NoShowInsight/src/dashboard"
	"NoShowInsight/src/datasource/email"
	"NoShowInsight/src/datasource/file"

	"github.com/robfig/cron"
)

// runServer 启动看板：预加载数据，监控数据目录，按需轮询邮箱
func (a *app) runServer(ctx context.Context) error {
	srv := dashboard.NewServer(dashboard.Options{
		Listen:        a.cfg.Listen,
		UploadLimit:   a.cfg.UploadLimit,
		Schema:        a.schema,
		Policy:        a.policy,
		Encoding:      a.cfg.InputEncoding,
		SheetName:     a.cfg.SheetName,
		HistogramBins: a.cfg.HistogramBins,
	}, a.logger)

	if path := a.initialDataFile(); path != "" {
		if err := srv.LoadFile(path); err != nil {
			a.logger.Warning(fmt.Sprintf("预加载 %s 失败: %v", path, err))
		}
	}

	if err := a.startMonitor(ctx, func(path string) {
		if err := srv.LoadFile(path); err != nil {
			a.logger.Error(fmt.Sprintf("重新加载 %s 失败: %v", path, err))
		}
	}); err != nil {
		return err
	}

	c, err := a.startMailPolling()
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Stop()
	}

	return srv.Start(ctx)
}

// runWatch 数据文件变化时重新生成报告，直到ctx取消
func (a *app) runWatch(ctx context.Context, out io.Writer) error {
	c, err := a.startMailPolling()
	if err != nil {
		return err
	}
	if c != nil {
		defer c.Stop()
	}

	monitor, err := file.NewFileMonitor(a.cfg.DataDir)
	if err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("开始监控目录 %s，按Ctrl+C退出", monitor.Dir()))

	return monitor.Watch(ctx, func(path string) {
		t1 := time.Now()
		res, err := a.generateReport(path, out)
		if err != nil {
			a.logger.Error(fmt.Sprintf("生成报告失败(%s): %v", path, err))
			return
		}
		a.logger.Info(fmt.Sprintf("数据处理时间：%v", time.Since(t1)))
		if err := a.mailReport(res); err != nil {
			a.logger.Error(err.Error())
		}
	})
}

// startMonitor 在后台监控数据目录
func (a *app) startMonitor(ctx context.Context, handler func(string)) error {
	monitor, err := file.NewFileMonitor(a.cfg.DataDir)
	if err != nil {
		return err
	}
	go func() {
		if err := monitor.Watch(ctx, handler); err != nil {
			a.logger.Error("文件监控出错: " + err.Error())
		}
	}()
	return nil
}

// initialDataFile 数据目录中最新的文件，没有时退回配置的data_file
func (a *app) initialDataFile() string {
	if latest, err := file.Latest(a.cfg.DataDir); err == nil && latest != "" {
		return latest
	}
	if _, err := os.Stat(a.cfg.DataFile); err == nil {
		return a.cfg.DataFile
	}
	return ""
}

// startMailPolling email.enabled 时按 check_interval 定时拉取邮件附件到数据目录
// 保存下来的文件由目录监控负责处理
func (a *app) startMailPolling() (*cron.Cron, error) {
	if !a.cfg.Email.Enabled {
		return nil, nil
	}

	client := email.NewEmailClient(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password)
	handler := email.NewAttachmentHandler(a.cfg.Email.TargetSubject, a.cfg.DataDir)

	// 使用配置中的检查间隔，例如 "@every 5m0s"
	cronSpec := fmt.Sprintf("@every %s", a.cfg.Email.CheckInterval)

	c := cron.New()
	err := c.AddFunc(cronSpec, func() {
		a.logger.Debug(fmt.Sprintf("开始定时检查(间隔: %v)...", cronSpec))
		if _, err := email.FetchLatest(client, handler, a.logger); err != nil {
			a.logger.Error("检查处理邮件失败: " + err.Error())
		}
	})
	if err != nil {
		return nil, fmt.Errorf("创建定时任务失败: %w", err)
	}

	c.Start()
	a.logger.Info(fmt.Sprintf("邮件监控已启动(检查间隔: %v)", a.cfg.Email.CheckInterval))
	return c, nil
}

// fetchOnce 立即检查一次邮箱
func (a *app) fetchOnce() ([]string, error) {
	if a.cfg.Email.Server == "" {
		return nil, fmt.Errorf("email.server 未配置")
	}
	client := email.NewEmailClient(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password)
	handler := email.NewAttachmentHandler(a.cfg.Email.TargetSubject, a.cfg.DataDir)
	return email.FetchLatest(client, handler, a.logger)
}
