package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"NoShowInsight/src/processor"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 NOSHOW_WAITING_POLICY、NOSHOW_EMAIL_PASSWORD
const EnvPrefix = "NOSHOW"

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir       string `mapstructure:"data_dir"`       // 数据文件目录(watch模式监控该目录)
	DataFile      string `mapstructure:"data_file"`      // 批处理默认读取的数据文件
	SheetName     string `mapstructure:"sheet_name"`     // xlsx输入使用的工作表，空则取第一个
	InputEncoding string `mapstructure:"input_encoding"` // CSV文本编码
	WaitingPolicy string `mapstructure:"waiting_policy"` // 负等待天数处理策略: drop | clamp
	ReportDir     string `mapstructure:"report_dir"`     // 图表与报告输出目录
	HistogramBins int    `mapstructure:"histogram_bins"` // 年龄直方图分箱数
	LogName       string `mapstructure:"log_name"`
	LogMaxSize    string `mapstructure:"log_max_size"` // 例如 "10 * 1024 * 1024"
	LogLevel      string `mapstructure:"log_level"`
	Listen        string `mapstructure:"listen"`       // 看板监听地址
	UploadLimit   string `mapstructure:"upload_limit"` // 上传大小限制，例如 "50M"

	Email struct {
		Enabled       bool          `mapstructure:"enabled"`
		Server        string        `mapstructure:"server"`         // IMAP服务器地址
		Username      string        `mapstructure:"username"`       // 邮箱用户名
		Password      string        `mapstructure:"password"`       // 邮箱密码
		TargetSubject string        `mapstructure:"target_subject"` // 需要匹配的邮件主题
		CheckInterval time.Duration `mapstructure:"check_interval"` // 检查新邮件的间隔时间
	} `mapstructure:"email"`

	SendEmail struct {
		Enabled  bool     `mapstructure:"enabled"`
		Server   string   `mapstructure:"server"` // SMTP服务器地址
		Username string   `mapstructure:"username"`
		Password string   `mapstructure:"password"`
		Subject  string   `mapstructure:"subject"`
		To       []string `mapstructure:"to"`
	} `mapstructure:"send_email"`
}

// DataConfig 数据集列名配置
type DataConfig struct {
	Columns processor.Schema `mapstructure:"columns"`
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	loadErr            error
)

// LoadConfig 只加载一次配置；文件不存在时使用默认值
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	once.Do(func() {
		// .env 不存在时只依赖环境变量
		_ = godotenv.Load()
		instance, dataConfigInstance, loadErr = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, loadErr
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configFile, cfgChan, errChan)
	go parseDataConfig(dataConfigFile, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, dcfg, nil
}

func newViper(filePath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return v, nil
}

func parseConfig(filePath string, resultChan chan<- *Config, errChan chan<- error) {
	v, err := newViper(filePath)
	if err != nil {
		errChan <- fmt.Errorf("读取配置文件失败: %w", err)
		return
	}
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(filePath string, resultChan chan<- *DataConfig, errChan chan<- error) {
	v, err := newViper(filePath)
	if err != nil {
		errChan <- fmt.Errorf("读取数据配置文件失败: %w", err)
		return
	}

	d := processor.DefaultSchema()
	v.SetDefault("columns.gender", d.Gender)
	v.SetDefault("columns.scheduled_day", d.ScheduledDay)
	v.SetDefault("columns.appointment_day", d.AppointmentDay)
	v.SetDefault("columns.age", d.Age)
	v.SetDefault("columns.sms_received", d.SMSReceived)
	v.SetDefault("columns.no_show", d.NoShow)
	v.SetDefault("columns.no_show_aliases", d.NoShowAliases)
	v.SetDefault("columns.waiting_days", d.WaitingDays)

	var dcfg DataConfig
	if err := v.Unmarshal(&dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "data")
	v.SetDefault("data_file", "medical appointment.csv")
	v.SetDefault("sheet_name", "")
	v.SetDefault("input_encoding", "utf-8")
	v.SetDefault("waiting_policy", string(processor.DropNegative))
	v.SetDefault("report_dir", "report")
	v.SetDefault("histogram_bins", 30)
	v.SetDefault("log_name", "app.log")
	v.SetDefault("log_max_size", "10 * 1024 * 1024")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen", "127.0.0.1:8501")
	v.SetDefault("upload_limit", "50M")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.server", "")
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.target_subject", "appointments")
	v.SetDefault("email.check_interval", "5m")

	v.SetDefault("send_email.enabled", false)
	v.SetDefault("send_email.server", "")
	v.SetDefault("send_email.username", "")
	v.SetDefault("send_email.password", "")
	v.SetDefault("send_email.subject", "Appointment no-show report")
	v.SetDefault("send_email.to", []string{})
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.HistogramBins <= 0 {
		return fmt.Errorf("histogram_bins must be positive, got %d", c.HistogramBins)
	}
	if c.Email.Enabled && c.Email.CheckInterval <= 0 {
		return fmt.Errorf("email.check_interval must be positive")
	}
	return nil
}

// Policy 负等待天数处理策略
func (c *Config) Policy() (processor.WaitingPolicy, error) {
	return processor.ParseWaitingPolicy(c.WaitingPolicy)
}

// Schema 补齐默认值后的列名映射
func (dc *DataConfig) Schema() processor.Schema {
	return dc.Columns.WithDefaults()
}
