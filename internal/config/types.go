package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultUserAgent 标识研究用爬虫，便于数据源运营方联系。
const DefaultUserAgent = "Mozilla/5.0 (compatible; WPIFastlyMQPBot/1.0; +https://www.wpi.edu/academics/undergraduate/major-qualifying-project)"

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述进程级参数：监听端口、日志、磁盘缓存与上游客户端。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CacheLocation   string   `mapstructure:"CacheLocation"`
	CacheSize       string   `mapstructure:"CacheSize"`
	ClearBakOnStart bool     `mapstructure:"ClearBakOnStart"`
	UserAgent       string   `mapstructure:"UserAgent"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	MaxBackoff      Duration `mapstructure:"MaxBackoff"`
	FetchWorkers    int      `mapstructure:"FetchWorkers"`
	Prefetch        []string `mapstructure:"Prefetch"`
}

// SourceConfig 声明一个数据源，或覆盖同名内置数据源。
type SourceConfig struct {
	Name        string `mapstructure:"Name"`
	BaseURL     string `mapstructure:"BaseURL"`
	Description string `mapstructure:"Description"`
	Compression string `mapstructure:"Compression"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Sources []SourceConfig `mapstructure:"Source"`
}

// SourceNames 返回配置中声明的数据源名称，按出现顺序排列。
func SourceNames(sources []SourceConfig) []string {
	if len(sources) == 0 {
		return nil
	}
	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	return names
}
