package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// envBindings 将配置键映射到可覆盖它的环境变量，前者优先。
var envBindings = map[string][]string{
	"CacheLocation": {"PATHLY_CACHE_LOCATION", "cache_location"},
	"CacheSize":     {"PATHLY_CACHE_SIZE", "cache_size"},
	"LogLevel":      {"PATHLY_LOG_LEVEL"},
	"ListenPort":    {"PATHLY_LISTEN_PORT"},
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
// 配置文件同目录下的 .env 会先被载入，但不会覆盖已存在的环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Sources {
		applySourceDefaults(&cfg.Sources[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CacheLocation)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheLocation = absCache

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("读取 %s 失败: %w", path, err)
	}
	return nil
}

func bindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheLocation", "./.cache/http")
	v.SetDefault("CacheSize", "10GiB")
	v.SetDefault("ClearBakOnStart", true)
	v.SetDefault("UserAgent", DefaultUserAgent)
	v.SetDefault("UpstreamTimeout", "30m")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MaxBackoff", "30s")
	v.SetDefault("FetchWorkers", 4)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.UserAgent) == "" {
		g.UserAgent = DefaultUserAgent
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.MaxBackoff.DurationValue() == 0 {
		g.MaxBackoff = Duration(30 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Minute)
	}
	g.CacheSize = strings.TrimSpace(g.CacheSize)
	for i, raw := range g.Prefetch {
		g.Prefetch[i] = strings.TrimSpace(raw)
	}
}

func applySourceDefaults(s *SourceConfig) {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.Compression = strings.ToLower(strings.TrimSpace(s.Compression))
	if s.Compression == "" {
		s.Compression = "auto"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %w", err)
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
