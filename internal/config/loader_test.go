package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("缺失的配置文件应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	clearEnv(t, cacheEnvKeys...)

	path := writeTempConfig(t, `
LogLevel = "info"
UpstreamTimeout = "boom"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	clearEnv(t, cacheEnvKeys...)

	path := writeTempConfig(t, `
UpstreamTimeout = 90
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 90*time.Second {
		t.Fatalf("整数应按秒解析, got %v", cfg.Global.UpstreamTimeout.DurationValue())
	}
}

func TestEnvOverridesCacheSettings(t *testing.T) {
	clearEnv(t, cacheEnvKeys...)
	dir := t.TempDir()
	t.Setenv("PATHLY_CACHE_LOCATION", filepath.Join(dir, "override"))
	t.Setenv("cache_size", "2GB")

	path := writeTempConfig(t, `
CacheLocation = "./from-file"
CacheSize = "1GB"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheLocation != filepath.Join(dir, "override") {
		t.Fatalf("PATHLY_CACHE_LOCATION 未生效: %s", cfg.Global.CacheLocation)
	}
	if cfg.Global.CacheLimit() != 2<<30 {
		t.Fatalf("cache_size 未生效: %d", cfg.Global.CacheLimit())
	}

	// GB 与 GiB 同为 1024 进制。
	t.Setenv("cache_size", "2GiB")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheLimit() != 2<<30 {
		t.Fatalf("2GiB 应与 2GB 相同: %d", cfg.Global.CacheLimit())
	}
}

func TestDotEnvBesideConfigIsLoaded(t *testing.T) {
	clearEnv(t, cacheEnvKeys...)

	path := writeTempConfig(t, `LogLevel = "info"`)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envFile, []byte("cache_size=3MiB\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.CacheLimit() != 3*1024*1024 {
		t.Fatalf(".env 中的 cache_size 未生效: %s", cfg.Global.CacheSize)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("45")); err != nil || d.DurationValue() != 45*time.Second {
		t.Fatalf("纯数字应按秒解析: %v %v", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("2m")); err != nil || d.DurationValue() != 2*time.Minute {
		t.Fatalf("Go duration 字符串解析失败: %v %v", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatalf("非法值应报错")
	}
}

func TestLoadAcceptsQuotedFractionalSeconds(t *testing.T) {
	clearEnv(t, cacheEnvKeys...)

	path := writeTempConfig(t, `
InitialBackoff = "1.5"
MaxBackoff = "45s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	lo, hi := cfg.Global.RetryWindow()
	if lo != 1500*time.Millisecond || hi != 45*time.Second {
		t.Fatalf("字符串时长解析错误: %v-%v", lo, hi)
	}
}
