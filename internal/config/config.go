// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ConfigPathEnv は設定ファイルのパスを指定する環境変数。
const ConfigPathEnv = "FEEDSHELF_CONFIG"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
// 優先順位は 環境変数 > 設定ファイル（YAML） > 既定値。
type Config struct {
	// Database
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	// Server
	ServerPort string `yaml:"server_port" env:"SERVER_PORT"`

	// Fetch
	FetchTimeout         time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
	FetchMaxSize         int64         `yaml:"fetch_max_size" env:"FETCH_MAX_SIZE"`
	FetchMaxConcurrent   int           `yaml:"fetch_max_concurrent" env:"FETCH_MAX_CONCURRENT"`
	FetchInterval        time.Duration `yaml:"fetch_interval" env:"FETCH_INTERVAL"`
	FetchRefreshInterval time.Duration `yaml:"fetch_refresh_interval" env:"FETCH_REFRESH_INTERVAL"`
	FetchUserAgent       string        `yaml:"fetch_user_agent" env:"FETCH_USER_AGENT"`

	// Rate Limit
	RateLimitPerMinute         int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	RateLimitRegisterPerMinute int `yaml:"rate_limit_register_per_minute" env:"RATE_LIMIT_REGISTER_PER_MINUTE"`

	// CORS
	CORSAllowedOrigin string `yaml:"cors_allowed_origin" env:"CORS_ALLOWED_ORIGIN"`

	// Compaction
	CompactionSchedule      string `yaml:"compaction_schedule" env:"COMPACTION_SCHEDULE"`
	CompactionRetentionDays int    `yaml:"compaction_retention_days" env:"COMPACTION_RETENTION_DAYS"`

	// Logging
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default は既定値を設定したConfigを返す。
func Default() *Config {
	return &Config{
		DatabaseURL:                "sqlite://feedshelf.db",
		ServerPort:                 "8080",
		FetchTimeout:               10 * time.Second,
		FetchMaxSize:               5 << 20,
		FetchMaxConcurrent:         10,
		FetchInterval:              5 * time.Minute,
		FetchRefreshInterval:       time.Hour,
		FetchUserAgent:             "feedshelf/1.0 (+https://github.com/hitoshi/feedshelf)",
		RateLimitPerMinute:         120,
		RateLimitRegisterPerMinute: 10,
		CORSAllowedOrigin:          "http://localhost:3000",
		CompactionSchedule:         "@daily",
		CompactionRetentionDays:    30,
		LogLevel:                   "info",
	}
}

// Load は既定値、設定ファイル、環境変数の順にConfigを読み込み、検証する。
// pathが空の場合は環境変数 FEEDSHELF_CONFIG のパスを使い、それも空なら設定ファイルは読まない。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗しました: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	// 空ファイルはio.EOFになる
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("設定ファイルの解析に失敗しました: %s: %w", path, err)
	}
	return nil
}

// Validate は設定値の整合性を検証する。問題はまとめて1つのエラーとして返す。
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if port, err := strconv.Atoi(c.ServerPort); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT is invalid: %q", c.ServerPort))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.FetchMaxSize <= 0 {
		errs = append(errs, errors.New("FETCH_MAX_SIZE must be positive"))
	}
	if c.FetchMaxConcurrent <= 0 {
		errs = append(errs, errors.New("FETCH_MAX_CONCURRENT must be positive"))
	}
	if c.FetchInterval <= 0 {
		errs = append(errs, errors.New("FETCH_INTERVAL must be positive"))
	}
	if c.FetchRefreshInterval <= 0 {
		errs = append(errs, errors.New("FETCH_REFRESH_INTERVAL must be positive"))
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitRegisterPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_REGISTER_PER_MINUTE must be positive"))
	}
	if c.CompactionRetentionDays < 0 {
		errs = append(errs, errors.New("COMPACTION_RETENTION_DAYS must not be negative"))
	}
	if _, err := cron.ParseStandard(c.CompactionSchedule); err != nil {
		errs = append(errs, fmt.Errorf("COMPACTION_SCHEDULE is invalid: %w", err))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL is invalid: %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
