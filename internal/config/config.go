// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 変換オプションの許容範囲
const (
	MinQuality = 1
	MaxQuality = 100
	MinDensity = 72
	MaxDensity = 300
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル設定
	UploadDir   string // アップロードされたPDFの一時保存先
	OutputDir   string // 変換結果の出力ルート
	MaxFileSize int64  // 単一ファイルの最大サイズ（バイト）
	MaxPages    int    // 単一ファイルの最大ページ数

	// 変換設定
	DefaultFormat   string // 既定の出力形式 (jpg, png)
	DefaultQuality  int    // 既定の画質 (1-100)
	DefaultDensity  int    // 既定の解像度 (72-300 dpi)
	Converter       string // 変換エンジン (fitz, ghostscript)
	GhostscriptPath string // Ghostscript実行ファイルのパス

	// 保持期間設定
	RetentionHours       int  // ジョブを保持する時間
	SweepIntervalMinutes int  // 期限切れジョブの掃除間隔（分）
	SweepSkipActive      bool // 処理中のジョブを掃除対象から外すか

	// ジョブ/キュー設定
	WorkerConcurrency   int    // 同時に実行する変換数
	JobStore            string // ジョブ台帳の保存先 (memory, redis)
	JobDispatch         string // ジョブの実行方式 (local, asynq)
	QueueRedisURL       string // Redis接続URL
	AsyncThresholdBytes int64  // 同期処理から非同期へ切り替えるサイズ閾値
	AsyncThresholdPages int    // 同期処理から非同期へ切り替えるページ閾値

	// ログ設定
	LogLevel  string // debug, info, warn, error
	LogFormat string // console, json
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		UploadDir:   absPath(getEnv("UPLOAD_DIR", "uploads")),
		OutputDir:   absPath(getEnv("OUTPUT_DIR", "output")),
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760), // 10MB
		MaxPages:    getEnvAsInt("MAX_PAGES", 500),

		DefaultFormat:   strings.ToLower(getEnv("DEFAULT_FORMAT", "jpg")),
		DefaultQuality:  getEnvAsInt("DEFAULT_QUALITY", 90),
		DefaultDensity:  getEnvAsInt("DEFAULT_DENSITY", 150),
		Converter:       strings.ToLower(getEnv("CONVERTER", "fitz")),
		GhostscriptPath: getEnv("GHOSTSCRIPT_PATH", "gs"),

		RetentionHours:       getEnvAsInt("RETENTION_HOURS", 24),
		SweepIntervalMinutes: getEnvAsInt("SWEEP_INTERVAL_MINUTES", 60),
		SweepSkipActive:      getEnvAsBool("SWEEP_SKIP_ACTIVE", false),

		WorkerConcurrency:   getEnvAsInt("WORKER_CONCURRENCY", 4),
		JobStore:            strings.ToLower(getEnv("JOB_STORE", "memory")),
		JobDispatch:         strings.ToLower(getEnv("JOB_DISPATCH", "local")),
		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 5*1024*1024), // 5MB
		AsyncThresholdPages: getEnvAsInt("ASYNC_THRESHOLD_PAGES", 20),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.DefaultFormat {
	case "jpg", "png":
	default:
		return fmt.Errorf("DEFAULT_FORMAT must be jpg or png, got %q", c.DefaultFormat)
	}
	if c.DefaultQuality < MinQuality || c.DefaultQuality > MaxQuality {
		return fmt.Errorf("DEFAULT_QUALITY must be between %d and %d, got %d", MinQuality, MaxQuality, c.DefaultQuality)
	}
	if c.DefaultDensity < MinDensity || c.DefaultDensity > MaxDensity {
		return fmt.Errorf("DEFAULT_DENSITY must be between %d and %d, got %d", MinDensity, MaxDensity, c.DefaultDensity)
	}
	switch c.Converter {
	case "fitz", "ghostscript":
	default:
		return fmt.Errorf("CONVERTER must be fitz or ghostscript, got %q", c.Converter)
	}
	if c.Converter == "ghostscript" && c.GhostscriptPath == "" {
		return fmt.Errorf("GHOSTSCRIPT_PATH is required when CONVERTER=ghostscript")
	}
	switch c.JobStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("JOB_STORE must be memory or redis, got %q", c.JobStore)
	}
	switch c.JobDispatch {
	case "local", "asynq":
	default:
		return fmt.Errorf("JOB_DISPATCH must be local or asynq, got %q", c.JobDispatch)
	}
	// 別プロセスのワーカーがジョブを拾っても台帳を参照できるようにする
	if c.JobDispatch == "asynq" && c.JobStore != "redis" {
		return fmt.Errorf("JOB_DISPATCH=asynq requires JOB_STORE=redis")
	}
	if (c.JobStore == "redis" || c.JobDispatch == "asynq") && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required for redis backed jobs")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}

	return nil
}

// RetentionAge はジョブの保持期間を返します。
func (c *Config) RetentionAge() time.Duration {
	hours := c.RetentionHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// SweepInterval は掃除処理の実行間隔を返します。
func (c *Config) SweepInterval() time.Duration {
	minutes := c.SweepIntervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return p
	}
	return filepath.Join(cwd, p)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
