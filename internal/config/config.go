package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config DatRain Agent 的全部运行配置，由环境变量填充
// 只有 Validate 失败属于致命错误，其余错误都在运行期就地恢复
type Config struct {
	// 入站目录（下载落地目录）
	InboundDir string
	// 缓存根目录，留空时回退到同步盘目录自动发现
	CacheDir string
	// 缓存索引 sqlite 路径，留空时落在缓存目录下
	DBPath string

	// 外部扫描器命令，可带参数，文件路径作为最后一个参数传入
	ScannerCmd  string
	ScanTimeout time.Duration

	TickInterval   time.Duration
	StabilityDelay time.Duration
	Workers        int

	// 可选：REJECTED 文件的隔离目录，留空则原地不动
	QuarantineDir string
	// 可选：提交后调用的外部 ACL 收权工具
	PrivacyCmd     string
	PrivacyTimeout time.Duration

	AuditPath   string
	AuditBuffer int

	// 可选：运维状态页监听地址，留空不启动
	StatusAddr string

	// 是否监听可移动介质挂载并作为额外入站来源 (仅 Linux)
	WatchRemovable bool
	// 提交前缓存目录最低剩余空间，0 表示不检查
	MinFreeBytes int64
}

// Load 从环境变量读取配置，.env 文件由 main 侧 godotenv/autoload 加载
func Load() *Config {
	return &Config{
		InboundDir:     getEnv("DATRAIN_INBOUND_DIR", ""),
		CacheDir:       getEnv("DATRAIN_CACHE_DIR", ""),
		DBPath:         getEnv("DATRAIN_DB_PATH", ""),
		ScannerCmd:     getEnv("DATRAIN_SCANNER_CMD", ""),
		ScanTimeout:    getEnvDuration("DATRAIN_SCAN_TIMEOUT", 30*time.Second),
		TickInterval:   getEnvDuration("DATRAIN_TICK_INTERVAL", 10*time.Second),
		StabilityDelay: getEnvDuration("DATRAIN_STABILITY_DELAY", 500*time.Millisecond),
		Workers:        getEnvInt("DATRAIN_WORKERS", 4),
		QuarantineDir:  getEnv("DATRAIN_QUARANTINE_DIR", ""),
		PrivacyCmd:     getEnv("DATRAIN_PRIVACY_CMD", ""),
		PrivacyTimeout: getEnvDuration("DATRAIN_PRIVACY_TIMEOUT", 10*time.Second),
		AuditPath:      getEnv("DATRAIN_AUDIT_PATH", "datrain_audit.jsonl"),
		AuditBuffer:    getEnvInt("DATRAIN_AUDIT_BUFFER", 256),
		StatusAddr:     getEnv("DATRAIN_STATUS_ADDR", ""),
		WatchRemovable: getEnvBool("DATRAIN_WATCH_REMOVABLE", false),
		MinFreeBytes:   getEnvInt64("DATRAIN_MIN_FREE_BYTES", 0),
	}
}

// Validate 启动期校验，返回错误即按 ConfigError 处理（进程退出）
func (c *Config) Validate() error {
	if c.InboundDir == "" {
		return fmt.Errorf("config: DATRAIN_INBOUND_DIR is required")
	}
	info, err := os.Stat(c.InboundDir)
	if err != nil {
		return fmt.Errorf("config: inbound dir %q not accessible: %w", c.InboundDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: inbound path %q is not a directory", c.InboundDir)
	}
	if c.ScannerCmd == "" {
		return fmt.Errorf("config: DATRAIN_SCANNER_CMD is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: DATRAIN_WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("config: DATRAIN_SCAN_TIMEOUT must be positive")
	}
	if c.AuditBuffer < 1 {
		return fmt.Errorf("config: DATRAIN_AUDIT_BUFFER must be >= 1, got %d", c.AuditBuffer)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
