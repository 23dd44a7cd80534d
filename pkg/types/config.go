package types

import "time"

// Config 主配置结构
type Config struct {
	Log            LogConfig            `mapstructure:"log"`
	API            APIConfig            `mapstructure:"api"`
	Breaker        BreakerConfig        `mapstructure:"breaker"`
	Monitor        MonitorConfig        `mapstructure:"monitor"`
	Classification ClassificationConfig `mapstructure:"classification"`
	Schedule       ScheduleConfig       `mapstructure:"schedule"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Database       DatabaseConfig       `mapstructure:"database"`
	DingTalk       DingTalkConfig       `mapstructure:"dingtalk"`
	Network        NetworkConfig        `mapstructure:"network"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// APIConfig 后端接口配置
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`       // Bearer令牌
	Timeout    time.Duration `mapstructure:"timeout"`     // 单次请求超时
	RetryCount int           `mapstructure:"retry_count"` // GET请求最大尝试次数
	RateLimit  float64       `mapstructure:"rate_limit"`  // 每秒请求数
	RateBurst  int           `mapstructure:"rate_burst"`
	PageSize   int           `mapstructure:"page_size"` // 分页拉取分类数据时每页条数
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"` // 半开状态允许的请求数
	Interval            time.Duration `mapstructure:"interval"`     // 闭合状态计数清零周期
	Timeout             time.Duration `mapstructure:"timeout"`      // 打开状态持续时间
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

// MonitorConfig 监控轮询配置
type MonitorConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// ClassificationConfig 分类结果集配置
type ClassificationConfig struct {
	Locale string `mapstructure:"locale"` // 板块名称排序使用的语言，如 zh
}

// ScheduleConfig 定时任务配置
type ScheduleConfig struct {
	SnapshotCron string `mapstructure:"snapshot_cron"` // 带秒的cron表达式
	RunOnStart   bool   `mapstructure:"run_on_start"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver     string      `mapstructure:"driver"` // mysql 或 sqlite，为空则不记录修复历史
	SQLitePath string      `mapstructure:"sqlite_path"`
	MySQL      MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy string `mapstructure:"proxy"` // HTTP代理地址，如 http://127.0.0.1:7890
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Addr        string `mapstructure:"addr"`         // 为空则不启动 /metrics
	PushGateway string `mapstructure:"push_gateway"` // 一次性命令推送指标的地址，为空则不推送
}
