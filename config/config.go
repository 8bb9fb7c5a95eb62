package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"homeplanner/backend/internal/timewindow"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Feature   FeatureConfig   `mapstructure:"feature"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port    int        `mapstructure:"port"`
	BaseURL string     `mapstructure:"base_url"` // 邮件与日历中的深链前缀
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
	AutoMigrate     bool   `mapstructure:"auto_migrate"`       // 启动时自动执行迁移；关闭后由 hhctl migrate 管理
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（可选，不可用时降级运行）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置。Token 由外部认证服务签发，本服务只做校验；
// 日历订阅 Token 由本服务签发。
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	FeedTokenTTL   time.Duration `mapstructure:"feed_token_ttl"`
}

// MailConfig SMTP 邮件配置；SMTPHost 为空视为「未配置」，不是错误
type MailConfig struct {
	SMTPHost     string  `mapstructure:"smtp_host"`
	SMTPPort     int     `mapstructure:"smtp_port"`
	Username     string  `mapstructure:"username"`
	Password     string  `mapstructure:"password"`
	From         string  `mapstructure:"from"`
	FromName     string  `mapstructure:"from_name"`
	ImplicitTLS  bool    `mapstructure:"implicit_tls"` // true: 465 端口直连 TLS；false: STARTTLS
	MaxPerSecond float64 `mapstructure:"max_per_second"`
}

// Configured 是否已配置 SMTP
func (c *MailConfig) Configured() bool {
	return c.SMTPHost != "" && c.From != ""
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig 周期展开与通知调度的静态配置，运行期间不重新加载
type SchedulerConfig struct {
	HorizonDays                 int           `mapstructure:"horizon_days"`
	DefaultEscalationDelayHours int           `mapstructure:"default_escalation_delay_hours"`
	DefaultQuietStart           string        `mapstructure:"default_quiet_start"`
	DefaultQuietEnd             string        `mapstructure:"default_quiet_end"`
	Timezone                    string        `mapstructure:"timezone"`
	ExpansionLockTTL            time.Duration `mapstructure:"expansion_lock_ttl"`
	ImportantDateLookaheadDays  int           `mapstructure:"important_date_lookahead_days"`
}

// Location 解析调度时区
func (c *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FeatureConfig 功能开关配置。最终是否可用还取决于启动时的表结构探测。
type FeatureConfig struct {
	NotificationsEnabled  bool `mapstructure:"notifications_enabled"`
	ImportantDatesEnabled bool `mapstructure:"important_dates_enabled"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "homeplanner")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)
	v.SetDefault("db.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "homeplanner")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.feed_token_ttl", "8760h")

	v.SetDefault("mail.smtp_port", 587)
	v.SetDefault("mail.from_name", "HomePlanner")
	v.SetDefault("mail.implicit_tls", false)
	v.SetDefault("mail.max_per_second", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scheduler.horizon_days", 90)
	v.SetDefault("scheduler.default_escalation_delay_hours", 24)
	v.SetDefault("scheduler.default_quiet_start", "22:00")
	v.SetDefault("scheduler.default_quiet_end", "07:00")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.expansion_lock_ttl", "30s")
	v.SetDefault("scheduler.important_date_lookahead_days", 30)

	v.SetDefault("feature.notifications_enabled", true)
	v.SetDefault("feature.important_dates_enabled", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "homeplanner")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("HOME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Scheduler.HorizonDays < 1 || c.Scheduler.HorizonDays > 366 {
		return fmt.Errorf("配置校验失败: scheduler.horizon_days 必须在 1-366 之间")
	}
	if c.Scheduler.DefaultEscalationDelayHours < 1 {
		return fmt.Errorf("配置校验失败: scheduler.default_escalation_delay_hours 必须为正数")
	}
	if _, err := timewindow.New(c.Scheduler.DefaultQuietStart, c.Scheduler.DefaultQuietEnd); err != nil {
		return fmt.Errorf("配置校验失败: scheduler 默认免打扰时段无效: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("配置校验失败: scheduler.timezone 无效: %w", err)
	}
	return nil
}
