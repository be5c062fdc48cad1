// Package config 负责加载和管理应用程序的配置
// 使用 viper 库支持 YAML 配置文件和环境变量覆盖
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 是应用程序的根配置结构
// 包含所有子配置模块
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`     // 服务器配置
	Database   DatabaseConfig   `mapstructure:"database"`   // 数据库配置
	Redis      RedisConfig      `mapstructure:"redis"`      // Redis 配置
	JWT        JWTConfig        `mapstructure:"jwt"`        // JWT 配置
	Log        LogConfig        `mapstructure:"log"`        // 日志配置
	AI         AIConfig         `mapstructure:"ai"`         // 模型服务配置
	Catalog    CatalogConfig    `mapstructure:"catalog"`    // 配件目录配置
	Enrichment EnrichmentConfig `mapstructure:"enrichment"` // 位置/气候补全配置
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	Port        int           `mapstructure:"port"`         // 监听端口，默认 8080
	Mode        string        `mapstructure:"mode"`         // 运行模式: debug / release
	CORS        []string      `mapstructure:"cors"`         // CORS 允许的域名
	TurnTimeout time.Duration `mapstructure:"turn_timeout"` // 单轮对话（模型调用）超时
	RateLimit   int           `mapstructure:"rate_limit"`   // 每个用户每分钟的对话请求数，0 表示不限
}

// DatabaseConfig 数据库连接配置
// Driver 支持 mysql / postgres / sqlite；设置了 DSN 时直接使用
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`         // 数据库驱动
	DSN          string `mapstructure:"dsn"`            // 完整连接串（可选）
	Host         string `mapstructure:"host"`           // 数据库主机地址
	Port         int    `mapstructure:"port"`           // 数据库端口
	Username     string `mapstructure:"username"`       // 数据库用户名
	Password     string `mapstructure:"password"`       // 数据库密码
	Database     string `mapstructure:"database"`       // 数据库名称（sqlite 为文件路径）
	Charset      string `mapstructure:"charset"`        // 字符集（mysql）
	SSLMode      string `mapstructure:"sslmode"`        // postgres sslmode
	MaxIdleConns int    `mapstructure:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxLifetime  int    `mapstructure:"max_lifetime"`   // 连接最大生命周期（秒）
}

// ConnString 返回当前驱动使用的连接串
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
	case "sqlite":
		return d.Database
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Charset)
}

// RedisConfig Redis 连接配置
// Enabled 为 false 时使用进程内存储（单实例部署）
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`      // 是否启用 Redis
	Host        string        `mapstructure:"host"`         // Redis 主机地址
	Port        int           `mapstructure:"port"`         // Redis 端口
	Username    string        `mapstructure:"username"`     // Redis 用户名
	Password    string        `mapstructure:"password"`     // Redis 密码
	DB          int           `mapstructure:"db"`           // 数据库索引 (0-15)
	PoolSize    int           `mapstructure:"pool_size"`    // 连接池大小
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"` // 会话快照缓存时间
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`         // JWT 签名密钥，至少32字符
	AccessExpire  time.Duration `mapstructure:"access_expire"`  // Access Token 过期时间
	RefreshExpire time.Duration `mapstructure:"refresh_expire"` // Refresh Token 过期时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别: debug/info/warn/error
	Format     string `mapstructure:"format"`       // 日志格式: json/console
	File       string `mapstructure:"file"`         // 日志文件，为空不写文件
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
}

// AIConfig 模型服务配置
type AIConfig struct {
	Provider          string        `mapstructure:"provider"`            // dashscope / gemini / ollama
	Model             string        `mapstructure:"model"`               // 模型名称，为空使用各后端默认值
	QwenAPIKey        string        `mapstructure:"qwen_api_key"`        // DashScope API Key
	GeminiAPIKey      string        `mapstructure:"gemini_api_key"`      // Gemini API Key
	Endpoint          string        `mapstructure:"endpoint"`            // 自定义接口地址（DashScope / Ollama）
	Timeout           time.Duration `mapstructure:"timeout"`             // HTTP 超时
	RequestsPerMinute int           `mapstructure:"requests_per_minute"` // 本地限流，0 表示不限
	Burst             int           `mapstructure:"burst"`               // 限流突发量
}

// CatalogConfig 配件目录配置
type CatalogConfig struct {
	Source      string `mapstructure:"source"`       // db / yaml
	SeedFile    string `mapstructure:"seed_file"`    // YAML 目录文件，db 模式下用于初始化
	SampleCap   int    `mapstructure:"sample_cap"`   // 没有预算时的候选上限
	PerCategory int    `mapstructure:"per_category"` // 有预算时每类保留数量
}

// EnrichmentConfig 位置/气候补全配置
type EnrichmentConfig struct {
	Enabled    bool          `mapstructure:"enabled"`     // 是否启用
	GeoURL     string        `mapstructure:"geo_url"`     // IP 定位接口
	ClimateURL string        `mapstructure:"climate_url"` // 历史气候接口
	Timeout    time.Duration `mapstructure:"timeout"`     // 单次请求超时
}

// Load 从指定路径加载配置文件
// 支持环境变量覆盖配置项
// 参数:
//   - configPath: 配置文件目录路径 (如 "./configs")
//
// 返回:
//   - *Config: 配置对象
//   - error: 如果加载失败则返回错误
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// 启用环境变量
	// 将配置中的 . 映射到环境变量的 _，例如: database.host -> DATABASE_HOST
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	// 读取配置文件（如果不存在则使用默认值和环境变量）
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.AI.Provider {
	case "dashscope", "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported ai provider %q", c.AI.Provider)
	}
	switch c.Catalog.Source {
	case "db", "yaml":
	default:
		return fmt.Errorf("unsupported catalog source %q", c.Catalog.Source)
	}
	if c.Catalog.Source == "yaml" && c.Catalog.SeedFile == "" {
		return fmt.Errorf("catalog.seed_file is required for yaml source")
	}
	return nil
}

// bindEnvVariables 绑定环境变量到配置项
func bindEnvVariables(v *viper.Viper) {
	// 服务器配置
	v.BindEnv("server.port", "SERVER_PORT", "PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// 数据库配置，兼容旧的 MYSQL_* 变量
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_DSN", "DATABASE_URL")
	v.BindEnv("database.host", "DATABASE_HOST", "MYSQL_HOST")
	v.BindEnv("database.port", "DATABASE_PORT", "MYSQL_PORT")
	v.BindEnv("database.username", "DATABASE_USERNAME", "MYSQL_USERNAME")
	v.BindEnv("database.password", "DATABASE_PASSWORD", "MYSQL_PASSWORD")
	v.BindEnv("database.database", "DATABASE_NAME", "MYSQL_DATABASE")

	// Redis 配置
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT 配置
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// 日志配置
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.file", "LOG_FILE")

	// 模型服务配置
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ai.qwen_api_key", "QWEN_API_KEY", "AI_API_KEY")
	v.BindEnv("ai.gemini_api_key", "GEMINI_API_KEY")
	v.BindEnv("ai.endpoint", "AI_ENDPOINT", "OLLAMA_HOST")

	// 目录配置
	v.BindEnv("catalog.source", "CATALOG_SOURCE")
	v.BindEnv("catalog.seed_file", "CATALOG_SEED_FILE")
}

// setDefaults 设置配置项的默认值
// 当配置文件中没有指定某个值时，将使用这里设置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.turn_timeout", "60s")
	v.SetDefault("server.rate_limit", 30)

	// 数据库默认配置
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "pcbuild")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_lifetime", 3600)

	// Redis 默认配置
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.snapshot_ttl", "24h")

	// JWT 默认配置
	v.SetDefault("jwt.access_expire", "24h")
	v.SetDefault("jwt.refresh_expire", "168h")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	// 模型服务默认配置
	v.SetDefault("ai.provider", "dashscope")
	v.SetDefault("ai.timeout", "45s")
	v.SetDefault("ai.requests_per_minute", 20)
	v.SetDefault("ai.burst", 5)

	// 目录默认配置
	v.SetDefault("catalog.source", "db")
	v.SetDefault("catalog.seed_file", "./configs/catalog.yaml")
	v.SetDefault("catalog.sample_cap", 160)
	v.SetDefault("catalog.per_category", 20)

	// 补全默认配置
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.geo_url", "http://ip-api.com/json")
	v.SetDefault("enrichment.climate_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("enrichment.timeout", "5s")
}
