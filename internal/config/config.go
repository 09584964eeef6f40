package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App       AppConfig       `json:"app"`
	MySQL     MySQLConfig     `json:"mysql"`
	Redis     RedisConfig     `json:"redis"`
	Embedding EmbeddingConfig `json:"embedding"`
	Email     EmailConfig     `json:"email"`
	Security  SecurityConfig  `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env                 string  `json:"env"`                  // 运行环境: local / prod
	LogLevel            string  `json:"log_level"`            // 日志级别: debug / info / warn / error
	HTTPAddr            string  `json:"http_addr"`            // API 服务监听地址
	MaxRecommendations  int     `json:"max_recommendations"`  // 推荐结果截断数
	SimilarityThreshold float64 `json:"similarity_threshold"` // 图搜相似度下限
	SeedDemoData        bool    `json:"seed_demo_data"`       // 启动时写入演示数据
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)
	Password string `json:"password"` // Redis 密码
}

// EmbeddingConfig 向量服务与回填配置。
type EmbeddingConfig struct {
	BaseURL          string        `json:"base_url"`          // 向量服务地址
	APIToken         string        `json:"api_token"`         // 向量服务令牌
	ModelVersion     string        `json:"model_version"`     // 模型版本标识
	PollInterval     time.Duration `json:"poll_interval"`     // 预测结果轮询间隔
	PollTimeout      time.Duration `json:"poll_timeout"`      // 单次向量计算的总超时
	RateLimit        float64       `json:"rate_limit"`        // 对向量服务的限流速率（token/s）
	RateBurst        float64       `json:"rate_burst"`        // 限流桶容量
	CacheTTL         time.Duration `json:"cache_ttl"`         // 单图向量缓存有效期
	BackfillInterval time.Duration `json:"backfill_interval"` // 回填扫描间隔
	BackfillBatch    int           `json:"backfill_batch"`    // 每轮扫描入队的最大商品数
	WorkerPoolSize   int           `json:"worker_pool_size"`  // 回填 worker 数
	QueueCapacity    int           `json:"queue_capacity"`    // 内存队列容量
	RescueInterval   time.Duration `json:"rescue_interval"`   // 滞留任务巡检间隔
	RescueTimeout    time.Duration `json:"rescue_timeout"`    // 任务滞留多久视为需要救回
}

// EmailConfig 邮件通知配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret       string        `json:"jwt_secret"`       // JWT 签名密钥
	PresenceTimeout time.Duration `json:"presence_timeout"` // 用户在线状态 TTL
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值；
// 环境变量始终优先覆盖文件内容。
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:                 "local",
			LogLevel:            "info",
			HTTPAddr:            ":8081",
			MaxRecommendations:  100,
			SimilarityThreshold: 0.65,
			SeedDemoData:        true,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/flipper?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Embedding: EmbeddingConfig{
			BaseURL:          "https://api.replicate.com/v1",
			APIToken:         "",
			ModelVersion:     "1c0371070cb827ec3c7f2f28adcdde54b50dcd239aa6faea0bc98b174ef03fb4",
			PollInterval:     time.Second,
			PollTimeout:      2 * time.Minute,
			RateLimit:        3,
			RateBurst:        5,
			CacheTTL:         24 * time.Hour,
			BackfillInterval: 5 * time.Minute,
			BackfillBatch:    100,
			WorkerPoolSize:   4,
			QueueCapacity:    256,
			RescueInterval:   10 * time.Minute,
			RescueTimeout:    30 * time.Minute,
		},
		Email: EmailConfig{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  "",
			SMTPPass:  "",
			FromEmail: "",
		},
		Security: SecurityConfig{
			JWTSecret:       "dev_secret_change_me",
			PresenceTimeout: 10 * time.Minute,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MaxRecommendations <= 0 {
		cfg.App.MaxRecommendations = defaults.App.MaxRecommendations
	}
	if cfg.App.SimilarityThreshold <= 0 {
		cfg.App.SimilarityThreshold = defaults.App.SimilarityThreshold
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = defaults.Embedding.BaseURL
	}
	if cfg.Embedding.ModelVersion == "" {
		cfg.Embedding.ModelVersion = defaults.Embedding.ModelVersion
	}
	if cfg.Embedding.PollInterval <= 0 {
		cfg.Embedding.PollInterval = defaults.Embedding.PollInterval
	}
	if cfg.Embedding.PollTimeout <= 0 {
		cfg.Embedding.PollTimeout = defaults.Embedding.PollTimeout
	}
	if cfg.Embedding.RateLimit <= 0 {
		cfg.Embedding.RateLimit = defaults.Embedding.RateLimit
	}
	if cfg.Embedding.RateBurst <= 0 {
		cfg.Embedding.RateBurst = defaults.Embedding.RateBurst
	}
	if cfg.Embedding.CacheTTL <= 0 {
		cfg.Embedding.CacheTTL = defaults.Embedding.CacheTTL
	}
	if cfg.Embedding.BackfillInterval <= 0 {
		cfg.Embedding.BackfillInterval = defaults.Embedding.BackfillInterval
	}
	if cfg.Embedding.BackfillBatch <= 0 {
		cfg.Embedding.BackfillBatch = defaults.Embedding.BackfillBatch
	}
	if cfg.Embedding.WorkerPoolSize <= 0 {
		cfg.Embedding.WorkerPoolSize = defaults.Embedding.WorkerPoolSize
	}
	if cfg.Embedding.QueueCapacity <= 0 {
		cfg.Embedding.QueueCapacity = defaults.Embedding.QueueCapacity
	}
	if cfg.Embedding.RescueInterval <= 0 {
		cfg.Embedding.RescueInterval = defaults.Embedding.RescueInterval
	}
	if cfg.Embedding.RescueTimeout <= 0 {
		cfg.Embedding.RescueTimeout = defaults.Embedding.RescueTimeout
	}
	if cfg.Email.SMTPHost == "" {
		cfg.Email.SMTPHost = defaults.Email.SMTPHost
	}
	if cfg.Email.SMTPPort <= 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.PresenceTimeout <= 0 {
		cfg.Security.PresenceTimeout = defaults.Security.PresenceTimeout
	}
}

// applyEnvOverrides 用环境变量覆盖配置（部署时优先于配置文件）。
func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("replicate_api_token", "REPLICATE_API_TOKEN")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("http_addr", "HTTP_ADDR")

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := viper.GetString("replicate_api_token"); v != "" {
		cfg.Embedding.APIToken = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := viper.GetString("http_addr"); v != "" {
		cfg.App.HTTPAddr = v
	}
}
