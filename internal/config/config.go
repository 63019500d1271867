package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"splitpay/internal/split"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
	Split    SplitConfig    `mapstructure:"split"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" validate:"gt=0,lt=65536"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host" validate:"required"`
	Port         int    `mapstructure:"port" validate:"gt=0"`
	User         string `mapstructure:"user" validate:"required"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers" validate:"min=1,dive,required"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	PaymentStatus string `mapstructure:"payment_status" validate:"required"`
}

type BusinessConfig struct {
	MaxRetryCount       int `mapstructure:"max_retry_count" validate:"gt=0"`
	SyncIntervalSeconds int `mapstructure:"sync_interval_seconds" validate:"gt=0"`
	SyncStaleMinutes    int `mapstructure:"sync_stale_minutes" validate:"gt=0"`
	SyncBatchSize       int `mapstructure:"sync_batch_size" validate:"gt=0"`
}

// SplitConfig 平台费率，fee_percentage 使用小数字符串避免浮点误差，例如 "0.10"
type SplitConfig struct {
	FeePercentage       string `mapstructure:"fee_percentage" validate:"required"`
	FixedFee            int64  `mapstructure:"fixed_fee" validate:"gte=0"`
	PlatformRecipientID string `mapstructure:"platform_recipient_id" validate:"required"`
}

type GatewayConfig struct {
	BaseURL          string `mapstructure:"base_url" validate:"required,url"`
	APIKey           string `mapstructure:"api_key" validate:"required"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	RetryCount       int    `mapstructure:"retry_count" validate:"gte=0"`
	PixExpiresIn     int    `mapstructure:"pix_expires_in" validate:"gt=0"`
	BoletoDueDays    int    `mapstructure:"boleto_due_days" validate:"gt=0"`
	PhoneCountryCode string `mapstructure:"phone_country_code" validate:"required,numeric"`
}

type WebhookConfig struct {
	Secret          string `mapstructure:"secret"`
	Workers         int    `mapstructure:"workers" validate:"gt=0"`
	QueueSize       int    `mapstructure:"queue_size" validate:"gt=0"`
	DedupTTLMinutes int    `mapstructure:"dedup_ttl_minutes" validate:"gte=0"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Console bool   `mapstructure:"console"`
}

func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WebhookConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMinutes) * time.Minute
}

func (c BusinessConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c BusinessConfig) SyncStaleAfter() time.Duration {
	return time.Duration(c.SyncStaleMinutes) * time.Minute
}

// FeeConfig 构造分账计算所需的费率配置
func (c *Config) FeeConfig() (split.FeeConfig, error) {
	pct, err := decimal.NewFromString(c.Split.FeePercentage)
	if err != nil {
		return split.FeeConfig{}, fmt.Errorf("%w: fee_percentage=%q", split.ErrInvalidConfiguration, c.Split.FeePercentage)
	}
	fee := split.FeeConfig{
		Percentage:          pct,
		FixedFee:            c.Split.FixedFee,
		PlatformRecipientID: c.Split.PlatformRecipientID,
	}
	return fee, fee.Validate()
}

// Validate 启动时校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if _, err := c.FeeConfig(); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("kafka.topic.payment_status", "payment_status")
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.sync_interval_seconds", 60)
	v.SetDefault("business.sync_stale_minutes", 15)
	v.SetDefault("business.sync_batch_size", 50)
	v.SetDefault("split.fee_percentage", "0.10")
	v.SetDefault("split.fixed_fee", 100)
	v.SetDefault("gateway.base_url", "https://api.pagar.me/core/v5")
	v.SetDefault("gateway.timeout_seconds", 30)
	v.SetDefault("gateway.retry_count", 2)
	v.SetDefault("gateway.pix_expires_in", 3600)
	v.SetDefault("gateway.boleto_due_days", 3)
	v.SetDefault("gateway.phone_country_code", "55")
	v.SetDefault("webhook.workers", 4)
	v.SetDefault("webhook.queue_size", 256)
	v.SetDefault("webhook.dedup_ttl_minutes", 1440)
	v.SetDefault("log.level", "info")
}

// envKeys 需要允许环境变量覆盖的配置项（viper.Unmarshal 只认识已知 key）
var envKeys = []string{
	"mysql.host", "mysql.port", "mysql.user", "mysql.password", "mysql.database",
	"redis.host", "redis.port", "redis.password",
	"split.fee_percentage", "split.fixed_fee", "split.platform_recipient_id",
	"gateway.base_url", "gateway.api_key",
	"webhook.secret",
	"log.level",
}

// LoadConfig 加载配置文件
// 优先级：环境变量（SPLITPAY_ 前缀）> 配置文件 > 默认值；本地开发可放一个 .env
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SPLITPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
