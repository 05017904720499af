package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"deadornot"`

	// 打卡记录存储：redis, postgres, sqlite, memory
	LedgerDriver string `env:"LEDGER_DRIVER" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/deadornot.db"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"deadornot"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"5"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"20"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"dead"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// 通知投递：local 进程内定时器，mq 走 RabbitMQ 延迟交换机 + worker
	NotificationSink string        `env:"NOTIFICATION_SINK" envDefault:"local"`
	MQMaxDelay       time.Duration `env:"MQ_MAX_DELAY" envDefault:"24h"` // 单跳最大延迟，超过则分段投递
	SinkTimeout      time.Duration `env:"SINK_TIMEOUT" envDefault:"3s"`

	// 未打卡提醒配置
	ReminderGraceDays    int           `env:"REMINDER_GRACE_DAYS" envDefault:"3"`
	ReminderAt           string        `env:"REMINDER_AT" envDefault:"09:00"`
	ReminderIdentifier   string        `env:"REMINDER_IDENTIFIER" envDefault:"DeadOrNot_Missed3Days"`
	ReminderPastDueDelay time.Duration `env:"REMINDER_PAST_DUE_DELAY" envDefault:"5s"`
	ReminderTitle        string        `env:"REMINDER_TITLE" envDefault:"连续未打卡提醒"`
	ReminderBody         string        `env:"REMINDER_BODY"` // 为空时按宽限天数生成

	// 时区，空或 Local 表示跟随系统（每次调用时读取 TZ）
	Timezone string `env:"TIMEZONE" envDefault:""`

	// JWT 配置，未设置时不启用设备鉴权（本机模式）
	JWTSecret        string `env:"JWT_SECRET"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"43200"`

	// 短信投递配置
	// AccessKey 通过阿里云 SDK 的环境变量自动获取：ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET
	Notifier        string `env:"NOTIFIER" envDefault:"log"`        // log, sms
	SMSProvider     string `env:"SMS_PROVIDER" envDefault:"aliyun"` // aliyun, mock
	SMSSignName     string `env:"SMS_SIGN_NAME"`
	SMSTemplateCode string `env:"SMS_TEMPLATE_CODE"`
	SMSPhone        string `env:"SMS_PHONE"` // 提醒接收手机号

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪/指标，endpoint 为空时不启用
	OTELEndpoint    string  `env:"OTEL_ENDPOINT" envDefault:""`
	OTELSampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"0.1"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}
	Cfg = cfg
}

// Load 从环境变量解析配置
func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 由各个进程在启动时调用，测试不会触发
func (c *Config) Validate() error {
	switch c.LedgerDriver {
	case "redis", "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported LEDGER_DRIVER: %s", c.LedgerDriver)
	}

	switch c.NotificationSink {
	case "local", "mq":
	default:
		return fmt.Errorf("unsupported NOTIFICATION_SINK: %s", c.NotificationSink)
	}

	if c.ReminderGraceDays < 0 {
		return fmt.Errorf("REMINDER_GRACE_DAYS must be >= 0, got %d", c.ReminderGraceDays)
	}

	if c.ReminderPastDueDelay < time.Second {
		log.Printf("WARN: REMINDER_PAST_DUE_DELAY %s is below 1s, it will be clamped", c.ReminderPastDueDelay)
	}

	if c.JWTSecret == "" {
		log.Printf("WARN: JWT_SECRET is not set, device authentication is disabled")
	}

	if c.Notifier == "sms" {
		if c.SMSSignName == "" || c.SMSTemplateCode == "" {
			log.Printf("WARN: SMS_SIGN_NAME or SMS_TEMPLATE_CODE is not set, SMS reminders may not work properly")
		}
		if c.SMSPhone == "" {
			return fmt.Errorf("SMS_PHONE is required when NOTIFIER=sms")
		}
	}

	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// NeedsRedis redis 同时服务于打卡存储与 mq 模式下的提醒标记
func (c *Config) NeedsRedis() bool {
	return c.LedgerDriver == "redis" || c.NotificationSink == "mq"
}

func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.JWTSecret) != ""
}
