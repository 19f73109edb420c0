package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Share     ShareConfig     `mapstructure:"share"`
	Log       LogConfig       `mapstructure:"log"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Client    ClientConfig    `mapstructure:"client"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// 对外可访问的地址，用于拼接分享链接和本地存储的上传地址
	BaseURL         string        `mapstructure:"base_url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// mysql / postgres / sqlite
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type StorageConfig struct {
	// s3 (兼容R2/MinIO) 或 local
	Backend string `mapstructure:"backend"`

	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`

	LocalDir    string `mapstructure:"local_dir"`
	SigningKey  string `mapstructure:"signing_key"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

type ShareConfig struct {
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
	SecretCost int           `mapstructure:"secret_cost"`
	// 创建分享接口的限流
	CreateRatePerMinute int `mapstructure:"create_rate_per_minute"`
	CreateBurst         int `mapstructure:"create_burst"`
}

type LogConfig struct {
	Level          string `mapstructure:"level"`
	ProductionMode bool   `mapstructure:"production_mode"`
}

type MessagingConfig struct {
	// channel: 单实例进程内广播; kafka: 多实例通过Kafka广播
	Provider string      `mapstructure:"provider"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type ClientConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	StorageDir     string        `mapstructure:"storage_dir"`
	StateFile      string        `mapstructure:"state_file"`
	SyncDebounce   time.Duration `mapstructure:"sync_debounce"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Notify         bool          `mapstructure:"notify"`
	Clipboard      bool          `mapstructure:"clipboard"`
}

var GlobalConfig Config

// 环境变量前缀，例如 BETTER_SHARE_CLIENT_API_URL
const EnvPrefix = "BETTER_SHARE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/shares.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.local_dir", "./data/objects")
	v.SetDefault("storage.signing_key", "")
	v.SetDefault("storage.max_upload_mb", 50)

	v.SetDefault("share.presign_ttl", time.Hour)
	v.SetDefault("share.secret_cost", 10)
	v.SetDefault("share.create_rate_per_minute", 30)
	v.SetDefault("share.create_burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.production_mode", false)

	v.SetDefault("messaging.provider", "channel")
	v.SetDefault("messaging.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("messaging.kafka.topic_prefix", "better_share")
	v.SetDefault("messaging.kafka.consumer_group", "better-share")

	v.SetDefault("client.api_url", "https://opncd.com")
	v.SetDefault("client.storage_dir", "")
	v.SetDefault("client.state_file", "")
	v.SetDefault("client.sync_debounce", time.Second)
	v.SetDefault("client.request_timeout", 30*time.Second)
	v.SetDefault("client.notify", true)
	v.SetDefault("client.clipboard", true)
}

// Load 读取配置文件(可选)并叠加环境变量。path为空时在默认目录中查找config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "better-share"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// 没有配置文件时只使用默认值和环境变量
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Init 加载配置到GlobalConfig
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	GlobalConfig = *cfg
	return nil
}
