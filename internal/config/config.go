package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Business  BusinessConfig  `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ConvergenceEvents string `mapstructure:"convergence_events"`
}

// WebhookConfig holds the signature-verification parameters for C2 and the
// processing lease duration for C4.
type WebhookConfig struct {
	SigningSecret             string `mapstructure:"signing_secret"`
	TimestampToleranceSeconds int    `mapstructure:"timestamp_tolerance_seconds"`
	DedupeLeaseSeconds        int    `mapstructure:"dedupe_lease_seconds"`
}

// ReconcileConfig holds the defaults for C8's pagination and the periodic
// background job.
type ReconcileConfig struct {
	DefaultWindowHours  int `mapstructure:"default_window_hours"`
	DefaultPageLimit    int `mapstructure:"default_page_limit"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

// BusinessConfig carries operational kill switches and retry tuning.
type BusinessConfig struct {
	MaxRetryCount   int             `mapstructure:"max_retry_count"`
	DisabledModules map[string]bool `mapstructure:"disabled_modules"`
}

var GlobalConfig *Config

// LoadConfig reads and unmarshals the YAML config at configPath.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	applyDefaults(cfg)

	GlobalConfig = cfg
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Webhook.TimestampToleranceSeconds == 0 {
		cfg.Webhook.TimestampToleranceSeconds = 300
	}
	if cfg.Webhook.DedupeLeaseSeconds == 0 {
		cfg.Webhook.DedupeLeaseSeconds = 300
	}
	if cfg.Reconcile.DefaultWindowHours == 0 {
		cfg.Reconcile.DefaultWindowHours = 30 * 24
	}
	if cfg.Reconcile.DefaultPageLimit == 0 {
		cfg.Reconcile.DefaultPageLimit = 100
	}
	if cfg.Business.DisabledModules == nil {
		cfg.Business.DisabledModules = map[string]bool{}
	}
}
