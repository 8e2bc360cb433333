package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Reload policies for the destination registry.
const (
	ReloadAlways  = "always"
	ReloadStartup = "startup"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName          string `mapstructure:"app_name"`
	Env              string `mapstructure:"app_env"`
	LogLevel         string `mapstructure:"log_level"`
	ListenAddr       string `mapstructure:"listen_addr"`
	DestinationsFile string `mapstructure:"destinations_file"`
	ReloadPolicy     string `mapstructure:"config_reload"`

	ShutdownGraceSeconds int64         `mapstructure:"shutdown_grace_seconds"`
	ShutdownGrace        time.Duration `mapstructure:"-"`

	// Sink credentials. Empty values defer to the ambient provider chain.
	AWSRegion    string `mapstructure:"aws_region"`
	AWSAccessKey string `mapstructure:"aws_access_key_id"`
	AWSSecretKey string `mapstructure:"aws_secret_access_key"`
	GCPCredsFile string `mapstructure:"gcp_credentials_file"`

	// Ingest transports. A transport runs only when its URL/broker list is set;
	// the HTTP listener always runs.
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	AMQPURL   string `mapstructure:"amqp_url"`
	AMQPQueue string `mapstructure:"amqp_queue"`

	KafkaBrokersRaw string   `mapstructure:"kafka_brokers"`
	KafkaBrokers    []string `mapstructure:"-"`
	KafkaTopic      string   `mapstructure:"kafka_topic"`
	KafkaGroup      string   `mapstructure:"kafka_group"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "nimbus-event-forwarder")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("destinations_file", "./configs/destinations.yaml")
	v.SetDefault("config_reload", ReloadAlways)
	v.SetDefault("shutdown_grace_seconds", 15)
	v.SetDefault("aws_region", "")
	v.SetDefault("aws_access_key_id", "")
	v.SetDefault("aws_secret_access_key", "")
	v.SetDefault("gcp_credentials_file", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", "bucketevents")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_queue", "bucketevents")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "bucketevents")
	v.SetDefault("kafka_group", "nimbus-event-forwarder")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ReloadPolicy != ReloadAlways && cfg.ReloadPolicy != ReloadStartup {
		return nil, fmt.Errorf("invalid config_reload %q (must be %q or %q)", cfg.ReloadPolicy, ReloadAlways, ReloadStartup)
	}

	if cfg.ShutdownGraceSeconds <= 0 {
		return nil, fmt.Errorf("invalid shutdown_grace_seconds (must be positive seconds)")
	}
	cfg.ShutdownGrace = time.Duration(cfg.ShutdownGraceSeconds) * time.Second

	for _, b := range strings.Split(cfg.KafkaBrokersRaw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	return &cfg, nil
}
