package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/acme/lead-contact-engine/internal/service/priority"
)

// Config captures the full configuration surface for the engine.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Priority  priority.Config `mapstructure:"priority"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// Enabled reports whether a postgres lead directory is configured.
func (c PostgresConfig) Enabled() bool { return c.Host != "" }

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a scylla attempt store is configured.
func (c ScyllaConfig) Enabled() bool { return len(c.Hosts) > 0 }

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	OutcomeTopic string        `mapstructure:"outcome_topic"`
	PassTopic    string        `mapstructure:"pass_topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Enabled reports whether outcomes are published to kafka.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Enabled reports whether in-flight counters are shared through redis.
func (c RedisConfig) Enabled() bool { return c.Address != "" }

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Cron         string        `mapstructure:"cron"`
	MaxBatchSize int           `mapstructure:"max_batch_size"`
	Embedded     bool          `mapstructure:"embedded"`
}

type DispatchConfig struct {
	Workers     int           `mapstructure:"workers"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	InFlightTTL time.Duration `mapstructure:"in_flight_ttl"`
}

type RulesConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type ChannelsConfig struct {
	PhoneRegion string         `mapstructure:"phone_region"`
	WhatsApp    WhatsAppConfig `mapstructure:"whatsapp"`
	SMTP        SMTPConfig     `mapstructure:"smtp"`
	Voice       VoiceConfig    `mapstructure:"voice"`
}

type WhatsAppConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DeviceID string        `mapstructure:"device_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the message channel has a gateway.
func (c WhatsAppConfig) Enabled() bool { return c.BaseURL != "" }

type SMTPConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	Subject   string        `mapstructure:"subject"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether the email channel has a relay.
func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type VoiceConfig struct {
	ProviderName   string        `mapstructure:"provider_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SuccessRate    float64       `mapstructure:"success_rate"`
	MinLatency     time.Duration `mapstructure:"min_latency"`
	MaxLatency     time.Duration `mapstructure:"max_latency"`
	Seed           int64         `mapstructure:"seed"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("LEADENGINE")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "lead-contact-engine")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.max_batch_size", 1000)
	v.SetDefault("dispatch.workers", 8)
	v.SetDefault("dispatch.max_wait", 30*time.Second)
	v.SetDefault("dispatch.in_flight_ttl", 5*time.Minute)
	v.SetDefault("rules.path", "data/rules.json")
	v.SetDefault("channels.phone_region", "BR")
	v.SetDefault("channels.voice.success_rate", 0.6)
	v.SetDefault("channels.voice.request_timeout", 10*time.Second)
	v.SetDefault("redis.key_prefix", "leadengine")
	v.SetDefault("kafka.outcome_topic", "lead-contact.outcomes")
	v.SetDefault("kafka.pass_topic", "lead-contact.passes")
	v.SetDefault("telemetry.shutdown_timeout", 5*time.Second)
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}
