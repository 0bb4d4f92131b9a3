package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/spaceai-audit-connector/internal/audit"
	"github.com/xela07ax/spaceai-audit-connector/internal/connectors"
	"github.com/xela07ax/spaceai-audit-connector/internal/httpaudit"
)

// Config — корневая структура конфигурации audit-relay.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auditing AuditingConfig `mapstructure:"auditing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// GET /v1/probe: выключен по умолчанию, ходит только на перечисленные хосты
	ProbeEnabled      bool     `mapstructure:"probe_enabled"`
	ProbeAllowedHosts []string `mapstructure:"probe_allowed_hosts"`
}

// AuditingConfig — выключатель, приемник datastream и параметры доставки.
type AuditingConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	AppName          string         `mapstructure:"app_name"`
	ExclusionPattern string         `mapstructure:"exclusion_pattern"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`

	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`

	// Настройки Circuit Breaker для datastream
	CBMaxRequests         uint32        `mapstructure:"cb_max_requests"`
	CBInterval            time.Duration `mapstructure:"cb_interval"`
	CBTimeout             time.Duration `mapstructure:"cb_timeout"`
	CBConsecutiveFailures uint32        `mapstructure:"cb_consecutive_failures"`
}

// ConsumerConfig — адрес приемника datastream.
type ConsumerConfig struct {
	Protocol       string `mapstructure:"protocol"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	SingleEventURI string `mapstructure:"single_event_uri"`
	MergedEventURI string `mapstructure:"merged_event_uri"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// AUDITING_ENABLED=false перекроет auditing.enabled
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if cfg.Auditing.Enabled && cfg.Auditing.AppName == "" {
		return nil, errors.New("auditing.app_name is required when auditing is enabled")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	// AutomaticEnv видит при Unmarshal только ключи, известные viper, поэтому дефолты есть у всех
	v.SetDefault("server.host", "")
	v.SetDefault("server.probe_enabled", false)
	v.SetDefault("server.probe_allowed_hosts", []string{})
	v.SetDefault("auditing.enabled", true)
	v.SetDefault("auditing.app_name", "")
	v.SetDefault("auditing.exclusion_pattern", "")
	v.SetDefault("auditing.cb_max_requests", 3)
	v.SetDefault("auditing.cb_interval", 5*time.Second)
	v.SetDefault("auditing.cb_timeout", 30*time.Second)
	v.SetDefault("auditing.cb_consecutive_failures", 5)
	v.SetDefault("auditing.consumer.protocol", connectors.DefaultProtocol)
	v.SetDefault("auditing.consumer.host", connectors.DefaultHost)
	v.SetDefault("auditing.consumer.port", connectors.DefaultPort)
	v.SetDefault("auditing.consumer.single_event_uri", connectors.DefaultSingleEventURI)
	v.SetDefault("auditing.consumer.merged_event_uri", connectors.DefaultMergedEventURI)
	v.SetDefault("auditing.connect_timeout", connectors.DefaultConnectTimeout)
	v.SetDefault("auditing.request_timeout", connectors.DefaultRequestTimeout)
	v.SetDefault("auditing.retry_attempts", 1)
	v.SetDefault("auditing.workers", 8)
	v.SetDefault("auditing.queue_size", 1000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// ConnectorConfig — параметры audit.Connector.
func (c AuditingConfig) ConnectorConfig() audit.Config {
	return audit.Config{
		Enabled:   c.Enabled,
		Workers:   c.Workers,
		QueueSize: c.QueueSize,
	}
}

// AuditorConfig — параметры httpaudit.Auditor.
func (c AuditingConfig) AuditorConfig() httpaudit.Config {
	return httpaudit.Config{
		AppName:          c.AppName,
		ExclusionPattern: c.ExclusionPattern,
	}
}

// SingleEventHandlerConfig — приемник simple и extended событий.
func (c AuditingConfig) SingleEventHandlerConfig() connectors.DatastreamConfig {
	return c.datastream("single", c.Consumer.SingleEventURI)
}

// MergedEventHandlerConfig — приемник merged событий.
func (c AuditingConfig) MergedEventHandlerConfig() connectors.DatastreamConfig {
	return c.datastream("merged", c.Consumer.MergedEventURI)
}

func (c AuditingConfig) datastream(name, path string) connectors.DatastreamConfig {
	return connectors.DatastreamConfig{
		Name:           name,
		Protocol:       c.Consumer.Protocol,
		Host:           c.Consumer.Host,
		Port:           c.Consumer.Port,
		Path:           path,
		ConnectTimeout: c.ConnectTimeout,
		RequestTimeout: c.RequestTimeout,
		RetryAttempts:  c.RetryAttempts,
		Breaker: connectors.BreakerConfig{
			MaxRequests:         c.CBMaxRequests,
			Interval:            c.CBInterval,
			Timeout:             c.CBTimeout,
			ConsecutiveFailures: c.CBConsecutiveFailures,
		},
	}
}
