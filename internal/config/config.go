package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Queue    QueueConfig    `mapstructure:"queue"`
	Search   SearchConfig   `mapstructure:"search"`
	Records  RecordsConfig  `mapstructure:"records"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
}

// QueueConfig holds SQS and fulfillment loop configuration.
type QueueConfig struct {
	URL               string        `mapstructure:"url"`
	DLQURL            string        `mapstructure:"dlq_url"`
	Region            string        `mapstructure:"region"`
	Endpoint          string        `mapstructure:"endpoint"`
	WaitTime          time.Duration `mapstructure:"wait_time"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxMessages       int32         `mapstructure:"max_messages"`
	Pollers           int           `mapstructure:"pollers"`
	Concurrency       int           `mapstructure:"concurrency"`
	ProcessTimeout    time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// MaxReceives is the receive count at which an unfulfilled request is
	// moved to the DLQ. Zero disables the policy.
	MaxReceives int `mapstructure:"max_receives"`
}

// SearchConfig holds OpenSearch configuration.
type SearchConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Index         string        `mapstructure:"index"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Size          int           `mapstructure:"size"`
	CategoryField string        `mapstructure:"category_field"`
	IDField       string        `mapstructure:"id_field"`
}

// RecordsConfig selects and configures the record store backend.
type RecordsConfig struct {
	Backend      string `mapstructure:"backend"` // dynamodb (default) or postgres
	Table        string `mapstructure:"table"`
	KeyAttribute string `mapstructure:"key_attribute"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
}

// CacheConfig configures the read-through cache in front of the record store.
type CacheConfig struct {
	Type          string        `mapstructure:"type"` // none (default), memory, redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
	Size          int           `mapstructure:"size"`
}

// NotifyConfig configures the notification sender.
type NotifyConfig struct {
	Provider     string `mapstructure:"provider"` // ses (default), smtp, stdout
	Sender       string `mapstructure:"sender"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	SMTPAddr     string `mapstructure:"smtp_addr"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

// DatabaseConfig holds PostgreSQL connection configuration. An empty URL
// disables the fulfillment ledger.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"` // stdout (default), file, console
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// MetricsConfig holds the Prometheus listener address for the worker.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// APIConfig holds intake API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory; a missing file
// is not an error so deployments can configure purely through the
// environment. Environment variables with prefix DINING_CONCIERGE_ override
// file values. For example, DINING_CONCIERGE_QUEUE_URL overrides queue.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("DINING_CONCIERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// The search credentials also honour the variable names the index was
	// originally provisioned with.
	if err := v.BindEnv("search.username", "DINING_CONCIERGE_SEARCH_USERNAME", "ELASTICSEARCH_USERNAME"); err != nil {
		return nil, fmt.Errorf("bind search username: %w", err)
	}
	if err := v.BindEnv("search.password", "DINING_CONCIERGE_SEARCH_PASSWORD", "ELASTICSEARCH_PASSWORD"); err != nil {
		return nil, fmt.Errorf("bind search password: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.dlq_url", "")
	v.SetDefault("queue.region", "us-east-1")
	v.SetDefault("queue.endpoint", "")
	v.SetDefault("queue.wait_time", 20*time.Second)
	v.SetDefault("queue.visibility_timeout", 30*time.Second)
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("queue.pollers", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.process_timeout", 30*time.Second)
	v.SetDefault("queue.shutdown_timeout", 30*time.Second)
	v.SetDefault("queue.max_receives", 5)

	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.index", "restaurants")
	v.SetDefault("search.username", "")
	v.SetDefault("search.password", "")
	v.SetDefault("search.timeout", 5*time.Second)
	v.SetDefault("search.size", 3)
	v.SetDefault("search.category_field", "Cuisine")
	v.SetDefault("search.id_field", "RestaurantID")

	v.SetDefault("records.backend", "dynamodb")
	v.SetDefault("records.table", "yelp-restaurants")
	v.SetDefault("records.key_attribute", "businessId")
	v.SetDefault("records.region", "us-east-1")
	v.SetDefault("records.endpoint", "")

	v.SetDefault("cache.type", "none")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.size", 1000)

	v.SetDefault("notify.provider", "ses")
	v.SetDefault("notify.sender", "")
	v.SetDefault("notify.region", "us-east-1")
	v.SetDefault("notify.endpoint", "")
	v.SetDefault("notify.smtp_addr", "")
	v.SetDefault("notify.smtp_username", "")
	v.SetDefault("notify.smtp_password", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min", 1)
	v.SetDefault("database.pool_max", 5)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
}

// ValidateWorker reports every setting the fulfillment worker cannot start
// without. Missing search credentials are a startup error rather than a
// per-request failure.
func (c *Config) ValidateWorker() error {
	var errs []error

	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.Queue.MaxReceives > 0 && c.Queue.DLQURL == "" {
		// The receive threshold only has an effect with a DLQ; not an error.
		c.Queue.MaxReceives = 0
	}
	if c.Queue.ProcessTimeout <= 0 {
		errs = append(errs, errors.New("queue.process_timeout must be positive"))
	}

	errs = append(errs, c.validateSearch()...)

	switch c.Records.Backend {
	case "dynamodb", "":
		if c.Records.Table == "" {
			errs = append(errs, errors.New("records.table is required for the dynamodb backend"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres records backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("records.backend %q is not supported", c.Records.Backend))
	}

	switch c.Cache.Type {
	case "none", "", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type %q is not supported", c.Cache.Type))
	}

	switch c.Notify.Provider {
	case "ses", "":
		if c.Notify.Sender == "" {
			errs = append(errs, errors.New("notify.sender is required"))
		}
	case "smtp":
		if c.Notify.Sender == "" {
			errs = append(errs, errors.New("notify.sender is required"))
		}
		if c.Notify.SMTPAddr == "" {
			errs = append(errs, errors.New("notify.smtp_addr is required for the smtp provider"))
		}
	case "stdout":
	default:
		errs = append(errs, fmt.Errorf("notify.provider %q is not supported", c.Notify.Provider))
	}

	return errors.Join(errs...)
}

// ValidateIntake reports settings the intake API cannot start without.
func (c *Config) ValidateIntake() error {
	var errs []error
	if c.Queue.URL == "" {
		errs = append(errs, errors.New("queue.url is required"))
	}
	if c.API.Port <= 0 {
		errs = append(errs, errors.New("api.port must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateLoader reports settings the index loader cannot start without.
func (c *Config) ValidateLoader() error {
	return errors.Join(c.validateSearch()...)
}

func (c *Config) validateSearch() []error {
	var errs []error
	if c.Search.Endpoint == "" {
		errs = append(errs, errors.New("search.endpoint is required"))
	}
	if c.Search.Username == "" || c.Search.Password == "" {
		errs = append(errs, errors.New("search credentials are missing: set search.username and search.password"))
	}
	if c.Search.Index == "" {
		errs = append(errs, errors.New("search.index is required"))
	}
	return errs
}
