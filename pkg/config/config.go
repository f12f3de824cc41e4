package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Naming        NamingConfig        `mapstructure:"naming"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Export        ExportConfig        `mapstructure:"export"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Server        ServerConfig        `mapstructure:"server"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	APIKey    string   `mapstructure:"api_key"`
	Timeout   int      `mapstructure:"timeout"` // seconds
}

type NamingConfig struct {
	Root        string   `mapstructure:"root"`
	GeoDocTypes []string `mapstructure:"geo_doc_types"`
}

type IngestConfig struct {
	ChunkSize       int     `mapstructure:"chunk_size"`
	Concurrency     int     `mapstructure:"concurrency"`
	BulkRate        float64 `mapstructure:"bulk_rate"` // bulk requests per second, 0 disables
	Pipeline        string  `mapstructure:"pipeline"`
	InstallPipeline bool    `mapstructure:"install_pipeline"`
}

type ExportConfig struct {
	PageSize  int    `mapstructure:"page_size"`
	KeepAlive string `mapstructure:"keep_alive"`
}

type ResilienceConfig struct {
	BreakerMaxRequests  uint32  `mapstructure:"breaker_max_requests"`
	BreakerInterval     int     `mapstructure:"breaker_interval"` // seconds
	BreakerTimeout      int     `mapstructure:"breaker_timeout"`  // seconds
	BreakerFailureRatio float64 `mapstructure:"breaker_failure_ratio"`
	BreakerMinRequests  uint32  `mapstructure:"breaker_min_requests"`
	RetryAttempts       int     `mapstructure:"retry_attempts"`
	RetryInitialDelay   int     `mapstructure:"retry_initial_delay"` // milliseconds
	RetryMaxDelay       int     `mapstructure:"retry_max_delay"`     // milliseconds
}

type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`

	// ScanRate limits document scans per second and client, 0 disables.
	ScanRate  float64 `mapstructure:"scan_rate"`
	ScanBurst int     `mapstructure:"scan_burst"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topic         string   `mapstructure:"topic"`
	// EventsTopic receives publication events, empty disables them.
	EventsTopic   string   `mapstructure:"events_topic"`
}

// RedisConfig locates the Redis holding dataset import locks. An empty
// address disables locking.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	LockTTL  int    `mapstructure:"lock_ttl"` // seconds
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads <serviceName>.yaml from ./configs or /etc/mimir. A missing file
// is not an error: defaults and MIMIR_* environment variables apply.
func Load(serviceName string) (*Config, error) {
	v := newViper()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/mimir")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFile reads an explicit configuration file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MIMIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(v, &config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Elasticsearch defaults
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.timeout", 30)

	// Naming defaults
	v.SetDefault("naming.root", "munin")
	v.SetDefault("naming.geo_doc_types", []string{"addr", "street", "admin", "poi"})

	// Ingest defaults
	v.SetDefault("ingest.chunk_size", 10)
	v.SetDefault("ingest.concurrency", 8)
	v.SetDefault("ingest.bulk_rate", 0)
	v.SetDefault("ingest.pipeline", "indexed_at")
	v.SetDefault("ingest.install_pipeline", true)

	// Export defaults
	v.SetDefault("export.page_size", 1000)
	v.SetDefault("export.keep_alive", "1m")

	// Resilience defaults
	v.SetDefault("resilience.breaker_max_requests", 3)
	v.SetDefault("resilience.breaker_interval", 30)
	v.SetDefault("resilience.breaker_timeout", 30)
	v.SetDefault("resilience.breaker_failure_ratio", 0.5)
	v.SetDefault("resilience.breaker_min_requests", 10)
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_initial_delay", 100)
	v.SetDefault("resilience.retry_max_delay", 5000)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 30)
	v.SetDefault("server.scan_rate", 0.2)
	v.SetDefault("server.scan_burst", 2)

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "mimir-import")

	// Redis defaults
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.lock_ttl", 60)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "mimir")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(v *viper.Viper, cfg *Config) {
	// Lists cannot be expressed through AutomaticEnv, they are comma separated here.
	if addrs := v.GetString("ELASTICSEARCH_URLS"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
}

// Validate rejects settings the storage layer cannot run with.
func (c *Config) Validate() error {
	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch.addresses must not be empty")
	}
	if c.Naming.Root == "" {
		return fmt.Errorf("naming.root must not be empty")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	if c.Export.PageSize <= 0 {
		return fmt.Errorf("export.page_size must be positive, got %d", c.Export.PageSize)
	}
	return nil
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
