package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration for a ledger worker
type Config struct {
	// Server Configuration
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`

	Database DatabaseConfig `mapstructure:"database"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Proofing ProofingConfig `mapstructure:"proofing"`
	Sensor   SensorConfig   `mapstructure:"sensor"`
	Verifier VerifierConfig `mapstructure:"verifier"`

	Footprint FootprintConfig `mapstructure:"footprint"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`

	ActivitiesOutputPath string `mapstructure:"activities_output_path"`
}

// DatabaseConfig selects the operator store. DSN wins over the discrete
// postgres fields when set.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"` // empty keeps the journal in memory
}

type KafkaConfig struct {
	Brokers  string `mapstructure:"brokers"` // comma separated
	TopicOut string `mapstructure:"topic_out"`
	TopicIn  string `mapstructure:"topic_in"`
}

type ProofingConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SensorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VerifierConfig struct {
	Address     string        `mapstructure:"address"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	ReceiptPath string        `mapstructure:"receipt_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type FootprintConfig struct {
	SpecVersion string `mapstructure:"spec_version"`
	DataSchema  string `mapstructure:"data_schema"`
}

type WorkflowConfig struct {
	JobSequence []string `mapstructure:"job_sequence"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "6000")
	v.SetDefault("log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5433")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgrespassword")
	v.SetDefault("database.name", "carbon_ledger")

	v.SetDefault("journal.path", "")

	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic_out", "shipments")
	v.SetDefault("kafka.topic_in", "pcf-results")

	v.SetDefault("proofing.timeout", 30*time.Second)

	v.SetDefault("sensor.base_url", "http://localhost:8000")
	v.SetDefault("sensor.timeout", 10*time.Second)

	v.SetDefault("verifier.address", "localhost:50051")
	v.SetDefault("verifier.chunk_size", 3*1024*1024)
	v.SetDefault("verifier.receipt_path", "receipt.bin")
	v.SetDefault("verifier.timeout", 30*time.Second)

	v.SetDefault("activities_output_path", "activities.json")

	v.SetDefault("footprint.spec_version", "2.0.0")
	v.SetDefault("footprint.data_schema", "https://api.ileap.sine.dev/shipment-footprint.json")

	v.SetDefault("workflow.job_sequence", []string{"case_1_with_tsp", "case_2_with_tsp", "case_3_with_tsp"})
}

// legacyEnv maps keys to the environment names older deployments export.
var legacyEnv = map[string][]string{
	"kafka.brokers":          {"KAFKA_BOOTSTRAP_SERVERS"},
	"sensor.base_url":        {"SENSOR_SERVICE_API_URL"},
	"verifier.address":       {"VERIFIER_SERVICE_API_URL"},
	"activities_output_path": {"ACTIVITIES_OUTPUT_PATH"},
	"sensor.timeout":         {"REQUEST_TIMEOUT"},
	"log_level":              {"LOG_LEVEL"},
	"database.host":          {"DB_HOST"},
	"database.port":          {"DB_PORT"},
	"database.user":          {"DB_USER"},
	"database.password":      {"DB_PASS"},
	"database.name":          {"DB_NAME"},
}

// LoadConfig loads configuration from defaults, the optional file at path,
// and environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		canonical := strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(append([]string{key, canonical}, names...)...); err != nil {
			return nil, errors.Wrapf(err, "bind env for %s", key)
		}
	}

	// REQUEST_TIMEOUT and friends carry bare seconds
	for _, key := range []string{"sensor.timeout", "proofing.timeout", "verifier.timeout"} {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			v.Set(key, time.Duration(secs)*time.Second)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "sqlite" {
		return "file:carbon-ledger.db?_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

// KafkaBrokers splits the broker list, dropping blanks.
func (c *Config) KafkaBrokers() []string {
	var out []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("http_port is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Kafka.TopicOut == "" || c.Kafka.TopicIn == "" {
		return fmt.Errorf("kafka.topic_out and kafka.topic_in are required")
	}
	if c.Proofing.Timeout <= 0 {
		return fmt.Errorf("proofing.timeout must be positive")
	}
	if c.Sensor.BaseURL == "" {
		return fmt.Errorf("sensor.base_url is required")
	}
	if c.Verifier.Address == "" {
		return fmt.Errorf("verifier.address is required")
	}
	if c.Verifier.ChunkSize <= 0 {
		return fmt.Errorf("verifier.chunk_size must be positive")
	}
	if len(c.Workflow.JobSequence) == 0 {
		return fmt.Errorf("workflow.job_sequence must not be empty")
	}
	return nil
}
