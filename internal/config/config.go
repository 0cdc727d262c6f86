package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldtrack/trackcheck/internal/track"
	"github.com/spf13/viper"
)

// FileName is the name of the JSON config file looked up in the config directory.
const FileName = "trackcheck.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. TRACKCHECK_DB_HOST.
const EnvPrefix = "TRACKCHECK"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds in-memory SQLite backend settings
type SQLiteConfig struct {
	OutputPath   string        `json:"outputPath" mapstructure:"outputPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds batching settings of the GORM writer
type PostgresConfig struct {
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	BatchSize     int           `json:"batchSize" mapstructure:"batchSize"`
	MaxQueued     int           `json:"maxQueued" mapstructure:"maxQueued"`
}

// DBConfig holds the Postgres connection settings
type DBConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            string        `json:"port" mapstructure:"port"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	Database        string        `json:"database" mapstructure:"database"`
	SSLMode         string        `json:"sslMode" mapstructure:"sslMode"`
	MaxOpenConns    int           `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" mapstructure:"connMaxLifetime"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// OTelConfig configures the OpenTelemetry log and metric exporters
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address      string        `json:"address" mapstructure:"address"`
	ReadTimeout  time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	BodyLimit    int           `json:"bodyLimit" mapstructure:"bodyLimit"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables prefixed with TRACKCHECK_ override file values.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./tracklogs")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadRetries", 3)
	viper.SetDefault("api.retryBackoff", "2s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "trackcheck")
	viper.SetDefault("db.sslMode", "disable")
	viper.SetDefault("db.maxOpenConns", 10)
	viper.SetDefault("db.connMaxLifetime", "30m")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "trackcheck")
	viper.SetDefault("influx.bucket", "track_anomalies")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.readTimeout", "10s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.bodyLimit", 4*1024*1024)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./tracks")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.outputPath", "./tracks/trackcheck.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.flushInterval", "2s")
	viper.SetDefault("storage.postgres.batchSize", 500)
	viper.SetDefault("storage.postgres.maxQueued", 100000)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "trackcheck")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	def := track.DefaultConfig()
	viper.SetDefault("processor.maxSpeedKmh", def.MaxSpeedKmh)
	viper.SetDefault("processor.minElapsed", def.MinElapsed.String())
	viper.SetDefault("processor.teleportDistanceMeters", def.TeleportDistanceMeters)
	viper.SetDefault("processor.teleportWindow", def.TeleportWindow.String())
	viper.SetDefault("processor.clusterThresholdDegrees", def.ClusterThresholdDegrees)
	viper.SetDefault("processor.jitterRadiusDegrees", def.JitterRadiusDegrees)
	viper.SetDefault("processor.unusualAverageSpeedKmh", def.UnusualAverageSpeedKmh)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			OutputPath:   viper.GetString("storage.sqlite.outputPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			FlushInterval: viper.GetDuration("storage.postgres.flushInterval"),
			BatchSize:     viper.GetInt("storage.postgres.batchSize"),
			MaxQueued:     viper.GetInt("storage.postgres.maxQueued"),
		},
	}
}

// GetDBConfig returns the Postgres connection settings.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:            viper.GetString("db.host"),
		Port:            viper.GetString("db.port"),
		Username:        viper.GetString("db.username"),
		Password:        viper.GetString("db.password"),
		Database:        viper.GetString("db.database"),
		SSLMode:         viper.GetString("db.sslMode"),
		MaxOpenConns:    viper.GetInt("db.maxOpenConns"),
		ConnMaxLifetime: viper.GetDuration("db.connMaxLifetime"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetServerConfig returns the HTTP server configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:      viper.GetString("server.address"),
		ReadTimeout:  viper.GetDuration("server.readTimeout"),
		WriteTimeout: viper.GetDuration("server.writeTimeout"),
		BodyLimit:    viper.GetInt("server.bodyLimit"),
	}
}

// GetProcessorConfig returns the anomaly processor thresholds.
func GetProcessorConfig() track.Config {
	return track.Config{
		MaxSpeedKmh:             viper.GetFloat64("processor.maxSpeedKmh"),
		MinElapsed:              viper.GetDuration("processor.minElapsed"),
		TeleportDistanceMeters:  viper.GetFloat64("processor.teleportDistanceMeters"),
		TeleportWindow:          viper.GetDuration("processor.teleportWindow"),
		ClusterThresholdDegrees: viper.GetFloat64("processor.clusterThresholdDegrees"),
		JitterRadiusDegrees:     viper.GetFloat64("processor.jitterRadiusDegrees"),
		UnusualAverageSpeedKmh:  viper.GetFloat64("processor.unusualAverageSpeedKmh"),
	}
}
