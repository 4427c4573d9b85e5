package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "vehicles.cfg.json"

// StorageConfig selects and configures the vehicle storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// MemoryConfig holds in-memory storage backend settings. The snapshot is
// written to OutputDir on close and read back on init.
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path          string        `json:"path" mapstructure:"path"`
	DumpPath      string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval  time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// PostgresConfig holds connection settings for the postgres backend
type PostgresConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          string        `json:"port" mapstructure:"port"`
	Username      string        `json:"username" mapstructure:"username"`
	Password      string        `json:"password" mapstructure:"password"`
	Database      string        `json:"database" mapstructure:"database"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// DSN renders the connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// InfluxConfig holds command-audit metric settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL renders the server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// WebsocketConfig holds live mirroring settings
type WebsocketConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// Permissions grants sub-command capabilities by player name. The "*" entry
// applies to everyone.
type Permissions map[string][]string

// Allows reports whether player has been granted key.
func (p Permissions) Allows(player, key string) bool {
	for _, name := range []string{strings.ToLower(player), "*"} {
		for _, granted := range p[name] {
			if granted == key || granted == "vehicles.*" {
				return true
			}
		}
	}
	return false
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./vehiclelogs")
	viper.SetDefault("messagePrefix", "[Vehicles] ")
	viper.SetDefault("catalog.path", "./vehicles.yaml")
	viper.SetDefault("autosaveInterval", "5m")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./vehicledata")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./vehicledata/vehicles.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.flushInterval", "2s")
	viper.SetDefault("storage.postgres.flushInterval", "2s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vehicles")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "vehicles")
	viper.SetDefault("influx.bucket", "vehicle-commands")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vehicles")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("websocket.enabled", false)
	viper.SetDefault("websocket.url", "")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("permissions", map[string][]string{
		"*": {"vehicles.command.lock", "vehicles.command.unlock", "vehicles.command.giveaway"},
	})

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
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
// Postgres connection settings are read from the db section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:          viper.GetString("storage.sqlite.path"),
			DumpPath:      viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval:  viper.GetDuration("storage.sqlite.dumpInterval"),
			FlushInterval: viper.GetDuration("storage.sqlite.flushInterval"),
		},
		Postgres: PostgresConfig{
			Host:          viper.GetString("db.host"),
			Port:          viper.GetString("db.port"),
			Username:      viper.GetString("db.username"),
			Password:      viper.GetString("db.password"),
			Database:      viper.GetString("db.database"),
			FlushInterval: viper.GetDuration("storage.postgres.flushInterval"),
		},
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

// GetGraylogConfig returns the GELF output configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetInfluxConfig returns the command-audit metric configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetWebsocketConfig returns the live mirroring configuration.
func GetWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		Enabled: viper.GetBool("websocket.enabled"),
		URL:     viper.GetString("websocket.url"),
		Secret:  viper.GetString("websocket.secret"),
	}
}

// GetPermissions returns the configured grants with player names lower-cased.
func GetPermissions() Permissions {
	raw := viper.GetStringMapStringSlice("permissions")
	out := make(Permissions, len(raw))
	for name, keys := range raw {
		out[strings.ToLower(name)] = keys
	}
	return out
}
