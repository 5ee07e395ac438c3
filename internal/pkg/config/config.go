package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Map       MapConfig       `mapstructure:"map"`
	GPS       GPSConfig       `mapstructure:"gps"`
	Geocode   GeocodeConfig   `mapstructure:"geocode"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// MapConfig is the initial presentation of the map surface.
type MapConfig struct {
	Title     string  `mapstructure:"title"`
	CenterLat float64 `mapstructure:"center_lat"`
	CenterLon float64 `mapstructure:"center_lon"`
	DarkMode  bool    `mapstructure:"dark_mode"`
	TileURL   string  `mapstructure:"tile_url"`
}

// GPSConfig tunes the location-services tracker.
type GPSConfig struct {
	// Source is "nats" for a remote device or "sim" for the built-in simulator.
	Source       string        `mapstructure:"source"`
	DeviceID     string        `mapstructure:"device_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	MinInterval  time.Duration `mapstructure:"min_interval"`
	MinDistance  float64       `mapstructure:"min_distance"`
}

type GeocodeConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Debounce  time.Duration `mapstructure:"debounce"`
	Limit     int           `mapstructure:"limit"`
	CacheTTL  int           `mapstructure:"cache_ttl"` // seconds
}

type ChannelConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "wastemap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "wastemap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("map.title", "Waste collection map")
	v.SetDefault("map.center_lat", 43.2630)
	v.SetDefault("map.center_lon", -2.9350)
	v.SetDefault("map.dark_mode", false)
	v.SetDefault("map.tile_url", "https://{s}.basemaps.cartocdn.com/%s/{z}/{x}/{y}{r}.png")
	v.SetDefault("gps.source", "nats")
	v.SetDefault("gps.device_id", "default")
	v.SetDefault("gps.poll_interval", time.Second)
	v.SetDefault("gps.poll_timeout", 30*time.Second)
	v.SetDefault("gps.min_interval", 10*time.Second)
	v.SetDefault("gps.min_distance", 10.0)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "wastemap/1.0")
	v.SetDefault("geocode.timeout", 10*time.Second)
	v.SetDefault("geocode.debounce", 500*time.Millisecond)
	v.SetDefault("geocode.limit", 5)
	v.SetDefault("geocode.cache_ttl", 3600)
	v.SetDefault("channel.queue_size", 256)
	v.SetDefault("channel.ping_interval", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: WASTEMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("WASTEMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 {
		errs = append(errs, fmt.Sprintf("map.center_lat must be -90..90, got %g", c.Map.CenterLat))
	}
	if c.Map.CenterLon < -180 || c.Map.CenterLon > 180 {
		errs = append(errs, fmt.Sprintf("map.center_lon must be -180..180, got %g", c.Map.CenterLon))
	}
	if c.GPS.Source != "nats" && c.GPS.Source != "sim" {
		errs = append(errs, fmt.Sprintf("gps.source must be nats or sim, got %q", c.GPS.Source))
	}
	if c.GPS.PollInterval <= 0 || c.GPS.PollTimeout < c.GPS.PollInterval {
		errs = append(errs, "gps.poll_interval must be positive and not exceed gps.poll_timeout")
	}
	if c.GPS.MinDistance < 0 {
		errs = append(errs, "gps.min_distance must not be negative")
	}
	if c.Geocode.BaseURL == "" {
		errs = append(errs, "geocode.base_url is required")
	}
	if c.Geocode.Timeout <= 0 {
		errs = append(errs, "geocode.timeout must be positive")
	}
	if c.Geocode.Limit <= 0 || c.Geocode.Limit > 50 {
		errs = append(errs, fmt.Sprintf("geocode.limit must be 1-50, got %d", c.Geocode.Limit))
	}
	if c.Channel.QueueSize <= 0 {
		errs = append(errs, "channel.queue_size must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
