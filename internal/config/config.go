package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	WSServer ServerConfig   `mapstructure:"ws_server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Leader   LeaderConfig   `mapstructure:"leader"`
	Instance InstanceConfig `mapstructure:"instance"`
	Auction  AuctionConfig  `mapstructure:"auction"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	TxRetries       uint64        `mapstructure:"tx_retries"`
}

// StorageConfig selects the auction store. "memory" keeps everything in
// process and is meant for local runs.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type LeaderConfig struct {
	Key string        `mapstructure:"key"`
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type AuctionConfig struct {
	MinDuration       time.Duration `mapstructure:"min_duration"`
	MaxDuration       time.Duration `mapstructure:"max_duration"`
	FinalizerInterval time.Duration `mapstructure:"finalizer_interval"`
	TransitionPolicy  string        `mapstructure:"transition_policy"`
}

type NotifierConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("ws_server.port", 8081)
	v.SetDefault("ws_server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "auction_events")
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.auto_migrate", false)
	v.SetDefault("mysql.tx_retries", 3)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("leader.key", "auction:finalizer:leader")
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "")
	v.SetDefault("auction.min_duration", 2*time.Hour)
	v.SetDefault("auction.max_duration", 24*time.Hour)
	v.SetDefault("auction.finalizer_interval", 60*time.Second)
	v.SetDefault("auction.transition_policy", "permissive")
	v.SetDefault("notifier.queue_size", 1024)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	// Environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variable mappings
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("ws_server.port", "WS_SERVER_PORT")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("mysql.auto_migrate", "MYSQL_AUTO_MIGRATE")
	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("leader.ttl", "LEADER_TTL")
	v.BindEnv("instance.id", "INSTANCE_ID")
	v.BindEnv("auction.finalizer_interval", "AUCTION_FINALIZER_INTERVAL")
	v.BindEnv("auction.transition_policy", "AUCTION_TRANSITION_POLICY")
	v.BindEnv("log.level", "LOG_LEVEL")

	return v
}

func Load() (*Config, error) {
	loadEnv(".", "config/")
	v := newViper()

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

// loadEnv exports .env and .env.local from each dir, later files winning.
// Missing files are ignored.
func loadEnv(dirs ...string) {
	for _, dir := range dirs {
		for _, name := range []string{".env", ".env.local"} {
			_ = godotenv.Overload(filepath.Join(dir, name))
		}
	}
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.Instance.ID == "" {
		config.Instance.ID = "auction-" + uuid.NewString()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Auction.MinDuration <= 0 || c.Auction.MaxDuration < c.Auction.MinDuration {
		return fmt.Errorf("invalid auction duration bounds [%s, %s]", c.Auction.MinDuration, c.Auction.MaxDuration)
	}

	if c.Auction.FinalizerInterval < time.Second {
		return fmt.Errorf("finalizer interval must be at least 1s, got %s", c.Auction.FinalizerInterval)
	}

	if c.Leader.TTL < 3*time.Second {
		return fmt.Errorf("leader ttl must be at least 3s, got %s", c.Leader.TTL)
	}

	switch strings.ToLower(c.Auction.TransitionPolicy) {
	case "permissive", "strict":
	default:
		return fmt.Errorf("unknown transition policy %q", c.Auction.TransitionPolicy)
	}

	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, WS: %s:%d, Redis: %s, Storage: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.WSServer.Host,
		c.WSServer.Port,
		c.Redis.Address,
		c.Storage.Driver,
		c.Instance.ID,
	)
}
