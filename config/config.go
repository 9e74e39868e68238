package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RateLimit         float64       `mapstructure:"rate_limit"` // websocket events per second per session
	RateBurst         int           `mapstructure:"rate_burst"`
}

type GameConfig struct {
	MinPlayers      int           `mapstructure:"min_players"`
	MoveTime        time.Duration `mapstructure:"move_time"`
	GameDuration    time.Duration `mapstructure:"game_duration"`
	RoomIdleTimeout time.Duration `mapstructure:"room_idle_timeout"`
}

// StorageConfig selects the room store: memory, gorm, postgres, sqlite or mongo.
// RecordGames keeps finished games and player stats in postgres through gorm.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	RecordGames bool   `mapstructure:"record_games"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN returns the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DBName)
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Address    string        `mapstructure:"address"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Channel    string        `mapstructure:"channel"`
	LockExpiry time.Duration `mapstructure:"lock_expiry"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("game.min_players", 4)
	v.SetDefault("game.move_time", 15*time.Second)
	v.SetDefault("game.game_duration", 30*time.Minute)
	v.SetDefault("game.room_idle_timeout", 10*time.Minute)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "ludo.db")
	v.SetDefault("storage.record_games", false)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "ludo")
	v.SetDefault("database.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo.database", "ludo")
	v.SetDefault("database.mongo.collection", "rooms")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.channel", "ludo:rooms")
	v.SetDefault("redis.lock_expiry", 8*time.Second)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path. A .env file in the working
// directory is loaded first, and LUDO_-prefixed variables override any key
// (LUDO_GAME_MIN_PLAYERS for game.min_players). A missing config file is
// not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("LUDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Game.MinPlayers < 1 || c.Game.MinPlayers > 4 {
		return fmt.Errorf("game.min_players must be between 1 and 4, got %d", c.Game.MinPlayers)
	}
	if c.Game.MoveTime <= 0 {
		return fmt.Errorf("game.move_time must be positive")
	}
	switch c.Storage.Driver {
	case "memory", "gorm", "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	return nil
}
