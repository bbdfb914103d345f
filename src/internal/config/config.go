package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Configuration struct {
	Logs     LogsSettings     `mapstructure:"logs"`
	App      Application      `mapstructure:"app"`
	Database Database         `mapstructure:"database"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Redis    Redis            `mapstructure:"redis"`
	Security SecuritySettings `mapstructure:"security"`
	Server   ServerSettings   `mapstructure:"server"`
	Search   SearchConfig     `mapstructure:"search"`
	Cache    CacheConfig      `mapstructure:"cache"`
	Auth     AuthSettings     `mapstructure:"auth"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	Path             string `mapstructure:"log-path"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name     string `mapstructure:"name"`
	Timeout  int    `mapstructure:"timeout"`
	Version  string `mapstructure:"version"`
	HostLink string `mapstructure:"host-link"`
}

type Database struct {
	Url               string `mapstructure:"url"`
	DbName            string `mapstructure:"dbname"`
	UserCollection    string `mapstructure:"user-collection"`
	SessionCollection string `mapstructure:"session-collection"`
	Timeout           int    `mapstructure:"timeout"`
}

type SearchConfig struct {
	MinQueryLimit int `mapstructure:"min-query-limit"`
	MaxQueryLimit int `mapstructure:"max-query-limit"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Url              string `mapstructure:"url"`
	Exchange         string `mapstructure:"exchange"`
	ExchangeType     string `mapstructure:"exchange-type"`
	EmailQueue       string `mapstructure:"email-queue"`
	EmailRoutingKey  string `mapstructure:"email-routing-key"`
	EventsQueue      string `mapstructure:"events-queue"`
	EventsRoutingKey string `mapstructure:"events-routing-key"`
	PrefetchCount    int    `mapstructure:"prefetch-count"`
	ReconnectDelay   int    `mapstructure:"reconnect-delay"`
	Timeout          int    `mapstructure:"timeout"`
	PrefetchSize     int    `mapstructure:"prefetch-size"`
	Global           bool   `mapstructure:"global"`
	Durable          bool   `mapstructure:"durable"`
	AutoDelete       bool   `mapstructure:"auto-delete"`
	Internal         bool   `mapstructure:"internal"`
	NoWait           bool   `mapstructure:"no-wait"`
	Exclusive        bool   `mapstructure:"exclusive"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type SecuritySettings struct {
	JwtKey             string `mapstructure:"jwt-key"`
	BcryptCost         int    `mapstructure:"bcrypt-cost"`
	LoginMaxAttempts   int    `mapstructure:"login-max-attempts"`
	LoginWindowMinutes int    `mapstructure:"login-window-minutes"`
	AccessTokenCookie  string `mapstructure:"access-token-cookie"`
	CookieSecure       bool   `mapstructure:"cookie-secure"`
	CookieDomain       string `mapstructure:"cookie-domain"`
}

type AuthSettings struct {
	AccessTokenMinutes     int `mapstructure:"access-token-minutes"`
	RefreshTokenDays       int `mapstructure:"refresh-token-days"`
	MaxConcurrentSessions  int `mapstructure:"max-concurrent-sessions"`
	RevokedRetentionDays   int `mapstructure:"revoked-retention-days"`
	CleanupIntervalMinutes int `mapstructure:"cleanup-interval-minutes"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

type CacheConfig struct {
	ExpirationMinutes         int    `mapstructure:"expiration-minutes"`
	SessionExpirationMinutes  int    `mapstructure:"session-expiration-minutes"`
	UserStatKey               string `mapstructure:"user-stat-key"`
	UserStatExpirationMinutes int    `mapstructure:"user-stat-expiration-minutes"`
}

func Load() *Configuration {
	cfg := read()
	logrus.Info("Configuration loaded")

	// Override with environment variables
	mongoUri := os.Getenv("MONGODB_URL")
	if mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	dbName := os.Getenv("DB_NAME")
	if dbName != "" {
		cfg.Database.DbName = dbName
	}

	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	redisDB := os.Getenv("REDIS_DB")
	if redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	rabbitmqUrl := os.Getenv("RABBITMQ_URL")
	if rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	port := os.Getenv("PORT")
	if port != "" {
		cfg.Server.Port = port
	}

	applyDefaults(cfg)

	return cfg
}

func applyDefaults(cfg *Configuration) {
	if cfg.Auth.AccessTokenMinutes <= 0 {
		cfg.Auth.AccessTokenMinutes = 15
	}
	if cfg.Auth.RefreshTokenDays <= 0 {
		cfg.Auth.RefreshTokenDays = 7
	}
	if cfg.Auth.MaxConcurrentSessions <= 0 {
		cfg.Auth.MaxConcurrentSessions = 3
	}
	if cfg.Auth.RevokedRetentionDays <= 0 {
		cfg.Auth.RevokedRetentionDays = 7
	}
	if cfg.Auth.CleanupIntervalMinutes <= 0 {
		cfg.Auth.CleanupIntervalMinutes = 60
	}
	if cfg.Security.BcryptCost <= 0 {
		cfg.Security.BcryptCost = 12
	}
	if cfg.Security.LoginMaxAttempts <= 0 {
		cfg.Security.LoginMaxAttempts = 10
	}
	if cfg.Security.LoginWindowMinutes <= 0 {
		cfg.Security.LoginWindowMinutes = 15
	}
	if cfg.Security.AccessTokenCookie == "" {
		cfg.Security.AccessTokenCookie = "access_token"
	}
}

func read() *Configuration {
	viper.SetConfigFile("src/internal/config/cfg.yml")
	viper.AutomaticEnv()
	viper.SetConfigType("yml")

	var config Configuration

	err := viper.ReadInConfig()
	if err != nil {
		logrus.Panicf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		logrus.Panicf("Error unmarshalling config file, %s", err)
	}

	return &config
}
