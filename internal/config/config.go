package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Lifecycle LifecycleConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	// HMACSecret keys the one-way digest of API key secrets. Changing it
	// invalidates every stored digest.
	HMACSecret string `mapstructure:"hmacSecret"`
	// ManagementSecret verifies bearer tokens on the management routes.
	// Token issuance happens outside this service.
	ManagementSecret string        `mapstructure:"managementSecret"`
	CacheSize        int           `mapstructure:"cacheSize"`
	CacheTTL         time.Duration `mapstructure:"cacheTTL"`
}

type EndpointLimitConfig struct {
	Prefix string        `mapstructure:"prefix"`
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	// Backend selects the counter store: "memory" or "redis".
	Backend string `mapstructure:"backend"`
	// Algorithm selects the admission strategy: "fixed_window",
	// "sliding_window", "sliding_log" or "token_bucket".
	Algorithm       string                `mapstructure:"algorithm"`
	GlobalLimit     int64                 `mapstructure:"globalLimit"`
	GlobalWindow    time.Duration         `mapstructure:"globalWindow"`
	Endpoints       []EndpointLimitConfig `mapstructure:"endpoints"`
	FailOpen        bool                  `mapstructure:"failOpen"`
	BackendTimeout  time.Duration         `mapstructure:"backendTimeout"`
	CleanupInterval time.Duration         `mapstructure:"cleanupInterval"`
}

type LifecycleConfig struct {
	ExpireInterval     string        `mapstructure:"expireInterval"`
	WarnInterval       string        `mapstructure:"warnInterval"`
	ExpiryWarningLead  time.Duration `mapstructure:"expiryWarningLead"`
	RotationTransition time.Duration `mapstructure:"rotationTransition"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)

	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 25)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("auth.cacheSize", 4096)
	viper.SetDefault("auth.cacheTTL", 30*time.Second)

	viper.SetDefault("ratelimit.backend", "redis")
	viper.SetDefault("ratelimit.algorithm", "fixed_window")
	viper.SetDefault("ratelimit.globalLimit", 0)
	viper.SetDefault("ratelimit.globalWindow", time.Minute)
	viper.SetDefault("ratelimit.failOpen", false)
	viper.SetDefault("ratelimit.backendTimeout", 2*time.Second)
	viper.SetDefault("ratelimit.cleanupInterval", 5*time.Minute)

	viper.SetDefault("lifecycle.expireInterval", "@every 1h")
	viper.SetDefault("lifecycle.warnInterval", "@every 24h")
	viper.SetDefault("lifecycle.expiryWarningLead", 7*24*time.Hour)
	viper.SetDefault("lifecycle.rotationTransition", 7*24*time.Hour)

	viper.SetDefault("log.level", "info")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
