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
	JWT       JWTConfig
	Log       LogConfig
	STT       STTConfig
	Providers ProvidersConfig
	Summary   SummaryConfig
	Audit     AuditConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	MaxUploadBytes int64         `mapstructure:"maxUploadBytes"`
	AllowedOrigins []string      `mapstructure:"allowedOrigins"`
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

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Validity time.Duration `mapstructure:"validity"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// STTConfig drives the fallback dispatcher: which provider is tried first
// when the caller does not pick one, and in what order the rest follow.
type STTConfig struct {
	DefaultService  string        `mapstructure:"defaultService"`
	FallbackOrder   []string      `mapstructure:"fallbackOrder"`
	ProviderTimeout time.Duration `mapstructure:"providerTimeout"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
}

type ProvidersConfig struct {
	Daglo      DagloConfig      `mapstructure:"daglo"`
	Tiro       TiroConfig       `mapstructure:"tiro"`
	AssemblyAI AssemblyAIConfig `mapstructure:"assemblyai"`
	Whisper    WhisperConfig    `mapstructure:"whisper"`
}

type DagloConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
}

type TiroConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
}

type AssemblyAIConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
}

type WhisperConfig struct {
	BaseURL   string `mapstructure:"baseUrl"`
	ModelSize string `mapstructure:"modelSize"`
}

type SummaryConfig struct {
	APIKey    string `mapstructure:"apiKey"`
	BaseURL   string `mapstructure:"baseUrl"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"maxTokens"`
}

type AuditConfig struct {
	QueueSize int `mapstructure:"queueSize"`
}

type RetentionConfig struct {
	UsageLogTTL time.Duration `mapstructure:"usageLogTtl"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8001")
	viper.SetDefault("server.readTimeout", 30*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Minute)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)
	viper.SetDefault("server.maxUploadBytes", int64(100*1024*1024))
	viper.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})

	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 25)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("jwt.issuer", "stt-gateway")
	viper.SetDefault("jwt.validity", 24*time.Hour)

	viper.SetDefault("log.level", "info")

	viper.SetDefault("stt.defaultService", "daglo")
	viper.SetDefault("stt.fallbackOrder", []string{"daglo", "assemblyai", "tiro", "fast-whisper"})
	viper.SetDefault("stt.providerTimeout", 5*time.Minute)
	viper.SetDefault("stt.pollInterval", 10*time.Second)

	viper.SetDefault("providers.daglo.baseUrl", "https://apis.daglo.ai/stt/v1/async/transcripts")
	viper.SetDefault("providers.tiro.baseUrl", "https://api.tiro-ooo.dev/v1/external/voice-file")
	viper.SetDefault("providers.assemblyai.baseUrl", "https://api.assemblyai.com/v2")
	viper.SetDefault("providers.whisper.modelSize", "base")

	viper.SetDefault("summary.baseUrl", "https://api.openai.com/v1")
	viper.SetDefault("summary.model", "gpt-4o-mini")
	viper.SetDefault("summary.maxTokens", 200)

	viper.SetDefault("audit.queueSize", 1024)

	viper.SetDefault("retention.usageLogTtl", 90*24*time.Hour)

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
