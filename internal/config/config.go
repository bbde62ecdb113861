package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env   string      `yaml:"env" env-default:"local"`
	HTTP  HTTPConfig  `yaml:"http"`
	Mongo MongoConfig `yaml:"mongo"`
	JWT   JWTConfig   `yaml:"jwt"`
	HIBP  HIBPConfig  `yaml:"hibp"`
}

type HTTPConfig struct {
	Address     string        `yaml:"address" env-default:":8080"`
	ReadTimeout time.Duration `yaml:"read_timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGO_URI" env-required:"true"`
	Database string `yaml:"database" env-default:"shadowsentry"`
}

type JWTConfig struct {
	Secret          string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	Issuer          string        `yaml:"issuer" env-default:"shadowsentry-auth"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
}

type HIBPConfig struct {
	BaseURL   string        `yaml:"base_url" env-default:"https://haveibeenpwned.com/api/v3"`
	APIKey    string        `yaml:"api_key" env:"HIBP_API_KEY"`
	UserAgent string        `yaml:"user_agent" env-default:"ShadowSentry/1.0"`
	Timeout   time.Duration `yaml:"timeout" env-default:"10s"`
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
