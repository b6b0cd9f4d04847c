package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Code struct {
		K int `mapstructure:"k"`
		M int `mapstructure:"m"`
		D int `mapstructure:"d"`
	} `mapstructure:"code"`

	Object struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"object"`

	Storage struct {
		Datadir string `mapstructure:"datadir"`
		DB      string `mapstructure:"db"`
	} `mapstructure:"storage"`

	Server struct {
		GRPCPort    int `mapstructure:"grpc_port"`
		MetricsPort int `mapstructure:"metrics_port"`
	} `mapstructure:"server"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	// ➊ YAML file (optional)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	// ➋ ENV overrides — e.g. CLAY_CODE_K=4
	v.SetEnvPrefix("CLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// ➌ Hard defaults
	v.SetDefault("code.k", 4)
	v.SetDefault("code.m", 2)
	v.SetDefault("code.d", 5)
	v.SetDefault("object.ttl", "24h")
	v.SetDefault("storage.datadir", "data")
	v.SetDefault("storage.db", "store.db")
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.metrics_port", 9102)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
