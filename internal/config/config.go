package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/voiceroom/internal/adapters/capture"
	"github.com/dkeye/voiceroom/internal/adapters/identity"
	"github.com/dkeye/voiceroom/internal/tokenserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string `mapstructure:"mode"`
	Port          int    `mapstructure:"port"`
	Secret        string `mapstructure:"secret"`
	TokenEndpoint string `mapstructure:"token_endpoint"`
	TransportURL  string `mapstructure:"transport_url"`
	RecordingsDir string `mapstructure:"recordings_dir"`
	EventBuffer   int    `mapstructure:"event_buffer"`

	JoinRate    RateLimit          `mapstructure:"join_rate"`
	Identity    identity.Config    `mapstructure:"identity"`
	Devices     capture.Config     `mapstructure:"devices"`
	TokenServer tokenserver.Config `mapstructure:"tokenserver"`
}

// RateLimit allows Limit attempts per client within Interval.
type RateLimit struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("VOICEROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("token_endpoint", "http://localhost:8090/token")
	v.SetDefault("transport_url", "ws://localhost:7880")
	v.SetDefault("recordings_dir", "./recordings")
	v.SetDefault("event_buffer", 32)
	v.SetDefault("join_rate.limit", 5)
	v.SetDefault("join_rate.interval", "10s")
	v.SetDefault("identity.issuer", "voiceroom")
	v.SetDefault("identity.ttl", "15m")
	v.SetDefault("devices.allow_microphone", true)
	v.SetDefault("devices.allow_camera", true)
	v.SetDefault("tokenserver.port", 8090)
	v.SetDefault("tokenserver.token_ttl", "1h")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("transport", cfg.TransportURL).Msg("config ready")
	return &cfg, nil
}
