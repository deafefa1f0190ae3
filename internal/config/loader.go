package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional file plus TEXFORGE_* environment
// variables.
//
// When path is empty, texforge.yaml is searched in the working directory,
// $HOME/.config/texforge, and /etc/texforge; a missing file is not an error.
// Environment variables override file values with dots replaced by
// underscores, e.g. TEXFORGE_SERVER_PORT or TEXFORGE_AUTH_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("texforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/texforge")
		v.AddConfigPath("/etc/texforge")
	}

	v.SetEnvPrefix("TEXFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Empty defaults keep these keys visible to AutomaticEnv.
	v.SetDefault("auth.api_key", "")

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("storage.access_key_id", "")
	v.SetDefault("storage.secret_access_key", "")
	v.SetDefault("storage.force_path_style", false)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.image", "texforge/tectonic-worker:latest")
	v.SetDefault("sandbox.pool_size", 2)
	v.SetDefault("sandbox.workspace_dir", "/workspace")
	v.SetDefault("sandbox.memory_mb", 512)

	v.SetDefault("pipeline.pool_key", "latex-compiler-main")
	v.SetDefault("pipeline.key_prefix", "documents")
	v.SetDefault("pipeline.sign_expiry", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 5)
	v.SetDefault("rate_limit.burst", 10)
}
