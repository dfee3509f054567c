package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path (if any) and then applies environment
// overrides and defaults.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, validate(cfg)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return cfg, validate(cfg)
}

func validate(cfg *AppConfig) error {
	switch cfg.DBDriver {
	case "postgres":
		if strings.TrimSpace(cfg.DBURL) == "" {
			return fmt.Errorf("db_url is required for postgres")
		}
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return fmt.Errorf("db_path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported db_driver %q", cfg.DBDriver)
	}
	if cfg.Attachments.UploadMaxBytes <= 0 {
		return fmt.Errorf("attachments.upload_max_bytes must be positive")
	}
	return nil
}

// Usage renders the environment variables understood by Load.
func Usage() string {
	desc, err := cleanenv.GetDescription(&AppConfig{}, nil)
	if err != nil {
		return ""
	}
	return desc
}
