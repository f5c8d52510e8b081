package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path (when it exists) and then applies DRIVE_*
// environment overrides.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *AppConfig) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Signing.PlaceholderBytes <= 0 {
		return errors.New("signing.placeholder_bytes must be positive")
	}
	if c.IsSQLite() && c.DBPath == "" {
		return errors.New("db_path is required for sqlite")
	}
	return nil
}
