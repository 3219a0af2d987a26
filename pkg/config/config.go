// Package config loads the sketch daemon configuration from YAML and the
// environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sahithikokkula/streamsketch/pkg/logger"
	"github.com/sahithikokkula/streamsketch/pkg/registry"
)

const (
	DefaultDBPath = "sketchd.sqlite"
	DefaultPort   = 8080
)

// Config is the daemon configuration.
type Config struct {
	Server  ServerConfig    `yaml:"server"`
	Storage StorageConfig   `yaml:"storage"`
	Log     logger.Config   `yaml:"log"`
	Streams []registry.Spec `yaml:"streams"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// StorageConfig configures the sqlite metadata store.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: DefaultPort},
		Storage: StorageConfig{DBPath: DefaultDBPath},
		Log:     logger.Config{Level: "info", Encoding: "json"},
	}
}

// Load reads path (if not empty) over the defaults and applies environment
// overrides: SKETCHD_DB_PATH and PORT.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "failed to read config file")
		}
		if err := yaml.Unmarshal([]byte(substituteEnvVars(string(data))), &cfg); err != nil {
			return cfg, errors.Wrap(err, "failed to parse YAML")
		}
	}

	if v := os.Getenv("SKETCHD_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

// Validate checks the values Load cannot default.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path must not be empty")
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if seen[s.Name] {
			return errors.Errorf("stream %q declared twice", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
