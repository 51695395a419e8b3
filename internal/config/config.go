// Package config loads pactline.yml from the workspace directory.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Auth      Auth      `yaml:"auth"`
	Directory Directory `yaml:"directory"`
}

type Server struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type Auth struct {
	// JWTSecretEnv names the environment variable holding the HS256 secret.
	JWTSecretEnv string `yaml:"jwt_secret_env"`
	// AllowLegacyActorHeader accepts X-Actor-Id without a signature. Local
	// development only.
	AllowLegacyActorHeader bool `yaml:"allow_legacy_actor_header"`
}

type Directory struct {
	// SearchMinPrefix is the shortest email prefix accepted by user search.
	SearchMinPrefix int `yaml:"search_min_prefix"`
	SearchLimit     int `yaml:"search_limit"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:     ":8080",
			BasePath: "/v1",
		},
		Auth: Auth{
			JWTSecretEnv: "PACTLINE_JWT_SECRET",
		},
		Directory: Directory{
			SearchMinPrefix: 2,
			SearchLimit:     10,
		},
	}
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Auth.JWTSecretEnv == "" && !c.Auth.AllowLegacyActorHeader {
		return errors.New("auth.jwt_secret_env must be set unless the legacy actor header is allowed")
	}
	if c.Directory.SearchMinPrefix < 1 {
		return errors.New("directory.search_min_prefix must be at least 1")
	}
	if c.Directory.SearchLimit < 1 {
		return errors.New("directory.search_limit must be at least 1")
	}
	return nil
}

func FromYAML(raw []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func FromFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return FromYAML(raw)
}

// LoadOptional returns defaults when the file does not exist.
func LoadOptional(path string) (Config, error) {
	c, err := FromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return c, err
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: "/v1"
auth:
  jwt_secret_env: "PACTLINE_JWT_SECRET"
  allow_legacy_actor_header: false
directory:
  search_min_prefix: 2
  search_limit: 10
`

// WriteDefault creates pactline.yml with the default template if missing.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}
