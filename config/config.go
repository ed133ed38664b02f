package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the process configuration shared by the bridge and hub
// commands. The device configuration of a bridge session is resolved
// separately, see Resolver.
type Config struct {
	Bridge  BridgeConfig  `json:"bridge"`
	Hub     HubConfig     `json:"hub"`
	Metrics MetricsConfig `json:"metrics"`
}

// Load reads path (YAML or JSON) and applies K_ prefixed environment
// overrides, e.g. K_HUB__LISTEN=:8080. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Bridge.SetDefaults()
	cfg.Hub.SetDefaults()
	cfg.Metrics.SetDefaults()
	if err := cfg.Bridge.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	if err := cfg.Hub.Validate(); err != nil {
		return nil, fmt.Errorf("hub: %w", err)
	}
	return &cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as empty.
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}
