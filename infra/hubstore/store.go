// Package hubstore persists the hub configuration as a JSON document.
package hubstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/internal/fsutil"
)

var (
	// ErrInvalidMode is returned when a patch carries an unknown network mode.
	ErrInvalidMode = errors.New("invalid network mode")
	// ErrInvalidPatch is returned when a patch value has the wrong type.
	ErrInvalidPatch = errors.New("invalid config value")
)

// AllowedKeys are the keys Update accepts. Others are ignored.
var AllowedKeys = []string{
	"mode",
	"lan_broker_ip",
	"lan_broker_port",
	"vpn_broker_ip",
	"vpn_broker_port",
	"remote_directory_server",
	"remote_directory_port",
	"current_mode",
}

// Store reads and updates the hub configuration file.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path.
func New(path string) *Store { return &Store{path: path} }

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Get returns the persisted configuration, or the defaults when the file
// does not exist yet. Keys missing from the file keep their default.
func (s *Store) Get() (model.HubConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update applies the allowed keys of patch and persists the result.
func (s *Store) Update(patch map[string]any) (model.HubConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.load()
	if err != nil {
		return cur, err
	}
	k, err := toKoanf(cur)
	if err != nil {
		return cur, err
	}
	for _, key := range AllowedKeys {
		if v, ok := patch[key]; ok {
			if err := k.Set(key, v); err != nil {
				return cur, fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	next := cur
	if err := k.UnmarshalWithConf("", &next, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return cur, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if next, err = normalize(next); err != nil {
		return cur, err
	}
	data, err := json.MarshalIndent(next, "", "    ")
	if err != nil {
		return cur, err
	}
	if err := fsutil.WriteFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return cur, err
	}
	return next, nil
}

func (s *Store) load() (model.HubConfig, error) {
	cfg := model.DefaultHubConfig()
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(s.path), koanfjson.Parser()); err != nil {
		return cfg, fmt.Errorf("read %s: %w", s.path, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return cfg, nil
}

func toKoanf(cfg model.HubConfig) (*koanf.Koanf, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), koanfjson.Parser()); err != nil {
		return nil, err
	}
	return k, nil
}

func normalize(cfg model.HubConfig) (model.HubConfig, error) {
	m, err := model.ParseMode(cfg.Mode)
	if err != nil {
		return cfg, fmt.Errorf("%w: mode %q", ErrInvalidMode, cfg.Mode)
	}
	cfg.Mode = string(m)
	cm, err := model.ParseMode(string(cfg.CurrentMode))
	if err != nil {
		return cfg, fmt.Errorf("%w: current_mode %q", ErrInvalidMode, cfg.CurrentMode)
	}
	cfg.CurrentMode = cm
	return cfg, nil
}
