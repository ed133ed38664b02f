package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/skybridge/auth"
	"github.com/kilianp07/skybridge/core/model"
	"github.com/kilianp07/skybridge/infra/logger"
)

// envKeys maps the bridge environment variables to device config keys.
var envKeys = map[string]string{
	"DRONE_ASSET_ID":   "device_id",
	"MQTT_HOST":        "bus_host",
	"MQTT_PORT":        "bus_port",
	"MQTT_USER":        "bus_user",
	"MQTT_PASS":        "bus_pass",
	"MAVLINK_PORT":     "link_address",
	"MAVLINK_BAUD":     "link_baud",
	"FIRMWARE_VERSION": "firmware_version",
	"NETWORK_MODE":     "current_mode",
}

// DefaultDeviceConfig is the last-resort device configuration.
func DefaultDeviceConfig() model.DeviceConfig {
	return model.DeviceConfig{
		DeviceID:        "DRONE_001",
		BusHost:         "192.168.4.1",
		BusPort:         1883,
		BusUser:         "drone_user",
		BusPass:         "changeme",
		LinkAddress:     "/dev/ttyUSB0",
		LinkBaud:        57600,
		FirmwareVersion: "unknown",
		CurrentMode:     model.ModeLAN,
	}
}

// Resolver produces the effective device configuration. Sources, first
// success wins:
//
//  1. the local file, returned verbatim;
//  2. defaults overlaid with explicitly set environment variables;
//  3. the hub directory, whose fields overlay the tier 2 result.
//
// A failed remote fetch keeps the tier 2 result.
type Resolver struct {
	LocalPath    string
	DirectoryURL string
	Timeout      time.Duration
	Client       *http.Client
	Log          logger.Logger
}

// NewResolver builds a Resolver from the bridge settings.
func NewResolver(cfg BridgeConfig, log logger.Logger) *Resolver {
	r := &Resolver{
		LocalPath:    cfg.DeviceFile,
		DirectoryURL: cfg.DirectoryURL,
		Timeout:      cfg.FetchTimeout(),
		Log:          log,
	}
	if cfg.DirectoryAuth.Enabled() {
		r.Client = auth.NewClientCred(cfg.DirectoryAuth).Client(r.Timeout)
	}
	return r
}

// Resolve never fails: the defaults are complete.
func (r *Resolver) Resolve(ctx context.Context) model.DeviceConfig {
	log := r.Log
	if log == nil {
		log = logger.NopLogger{}
	}
	if dc, ok := r.loadLocal(log); ok {
		log.Infof("using local device config %s", r.LocalPath)
		return dc
	}
	dc := r.fromEnv(log)
	if r.DirectoryURL == "" {
		return dc
	}
	remote, err := r.fetchRemote(ctx, dc)
	if err != nil {
		log.Warnf("remote device config unavailable, keeping local defaults: %v", err)
		return dc
	}
	log.Infof("device config fetched from %s", r.DirectoryURL)
	return remote
}

func (r *Resolver) loadLocal(log logger.Logger) (model.DeviceConfig, bool) {
	if r.LocalPath == "" {
		return model.DeviceConfig{}, false
	}
	if _, err := os.Stat(r.LocalPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("local device config %s: %v", r.LocalPath, err)
		}
		return model.DeviceConfig{}, false
	}
	var parser koanf.Parser = yaml.Parser()
	if strings.HasSuffix(strings.ToLower(r.LocalPath), ".json") {
		parser = json.Parser()
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(r.LocalPath), parser); err != nil {
		log.Warnf("ignoring malformed device config %s: %v", r.LocalPath, err)
		return model.DeviceConfig{}, false
	}
	var dc model.DeviceConfig
	if err := k.UnmarshalWithConf("", &dc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		log.Warnf("ignoring malformed device config %s: %v", r.LocalPath, err)
		return model.DeviceConfig{}, false
	}
	return dc, true
}

func (r *Resolver) fromEnv(log logger.Logger) model.DeviceConfig {
	dc := DefaultDeviceConfig()
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		name, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		return name, value
	}), nil)
	if err == nil {
		err = k.UnmarshalWithConf("", &dc, koanf.UnmarshalConf{Tag: "koanf"})
	}
	if err != nil {
		log.Warnf("ignoring environment overrides: %v", err)
		dc = DefaultDeviceConfig()
	}
	return normalizeMode(dc, log)
}

func normalizeMode(dc model.DeviceConfig, log logger.Logger) model.DeviceConfig {
	m, err := model.ParseMode(string(dc.CurrentMode))
	if err != nil {
		log.Warnf("%v, falling back to %s", err, model.ModeLAN)
		m = model.ModeLAN
	}
	dc.CurrentMode = m
	return dc
}

// fetchRemote overlays the directory's answer on base.
func (r *Resolver) fetchRemote(ctx context.Context, base model.DeviceConfig) (model.DeviceConfig, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimSuffix(r.DirectoryURL, "/") + "/devices/" + url.PathEscape(base.DeviceID) + "/config"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return base, err
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return base, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return base, fmt.Errorf("GET %s: unexpected status %s", endpoint, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return base, fmt.Errorf("read body: %w", err)
	}
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(body), json.Parser()); err != nil {
		return base, fmt.Errorf("decode device config: %w", err)
	}
	merged := base
	if err := k.UnmarshalWithConf("", &merged, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return base, fmt.Errorf("decode device config: %w", err)
	}
	return normalizeMode(merged, logger.NopLogger{}), nil
}
