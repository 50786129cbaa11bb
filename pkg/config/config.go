// Package config holds the daemon's explicit configuration record (§9
// "Ambient CLI context / configuration object") and the extension registry
// document (§9 "Extension dispatch").
package config

import (
	"os"
	"path/filepath"
	"time"

	yaml "github.com/jesseduffield/yaml"

	"github.com/hack-dance/hackd/pkg/paths"
)

// GatewayConfig controls the optional secondary TCP bind and its exposure
// policy (§4.H, §4.F exposure state machine).
type GatewayConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Bind        string `yaml:"bind,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	AllowWrites bool   `yaml:"allowWrites,omitempty"`
}

// ExposureConfig is the per-channel config consulted by the exposure state
// machine for one of {local-network, mesh-vpn, public-tunnel}.
type ExposureConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	RequireBind string            `yaml:"requireBind,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty"`
}

// ExtensionsDocument is the single user-editable document under the state
// root modeling §9's "registered static handlers compiled in, keyed by
// namespace, with a single enabled flag per namespace."
type ExtensionsDocument struct {
	Namespaces map[string]bool          `yaml:"namespaces,omitempty"`
	Gateway    GatewayConfig            `yaml:"gateway,omitempty"`
	Exposures  map[string]ExposureConfig `yaml:"exposures,omitempty"`
}

// DefaultExtensions returns the baseline document written the first time a
// root is initialized.
func DefaultExtensions() *ExtensionsDocument {
	return &ExtensionsDocument{
		Namespaces: map[string]bool{
			"registry": true,
			"tokens":   true,
			"logs":     true,
		},
		Gateway: GatewayConfig{
			Enabled:     false,
			Bind:        "127.0.0.1",
			Port:        7070,
			AllowWrites: false,
		},
		Exposures: map[string]ExposureConfig{
			"local-network": {Enabled: false},
			"mesh-vpn":      {Enabled: false},
			"public-tunnel": {Enabled: false},
		},
	}
}

// LoadExtensions reads extensions.yml, creating it with defaults if absent,
// and merges any present fields over the defaults — the same
// create-then-merge flow as the teacher's loadUserConfigWithDefaults.
func LoadExtensions(p *paths.Paths) (*ExtensionsDocument, error) {
	doc := DefaultExtensions()

	if _, err := os.Stat(p.ExtensionsFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := writeExtensions(p.ExtensionsFile, doc); err != nil {
			return nil, err
		}
		return doc, nil
	}

	content, err := os.ReadFile(p.ExtensionsFile)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return doc, nil
	}
	if err := yaml.Unmarshal(content, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func writeExtensions(path string, doc *ExtensionsDocument) error {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Config is the explicit configuration record passed into the daemon entry
// point, replacing the teacher's ambient CLI context (§9).
type Config struct {
	Paths       *paths.Paths
	Extensions  *ExtensionsDocument
	Debug       bool
	Version     string
	Commit      string
	BuildDate   string
	RuntimeBin  string // "docker" or "podman"; empty means auto-detect
	ReconcileInterval time.Duration
	ProbeTimeout      time.Duration
	RequestDeadline   time.Duration
}

// Load builds a Config from resolved paths, environment overrides, and the
// extensions document.
func Load(version, commit, buildDate string, debug bool) (*Config, error) {
	p, err := paths.Resolve()
	if err != nil {
		return nil, err
	}

	ext, err := LoadExtensions(p)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Paths:             p,
		Extensions:        ext,
		Debug:             debug || os.Getenv("HACK_DEBUG") == "1",
		Version:           version,
		Commit:            commit,
		BuildDate:         buildDate,
		RuntimeBin:        os.Getenv("HACK_RUNTIME_BIN"),
		ReconcileInterval: 2 * time.Second,
		ProbeTimeout:      1500 * time.Millisecond,
		RequestDeadline:   5 * time.Second,
	}

	return cfg, nil
}

// ConfigFilename returns the path to the extensions document, mirroring the
// teacher's AppConfig.ConfigFilename.
func (c *Config) ConfigFilename() string {
	return filepath.Join(c.Paths.Root, "extensions.yml")
}
