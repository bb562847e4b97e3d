package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// Load reads the config file at path and fills unset fields with defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".hcl":
			err = loadHCL(path, cfg)
		case ".yaml", ".yml":
			err = loadYAML(path, cfg)
		default:
			err = fmt.Errorf("unsupported config file extension %q, want .hcl, .yaml or .yml", ext)
		}
		if err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadHCL(path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file %s: %w", path, err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from HOTSYNC_* variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	strs := map[string]*string{
		"HOTSYNC_BACKEND_URL": &c.BackendURL,
		"HOTSYNC_TRANSPORT":   &c.Transport,
		"HOTSYNC_CLIENT_ID":   &c.ClientID,
		"HOTSYNC_WORKSPACE":   &c.Workspace,
		"HOTSYNC_LOG_LEVEL":   &c.Log.Level,
		"HOTSYNC_LOG_FORMAT":  &c.Log.Format,
	}
	for key, field := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup("HOTSYNC_HEALTHCHECK_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HOTSYNC_HEALTHCHECK_PORT %q: %w", v, err)
		}
		c.HealthcheckPort = port
	}
	return nil
}
