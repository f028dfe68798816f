package config

import (
	"encoding/json"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/labsync/pkg/errors"
)

// Write writes `cfg` to `configPath`. Files ending in `.yaml` or `.yml` are
// written as YAML, everything else as indented JSON.
func Write(configPath string, cfg Config) error {
	var out []byte
	var err error
	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		out, err = yaml.Marshal(cfg)
	default:
		out, err = json.MarshalIndent(cfg, "", "    ")
		out = append(out, '\n')
	}
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, configPath, out, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}
