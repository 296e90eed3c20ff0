// internal/config/values.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ListValues returns the config as a flat dot-keyed map. When mask is true,
// secret values are replaced with a masked form.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads the config file and returns the value at the given
// dot-separated key.
func GetValue(path, key string) (any, error) {
	flat, err := loadFlat(path)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue updates a single dot-separated key in the config file. The value
// string is parsed as JSON when possible (numbers, booleans) and stored as a
// string otherwise. The key must already exist.
func SetValue(path, key, value string) error {
	flat, err := loadFlat(path)
	if err != nil {
		return err
	}
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	} else if _, isMap := parsed.(map[string]any); isMap {
		parsed = value
	}
	flat[key] = parsed

	nested := Unflatten(flat)
	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return Save(path, &cfg)
}

func loadFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return Flatten(nested), nil
}
