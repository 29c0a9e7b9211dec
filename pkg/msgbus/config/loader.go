package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// decoders maps file extensions to the decoder used by FromFile.
var decoders = map[string]func([]byte) (Config, error){
	".yaml": FromYAML,
	".yml":  FromYAML,
	".json": FromJSON,
}

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return decode(data)
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// TransmitterEntry is one element of a "transmitters" list in a config file:
//
//	transmitters:
//	  - id: audit
//	    type: outbox.transmitter
type TransmitterEntry struct {
	ID   string
	Type string
}

// Transmitters reads the "transmitters" list. Entries missing an id or type
// are reported as an error rather than skipped.
func (c Config) Transmitters() ([]TransmitterEntry, error) {
	raw, ok := c.data["transmitters"]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("transmitters: expected a list, got %T", raw)
	}

	entries := make([]TransmitterEntry, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("transmitters[%d]: expected a mapping, got %T", i, item)
		}
		entry := New(m)
		id, typ := entry.String("id", ""), entry.String("type", "")
		if id == "" || typ == "" {
			return nil, fmt.Errorf("transmitters[%d]: id and type are required", i)
		}
		entries = append(entries, TransmitterEntry{ID: id, Type: typ})
	}
	return entries, nil
}
