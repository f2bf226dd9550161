package config

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed settings.schema.json
var settingsSchemaJSON string

var settingsSchema = jsonschema.MustCompileString("settings.schema.json", settingsSchemaJSON)

// validateSettings checks a YAML settings document against the embedded JSON
// Schema. The YAML is round-tripped through encoding/json so the validator
// sees the value types it expects.
func validateSettings(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if doc == nil {
		return nil // empty file: all defaults
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(jsonBytes, &normalized); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	if err := settingsSchema.Validate(normalized); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}
