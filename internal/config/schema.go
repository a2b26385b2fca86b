package config

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const durationPattern = `^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var settingsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "address":            {"type": "string", "minLength": 1},
    "tcp_address":        {"type": "string"},
    "max_players":        {"type": "integer", "minimum": 1},
    "world_seed":         {"type": "integer", "minimum": 0, "maximum": 4294967295},
    "server_name":        {"type": "string"},
    "server_description": {"type": "string"},
    "start_time":         {"type": "number", "minimum": 0},
    "world_folder":       {"type": "string", "minLength": 1},
    "storage":            {"enum": ["files", "bolt"]},
    "index_db":           {"type": "string"},
    "event_log":          {"type": "boolean"},
    "admins":             {"type": "array", "items": {"type": "string"}},
    "peaceful":           {"type": "boolean"},
    "tick_rate":          {"type": "integer", "minimum": 1, "maximum": 240},
    "client_timeout":     {"type": "string", "pattern": "` + durationPattern + `"},
    "save_interval":      {"type": "string", "pattern": "` + durationPattern + `"},
    "generation_workers": {"type": "integer", "minimum": 0},
    "max_view_distance":  {"type": "integer", "minimum": 0, "maximum": 64},
    "spawn_point":        {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3},
    "chat_rate":          {"type": "number", "exclusiveMinimum": 0},
    "chat_burst":         {"type": "integer", "minimum": 1},
    "log_level":          {"enum": ["debug", "info", "warn", "error"]},
    "log_format":         {"enum": ["json", "console"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("settings.schema.json", settingsSchema)
	})
	return schema, schemaErr
}

func validateSchema(doc any) error {
	if doc == nil {
		return nil
	}
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	v, err := toJSONValue(doc)
	if err != nil {
		return err
	}
	return s.Validate(v)
}
