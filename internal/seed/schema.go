// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package seed

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id published for seed files.
const SchemaID = "https://holomush.dev/schemas/permcore-seed.schema.json"

var (
	schemaOnce sync.Once
	schemaVal  *jschema.Schema
	schemaErr  error
)

// GenerateSchema produces the JSON Schema for seed files from the File
// struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&File{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Permcore Seed File"
	schema.Description = "Schema for permission seed YAML files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML seed data against the generated
// schema.
func ValidateSchema(data []byte) error {
	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return oops.Code("SEED_INVALID").Wrapf(err, "invalid YAML")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(jsonTypes(yamlData)); err != nil {
		return oops.Code("SEED_INVALID").Wrapf(err, "schema validation")
	}
	return nil
}

// compiledSchema compiles the generated schema once; the reflected
// struct cannot change at runtime.
func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		var schemaData any
		if err := json.Unmarshal(raw, &schemaData); err != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrapf(err, "parse schema JSON")
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("schema.json", schemaData); err != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrapf(err, "add schema resource")
			return
		}
		schemaVal, schemaErr = c.Compile("schema.json")
		if schemaErr != nil {
			schemaErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(schemaErr)
		}
	})
	return schemaVal, schemaErr
}

// jsonTypes converts YAML-decoded values to the types the schema
// validator expects.
func jsonTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = jsonTypes(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = jsonTypes(item)
		}
		return result
	default:
		return val
	}
}
