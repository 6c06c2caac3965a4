package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ramoncreager/matrix/matrixerrors"
)

// jsonSchemaDocument renders a ConfigSchema into the JSON Schema document
// gojsonschema validates component config against.
func (s ConfigSchema) jsonSchemaDocument() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{}
		if prop.Type != "" {
			p["type"] = prop.Type
		}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		if len(prop.Enum) > 0 {
			p["enum"] = prop.Enum
		}
		if prop.Default != nil {
			p["default"] = prop.Default
		}
		properties[name] = p
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(s.Required) > 0 {
		doc["required"] = s.Required
	}
	return doc
}

// Validate checks config against s, returning a matrixerrors.Invalid error
// describing every violation gojsonschema reports. A schema with no
// properties and no required fields accepts any config, including an
// empty one — most Matrix component types declare no schema at all.
func (s ConfigSchema) Validate(typeName string, config json.RawMessage) error {
	if len(s.Properties) == 0 && len(s.Required) == 0 {
		return nil
	}
	if len(bytes.TrimSpace(config)) == 0 {
		config = []byte("{}")
	}

	schemaLoader := gojsonschema.NewGoLoader(s.jsonSchemaDocument())
	docLoader := gojsonschema.NewBytesLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return matrixerrors.WrapInvalid(err, "component", "ConfigSchema.Validate", typeName)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return matrixerrors.WrapInvalid(fmt.Errorf("%s", strings.Join(msgs, "; ")), "component", "ConfigSchema.Validate", typeName)
}
