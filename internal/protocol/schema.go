package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaOnce      sync.Once
	schemaErr       error
	submitSchema    *jsonschema.Schema
	narrativeSchema *jsonschema.Schema
)

func compileSchemas() {
	compile := func(name string) (*jsonschema.Schema, error) {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		return s, nil
	}
	if submitSchema, schemaErr = compile("action_submit.json"); schemaErr != nil {
		return
	}
	narrativeSchema, schemaErr = compile("narrative_response.json")
}

func validateAgainst(s *jsonschema.Schema, raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return s.Validate(v)
}

// ValidateSubmit checks a raw SubmitRequest body against the embedded
// schema, including the per-action-type payload shape.
func ValidateSubmit(raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	return validateAgainst(submitSchema, raw)
}

// ValidateNarrative checks a reasoning collaborator response body.
func ValidateNarrative(raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	return validateAgainst(narrativeSchema, raw)
}
