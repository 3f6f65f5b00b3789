package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	invjs "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schemas are reflected from the wire types, so the Go structs stay the
// single source of truth for the message shapes.
type schemaSet struct {
	config    *jsonschema.Schema
	intention *jsonschema.Schema
	snapshot  *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     schemaSet
	schemasErr  error
)

func loadSchemas() (schemaSet, error) {
	schemasOnce.Do(func() {
		var s schemaSet
		if s.config, schemasErr = compileSchema("scenario_config", &ScenarioConfig{}); schemasErr != nil {
			return
		}
		if s.intention, schemasErr = compileSchema("intention_set", &IntentionSet{}); schemasErr != nil {
			return
		}
		if s.snapshot, schemasErr = compileSchema("snapshot", &Snapshot{}); schemasErr != nil {
			return
		}
		schemas = s
	})
	return schemas, schemasErr
}

// SchemaJSON returns the JSON schema document for one message kind.
func SchemaJSON(kind MessageKind) ([]byte, error) {
	switch kind {
	case KindScenarioConfig:
		return reflectSchema(&ScenarioConfig{})
	case KindIntentions:
		return reflectSchema(&IntentionSet{})
	case KindSnapshot:
		return reflectSchema(&Snapshot{})
	}
	return nil, fmt.Errorf("schema: unknown message kind %d", kind)
}

func reflectSchema(v any) ([]byte, error) {
	r := &invjs.Reflector{}
	return json.MarshalIndent(r.Reflect(v), "", "  ")
}

func compileSchema(name string, v any) (*jsonschema.Schema, error) {
	b, err := reflectSchema(v)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	url := "mem://rescuesim/" + name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return s, nil
}
