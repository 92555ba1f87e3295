package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var ErrUnknownType = errors.New("unknown message type")

var inboundSchemas = map[string]string{
	TypeHello:      "hello.schema.json",
	TypeJoin:       "join.schema.json",
	TypeReady:      "ready.schema.json",
	TypeForceStart: "bare.schema.json",
	TypeLeave:      "bare.schema.json",
	TypeCommand:    "command.schema.json",
	TypeSpawn:      "spawn.schema.json",
}

// Validator checks inbound client messages against the embedded schemas.
// Compiled schemas are immutable, so one Validator is shared by every
// connection.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiled := map[string]*jsonschema.Schema{}
	v := &Validator{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range inboundSchemas {
		s, ok := compiled[name]
		if !ok {
			raw, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				return nil, err
			}
			s, err = jsonschema.CompileString(name, string(raw))
			if err != nil {
				return nil, fmt.Errorf("compile %s: %w", name, err)
			}
			compiled[name] = s
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Validate decodes raw and checks it against the schema registered for typ.
func (v *Validator) Validate(typ string, raw []byte) error {
	s, ok := v.byType[typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.UseNumber()
	var doc any
	if err := d.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
