// Package schema wraps JSON Schema documents that products publish for their
// constraints and order parameters, together with a compiled validator.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sudo-init-do/tasking/internal/apperr"
	"github.com/sudo-init-do/tasking/internal/model"
)

type Schema struct {
	name     string
	doc      json.RawMessage
	compiled *jsonschema.Schema
}

// New compiles doc. name only identifies the schema in errors.
func New(name string, doc []byte) (*Schema, error) {
	if !json.Valid(doc) {
		return nil, fmt.Errorf("schema %s: not valid JSON", name)
	}
	url := "mem://schemas/" + name + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return &Schema{name: name, doc: slices.Clone(doc), compiled: compiled}, nil
}

// MustNew is New for schemas known at compile time.
func MustNew(name string, doc string) *Schema {
	s, err := New(name, []byte(doc))
	if err != nil {
		panic(err)
	}
	return s
}

// FromValue compiles a schema held as a decoded value, e.g. from YAML.
func FromValue(name string, v any) (*Schema, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return New(name, b)
}

func (s *Schema) Name() string { return s.name }

// Document is the schema as published.
func (s *Schema) Document() json.RawMessage { return s.doc }

func (s *Schema) MarshalJSON() ([]byte, error) { return s.doc, nil }

// Properties lists the top-level property names, sorted.
func (s *Schema) Properties() []string {
	var d struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(s.doc, &d); err != nil {
		return nil
	}
	names := make([]string, 0, len(d.Properties))
	for k := range d.Properties {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Validate checks raw against the schema. Failures come back as a
// ConstraintsError whose detail lists each violation under loc.
func (s *Schema) Validate(raw json.RawMessage, loc ...string) error {
	base := append([]string{"body"}, loc...)

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return &apperr.ConstraintsError{Detail: []model.FieldError{{Loc: base, Msg: "invalid JSON"}}}
	}

	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("schema %s: %w", s.name, err)
	}
	var out []model.FieldError
	collect(ve, base, &out)
	return &apperr.ConstraintsError{Detail: out}
}

func collect(ve *jsonschema.ValidationError, base []string, out *[]model.FieldError) {
	if len(ve.Causes) == 0 {
		loc := slices.Clone(base)
		for _, part := range strings.Split(strings.TrimPrefix(ve.InstanceLocation, "/"), "/") {
			if part != "" {
				loc = append(loc, part)
			}
		}
		*out = append(*out, model.FieldError{Loc: loc, Msg: ve.Message})
		return
	}
	for _, c := range ve.Causes {
		collect(c, base, out)
	}
}
