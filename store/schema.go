package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/invopop/jsonschema"

	jsv "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/boxesandglue/restyle"
)

// SchemaURL identifies the configuration file schema.
const SchemaURL = "https://github.com/boxesandglue/restyle/config.schema.json"

// ValidationError is a schema violation in a configuration file. Path can be
// used with [yaml.Path.AnnotateSource] to point at the offending line.
type ValidationError struct {
	Path   *yaml.Path
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Path != nil {
		return fmt.Sprintf("error at %s: %s", e.Path.String(), e.Detail)
	}

	return "validation error: " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Schema returns the JSON schema of a configuration file: an object mapping
// namespaces to configurations.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	cfg := r.Reflect(&restyle.Config{})
	cfg.Version = ""
	cfg.Title = "Namespace configuration"

	root := &jsonschema.Schema{
		Version:              jsonschema.Version,
		ID:                   SchemaURL,
		Title:                "restyle configuration",
		Type:                 "object",
		AdditionalProperties: cfg,
	}

	b, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return b, nil
}

// Validator validates configuration files against [Schema].
// Uses [github.com/santhosh-tekuri/jsonschema/v6].
type Validator struct {
	schema *jsv.Schema
}

// NewValidator compiles [Schema].
func NewValidator() (*Validator, error) {
	data, err := Schema()
	if err != nil {
		return nil, err
	}

	doc, err := jsv.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	compiler := jsv.NewCompiler()
	err = compiler.AddResource(SchemaURL, doc)
	if err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	jss, err := compiler.Compile(SchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: jss}, nil
}

var defaultValidator = sync.OnceValues(NewValidator)

// ValidateJSON validates a JSON encoded configuration file.
func (v *Validator) ValidateJSON(data []byte) error {
	doc, err := jsv.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	err = v.schema.Validate(doc)
	if err == nil {
		return nil
	}

	var verr *jsv.ValidationError
	if !errors.As(err, &verr) {
		return fmt.Errorf("schema validation: %w", err)
	}

	return &ValidationError{
		Path:   pathFromLocation(deepestLocation(verr)),
		Err:    verr,
		Detail: verr.Error(),
	}
}

// ValidateYAML validates a YAML encoded configuration file.
func (v *Validator) ValidateYAML(data []byte) error {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}

	return v.ValidateJSON(j)
}

// deepestLocation returns the longest instance location among err and its
// causes.
func deepestLocation(err *jsv.ValidationError) []string {
	longest := err.InstanceLocation
	for _, cause := range err.Causes {
		if loc := deepestLocation(cause); len(loc) > len(longest) {
			longest = loc
		}
	}

	return longest
}

func pathFromLocation(location []string) *yaml.Path {
	b := (&yaml.PathBuilder{}).Root()
	for _, part := range location {
		var index uint
		if _, err := fmt.Sscanf(part, "%d", &index); err == nil {
			b = b.Index(index)
		} else {
			b = b.Child(part)
		}
	}

	return b.Build()
}
