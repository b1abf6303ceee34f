package validation

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/appspec/pkg/schema"
)

//go:embed metaschema.json
var defaultMetaSchema []byte

const defaultMetaSchemaURL = "https://appspec.dev/schemas/app-spec.json"

// MetaValidator checks the static shape of whole spec documents against the
// meta-schema. It is compiled once and safe for concurrent use.
type MetaValidator struct {
	schema *jsonschema.Schema
}

// NewMetaValidator compiles the meta-schema at path, or the embedded default
// when path is empty.
func NewMetaValidator(path string) (*MetaValidator, error) {
	data := defaultMetaSchema
	url := defaultMetaSchemaURL
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve meta-schema path: %w", err)
		}
		if data, err = os.ReadFile(abs); err != nil {
			return nil, fmt.Errorf("read meta-schema: %w", err)
		}
		url = "file://" + filepath.ToSlash(abs)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal meta-schema: %w", err)
	}
	c := newDraft4Compiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add meta-schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile meta-schema: %w", err)
	}
	return &MetaValidator{schema: compiled}, nil
}

// Validate checks a dereferenced spec document. Violations are reported as a
// single INVALID_API error listing every failing location.
func (m *MetaValidator) Validate(doc map[string]any, prefix string) error {
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.InvalidApi("%s spec is not JSON-serializable: %s", prefix, err.Error()).WithCause(err)
	}
	if err := m.schema.Validate(value); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return schema.InvalidApi("%s spec is invalid: %s", prefix, err.Error()).WithCause(err)
		}
		return schema.InvalidApi("%s spec does not conform to the meta-schema", prefix).
			WithErrors(collectViolations(verr)).
			WithCause(err)
	}
	return nil
}
