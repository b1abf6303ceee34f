package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// ConstraintViolation is returned when a value does not satisfy a schema
// fragment. Violations holds one message per failing keyword; Keywords holds
// the same failures naming only the location and keyword, never the value.
type ConstraintViolation struct {
	Violations []string
	Keywords   []string
}

func (e *ConstraintViolation) Error() string {
	return strings.Join(e.Violations, "; ")
}

// Redacted renders the violation without echoing any part of the value.
func (e *ConstraintViolation) Redacted() string {
	if len(e.Keywords) == 0 {
		return "value rejected"
	}
	return strings.Join(e.Keywords, "; ")
}

// SchemaCompileError is returned when a fragment is not a valid Draft 4 schema.
type SchemaCompileError struct {
	Err error
}

func (e *SchemaCompileError) Error() string { return "invalid schema: " + e.Err.Error() }

func (e *SchemaCompileError) Unwrap() error { return e.Err }

// ConstraintValidator checks values against JSON Schema Draft 4 fragments
// with format assertions enabled. Compiled fragments are cached by their
// canonical JSON text. It is safe for concurrent use.
type ConstraintValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewConstraintValidator creates an empty ConstraintValidator.
func NewConstraintValidator() *ConstraintValidator {
	return &ConstraintValidator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Check compiles fragment without validating any value.
func (v *ConstraintValidator) Check(fragment map[string]any) error {
	_, err := v.getOrCompile(fragment)
	return err
}

// Validate checks value against fragment. It returns a *ConstraintViolation
// when the value does not conform and a *SchemaCompileError when the
// fragment itself is unusable.
func (v *ConstraintValidator) Validate(value any, fragment map[string]any) error {
	compiled, err := v.getOrCompile(fragment)
	if err != nil {
		return err
	}

	doc, err := toJSONValue(value)
	if err != nil {
		return &ConstraintViolation{Violations: []string{fmt.Sprintf("value is not JSON-serializable: %s", err.Error())}}
	}

	if err := compiled.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return &ConstraintViolation{Violations: []string{err.Error()}}
		}
		return &ConstraintViolation{
			Violations: collectViolations(verr),
			Keywords:   collectKeywords(verr),
		}
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *ConstraintValidator) getOrCompile(fragment map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(fragment)
	if err != nil {
		return nil, &SchemaCompileError{Err: fmt.Errorf("marshal schema: %w", err)}
	}
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, &SchemaCompileError{Err: fmt.Errorf("unmarshal schema: %w", err)}
	}

	// Each fragment gets a unique URL within its own compiler.
	url := fmt.Sprintf("appspec://parameter/%d.json", len(v.cache))
	c := newDraft4Compiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, &SchemaCompileError{Err: fmt.Errorf("add schema resource: %w", err)}
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, &SchemaCompileError{Err: err}
	}

	v.cache[key] = compiled
	return compiled, nil
}

// newDraft4Compiler creates a Compiler defaulting to Draft 4 with format
// assertions, matching how app specs declare their constraints.
func newDraft4Compiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft4)
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and collects leaf messages
// prefixed with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		msg := verr.Error()
		if verr.ErrorKind != nil {
			msg = verr.ErrorKind.LocalizedString(printer)
		}
		return []string{fmt.Sprintf("%s: %s", loc, msg)}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// collectKeywords is collectViolations reduced to location and keyword path.
func collectKeywords(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		keyword := "schema"
		if verr.ErrorKind != nil && len(verr.ErrorKind.KeywordPath()) > 0 {
			keyword = strings.Join(verr.ErrorKind.KeywordPath(), "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, keyword)}
	}

	var keywords []string
	for _, cause := range verr.Causes {
		keywords = append(keywords, collectKeywords(cause)...)
	}
	return keywords
}
