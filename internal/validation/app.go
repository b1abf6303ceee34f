package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rendis/appspec/internal/actions"
	"github.com/rendis/appspec/internal/logging"
	"github.com/rendis/appspec/pkg/schema"
)

// AppValidatorConfig configures an AppValidator.
type AppValidatorConfig struct {
	// Meta is the compiled meta-schema; nil uses the embedded default.
	Meta *MetaValidator
	// Registry resolves the callables named by "run". Required.
	Registry actions.CallableRegistry
	// Validator checks parameter declarations; nil creates one.
	Validator *Validator
	// Documents are external documents that "$ref" may point into, keyed
	// by URI relative to the spec's base URI.
	Documents map[string]any
	Logger    *slog.Logger
}

// AppValidator cross-checks a whole app spec against the meta-schema and
// against the callables the app registered.
type AppValidator struct {
	meta      *MetaValidator
	registry  actions.CallableRegistry
	params    *Validator
	documents map[string]any
	logger    *slog.Logger
}

// NewAppValidator creates an AppValidator.
func NewAppValidator(cfg AppValidatorConfig) (*AppValidator, error) {
	if cfg.Registry == nil {
		return nil, errors.New("app validator requires a callable registry")
	}
	logger := logging.OrDefault(cfg.Logger)
	meta := cfg.Meta
	if meta == nil {
		var err error
		if meta, err = NewMetaValidator(""); err != nil {
			return nil, err
		}
	}
	params := cfg.Validator
	if params == nil {
		params = NewValidator(logger)
	}
	return &AppValidator{
		meta:      meta,
		registry:  cfg.Registry,
		params:    params,
		documents: cfg.Documents,
		logger:    logger,
	}, nil
}

// Validator returns the parameter validator used for declarations, for
// reuse when validating runtime arguments against the returned spec.
func (a *AppValidator) Validator() *Validator {
	return a.params
}

// ValidateAppSpec validates the spec document of app located at baseURI and
// returns it parsed and dereferenced. Any fatal inconsistency is returned as
// an INVALID_API error; non-fatal findings are logged and returned in the
// diagnostics.
func (a *AppValidator) ValidateAppSpec(ctx context.Context, app string, doc map[string]any, baseURI string) (*schema.AppSpec, *schema.Diagnostics, error) {
	ctx = logging.WithApp(ctx, app)
	logger := logging.LogWith(ctx, a.logger)
	diags := &schema.Diagnostics{}

	resolver, err := NewResolver(baseURI, doc, a.documents)
	if err != nil {
		return nil, diags, schema.InvalidApi("App %s has an invalid base uri: %s", app, err.Error()).WithCause(err)
	}
	deref, err := resolver.DerefMap(doc)
	if err != nil {
		return nil, diags, wrapInvalidApi(err, "App %s", app)
	}
	if err := a.meta.Validate(deref, "App "+app); err != nil {
		return nil, diags, err
	}

	spec, err := schema.ParseAppSpec(deref)
	if err != nil {
		return nil, diags, wrapInvalidApi(err, "App %s", app)
	}

	if err := a.validateActions(app, spec.Actions, diags); err != nil {
		return nil, diags, err
	}
	if err := a.validateConditionTransforms(app, actions.KindCondition, spec.Conditions, diags); err != nil {
		return nil, diags, err
	}
	if err := a.validateConditionTransforms(app, actions.KindTransform, spec.Transforms, diags); err != nil {
		return nil, diags, err
	}
	if err := validateDefinitions(resolver, spec.Definitions); err != nil {
		return nil, diags, err
	}
	if err := a.validateDevices(logger, app, spec.Devices); err != nil {
		return nil, diags, err
	}

	for _, w := range diags.Warnings {
		logger.Warn(w.Message, "context", w.Context)
	}
	logger.Debug("app spec validated",
		"actions", len(spec.Actions),
		"conditions", len(spec.Conditions),
		"transforms", len(spec.Transforms),
		"devices", len(spec.Devices),
	)
	return spec, diags, nil
}

func (a *AppValidator) validateActions(app string, declared map[string]*schema.ActionSpec, diags *schema.Diagnostics) error {
	seen := make(map[string]struct{}, len(declared))
	for _, name := range sortedActionNames(declared) {
		action := declared[name]
		callable, err := a.registry.Resolve(app, actions.KindAction, action.Run)
		if err != nil {
			return schema.InvalidApi("Action %s has \"run\" property %s which is not defined in App %s", name, action.Run, app).WithCause(err)
		}
		if err := CheckSignature(action, callable, app, actions.KindAction, diags); err != nil {
			return err
		}
		if err := a.checkParameters(action, fmt.Sprintf("App %s action %s", app, name)); err != nil {
			return err
		}
		if action.DefaultReturn != "" && !action.HasReturn(action.DefaultReturn) {
			return schema.InvalidApi("App %s action %s: Default return %s not in defined return codes [%s]",
				app, name, action.DefaultReturn, strings.Join(action.Returns, ", "))
		}
		var reserved []string
		for _, code := range action.Returns {
			if schema.IsReservedReturnCode(code) {
				reserved = append(reserved, code)
			}
		}
		if len(reserved) > 0 {
			return schema.InvalidApi("App %s action %s has return codes [%s] which are reserved", app, name, strings.Join(reserved, ", "))
		}
		seen[action.Run] = struct{}{}
	}

	if missing := unreferenced(a.registry.ListDeclared(app, actions.KindAction), seen); len(missing) > 0 {
		diags.AddWarning("App "+app, fmt.Sprintf("App %s has defined the following actions which do not have a corresponding API: %s",
			app, strings.Join(missing, ", ")))
	}
	return nil
}

func (a *AppValidator) validateConditionTransforms(app string, kind actions.Kind, declared map[string]*schema.ActionSpec, diags *schema.Diagnostics) error {
	label := kind.Label()
	seen := make(map[string]struct{}, len(declared))
	for _, name := range sortedActionNames(declared) {
		action := declared[name]
		prefix := fmt.Sprintf("App %s %s action %s", app, strings.ToLower(label), name)
		callable, err := a.registry.Resolve(app, kind, action.Run)
		if err != nil {
			return schema.InvalidApi("%s has a \"run\" param %s which is not defined", prefix, action.Run).WithCause(err)
		}
		if err := validateDataIn(action, prefix); err != nil {
			return err
		}
		if err := CheckSignature(action, callable, app, kind, diags); err != nil {
			return err
		}
		if err := a.checkParameters(action, prefix); err != nil {
			return err
		}
		seen[action.Run] = struct{}{}
	}

	if missing := unreferenced(a.registry.ListDeclared(app, kind), seen); len(missing) > 0 {
		diags.AddWarning(label, fmt.Sprintf("Global %ss have defined the following actions which do not have a corresponding API: %s",
			strings.ToLower(label), strings.Join(missing, ", ")))
	}
	return nil
}

func (a *AppValidator) checkParameters(action *schema.ActionSpec, prefix string) error {
	for _, p := range action.Parameters {
		if err := a.params.CheckDeclaration(p, prefix+" parameter "+p.Name); err != nil {
			return err
		}
	}
	return nil
}

// validateDataIn requires the parameter that receives the data being
// evaluated to be declared and required.
func validateDataIn(action *schema.ActionSpec, prefix string) error {
	if action.DataIn == "" {
		return schema.InvalidApi("%s has no data_in param", prefix)
	}
	for _, p := range action.Parameters {
		if p.Name != action.DataIn {
			continue
		}
		if !p.Required {
			return schema.InvalidApi("%s has a data_in param %s which is not marked as required in the api. "+
				"Add \"required: true\" to parameter specification for %s", prefix, action.DataIn, action.DataIn)
		}
		return nil
	}
	return schema.InvalidApi("%s has a data_in param %s for which it does not have a corresponding parameter", prefix, action.DataIn)
}

func validateDefinitions(resolver *Resolver, definitions map[string]any) error {
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateDefinition(resolver, name, definitions[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateDefinition(resolver *Resolver, name string, definition any) error {
	target, err := resolver.Deref(definition)
	if err != nil {
		return wrapInvalidApi(err, "Definition %s", name)
	}
	def, ok := target.(map[string]any)
	if !ok {
		return nil
	}

	if branches, ok := def["allOf"].([]any); ok {
		for _, branch := range branches {
			if err := validateDefinition(resolver, name, branch); err != nil {
				return err
			}
		}
		return nil
	}

	props, _ := def["properties"].(map[string]any)
	required, _ := def["required"].([]any)
	var undefined []string
	for _, r := range required {
		prop, _ := r.(string)
		if _, ok := props[prop]; !ok {
			undefined = append(undefined, prop)
		}
	}
	if len(undefined) > 0 {
		sort.Strings(undefined)
		return schema.InvalidApi("Required list of properties for definition %s not defined: [%s]", name, strings.Join(undefined, ", "))
	}
	return nil
}

// validateDevices checks every device field declaration and requires each
// declared default to satisfy its own field schema.
func (a *AppValidator) validateDevices(logger *slog.Logger, app string, devices map[string]*schema.DeviceTypeApi) error {
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prefix := fmt.Sprintf("App %s device type %s", app, name)
		for _, field := range devices[name].Fields {
			if err := a.params.CheckDeclaration(field, prefix+" field "+field.Name); err != nil {
				return err
			}
			if !field.HasDefault {
				continue
			}
			if _, err := a.params.ValidateDeviceField(field, field.Default, prefix); err != nil {
				logger.Error("device field default does not conform to schema",
					"device_type", name,
					"field", field.Name,
					"error", messageOf(err),
				)
				return schema.InvalidApi("For %s: Default input %s does not conform to schema: %s", prefix, field.Name, messageOf(err)).WithCause(err)
			}
		}
	}
	return nil
}

func sortedActionNames(m map[string]*schema.ActionSpec) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// unreferenced returns the registered names not referenced by any "run".
func unreferenced(registered []string, seen map[string]struct{}) []string {
	var out []string
	for _, name := range registered {
		if _, ok := seen[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// wrapInvalidApi prefixes an INVALID_API error with its location and turns
// any other error into one.
func wrapInvalidApi(err error, format string, args ...any) error {
	prefix := fmt.Sprintf(format, args...)
	var appErr *schema.AppError
	if errors.As(err, &appErr) && appErr.Code == schema.ErrCodeInvalidApi {
		return schema.InvalidApi("%s: %s", prefix, appErr.Message).WithErrors(appErr.Errors).WithCause(err)
	}
	return schema.InvalidApi("%s: %s", prefix, err.Error()).WithCause(err)
}
