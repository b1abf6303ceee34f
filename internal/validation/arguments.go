package validation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/appspec/internal/expressions"
	"github.com/rendis/appspec/internal/logging"
	"github.com/rendis/appspec/pkg/schema"
)

// ResolveArguments produces the coerced parameter mapping for one invocation.
// Every declared parameter is processed before any failure is reported; all
// failures are returned together as a single INVALID_ARGUMENT error whose
// Errors lists each sub-message.
//
// A reference argument is left out of the result when acc is nil, which
// allows checking a call site before anything has executed. A default that
// does not satisfy its own schema is logged and used unmodified.
func (v *Validator) ResolveArguments(
	ctx context.Context,
	params []*schema.ParameterSchema,
	args []expressions.Argument,
	prefix string,
	acc expressions.Accumulator,
) (map[string]any, error) {
	logger := logging.LogWith(ctx, v.logger)

	supplied := make(map[string]expressions.Argument, len(args))
	for _, arg := range args {
		if _, dup := supplied[arg.Name]; !dup {
			supplied[arg.Name] = arg
		}
	}

	converted := make(map[string]any, len(params))
	resolved := make(map[string]struct{}, len(params))
	var errs []string

	for _, p := range params {
		paramPrefix := prefix + " parameter " + p.Name

		if arg, ok := supplied[p.Name]; ok {
			resolved[p.Name] = struct{}{}
			value, err := arg.GetValue(acc)
			if err != nil {
				errs = append(errs, messageOf(err))
				continue
			}
			if acc == nil && arg.IsRef() {
				continue
			}
			out, err := v.ValidateParameter(value, p, paramPrefix)
			if err != nil {
				errs = append(errs, messageOf(err))
				continue
			}
			converted[p.Name] = out
			continue
		}

		switch {
		case p.HasDefault:
			out, err := v.ValidateParameter(p.Default, p, paramPrefix)
			if err != nil {
				logger.Warn("default input does not conform to schema, using it anyway",
					"prefix", prefix,
					"parameter", p.Name,
					"error", messageOf(err),
				)
				out = schema.DeepCopy(p.Default)
			}
			converted[p.Name] = out
			resolved[p.Name] = struct{}{}
		case p.Required:
			errs = append(errs, fmt.Sprintf("For %s: Parameter %s is not specified and has no default", prefix, p.Name))
		default:
			converted[p.Name] = nil
			resolved[p.Name] = struct{}{}
		}
	}

	var extra []string
	for name := range supplied {
		if _, ok := resolved[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		errs = append(errs, fmt.Sprintf("For %s: Too many arguments. Extra arguments: %s", prefix, strings.Join(extra, ", ")))
	}

	if len(errs) > 0 {
		logger.Debug("argument validation failed", "prefix", prefix, "failures", len(errs))
		return nil, schema.InvalidArgument("Invalid arguments").WithErrors(errs)
	}
	return converted, nil
}

// ValidateActionArguments resolves the arguments of an app action.
func (v *Validator) ValidateActionArguments(ctx context.Context, params []*schema.ParameterSchema, args []expressions.Argument, app, action string, acc expressions.Accumulator) (map[string]any, error) {
	ctx = logging.WithAction(logging.WithApp(ctx, app), action)
	return v.ResolveArguments(ctx, params, args, fmt.Sprintf("app %s action %s", app, action), acc)
}

// ValidateConditionArguments resolves the arguments of a condition.
func (v *Validator) ValidateConditionArguments(ctx context.Context, params []*schema.ParameterSchema, args []expressions.Argument, condition string, acc expressions.Accumulator) (map[string]any, error) {
	return v.ResolveArguments(logging.WithAction(ctx, condition), params, args, "condition "+condition, acc)
}

// ValidateTransformArguments resolves the arguments of a transform.
func (v *Validator) ValidateTransformArguments(ctx context.Context, params []*schema.ParameterSchema, args []expressions.Argument, transform string, acc expressions.Accumulator) (map[string]any, error) {
	return v.ResolveArguments(logging.WithAction(ctx, transform), params, args, "transform "+transform, acc)
}

// messageOf returns the message of an AppError without its code, so
// aggregated sub-messages read as plain sentences.
func messageOf(err error) string {
	var appErr *schema.AppError
	if errors.As(err, &appErr) {
		if len(appErr.Errors) > 0 {
			return appErr.Message + ": " + strings.Join(appErr.Errors, "; ")
		}
		return appErr.Message
	}
	return err.Error()
}
