package validation

import (
	"log/slog"

	"github.com/rendis/appspec/pkg/schema"
)

// Validator validates declared parameters and runtime values. The compiled
// constraint cache is shared across calls; parsed schemas are never mutated,
// so one Validator may serve many concurrent invocations.
type Validator struct {
	constraints *ConstraintValidator
	logger      *slog.Logger
}

// NewValidator creates a Validator. A nil logger uses slog.Default().
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		constraints: NewConstraintValidator(),
		logger:      logger,
	}
}

// Logger returns the logger the validator reports diagnostics to.
func (v *Validator) Logger() *slog.Logger {
	return v.logger
}

// CheckDeclaration compiles every constraint fragment reachable from p, so
// malformed constraints fail at load time instead of on first use.
func (v *Validator) CheckDeclaration(p *schema.ParameterSchema, prefix string) error {
	fragment := WithIdentifierDefaults(p.Validated().Fragment())
	if err := v.constraints.Check(fragment); err != nil {
		return schema.InvalidApi("%s has invalid constraints: %s", prefix, err.Error()).WithCause(err)
	}
	return nil
}
