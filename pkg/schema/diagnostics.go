package schema

// Diagnostic is a non-fatal finding recorded while validating an app spec.
type Diagnostic struct {
	Context string `json:"context"`
	Message string `json:"message"`
}

// Diagnostics aggregates the warnings produced by one validation pass.
type Diagnostics struct {
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

// AddWarning appends a warning.
func (d *Diagnostics) AddWarning(context, message string) {
	d.Warnings = append(d.Warnings, Diagnostic{Context: context, Message: message})
}

// Merge combines another Diagnostics into this one.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.Warnings = append(d.Warnings, other.Warnings...)
}

// Messages returns the warning messages in recording order.
func (d *Diagnostics) Messages() []string {
	out := make([]string, 0, len(d.Warnings))
	for _, w := range d.Warnings {
		out = append(out, w.Message)
	}
	return out
}
