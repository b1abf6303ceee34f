package store

import (
	"time"

	"github.com/rendis/appspec/pkg/schema"
)

// Report is the persisted outcome of validating one app spec.
type Report struct {
	ID         string              `json:"id"`
	App        string              `json:"app"`
	Source     string              `json:"source,omitempty"`
	Valid      bool                `json:"valid"`
	Code       string              `json:"code,omitempty"`
	Message    string              `json:"message,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
	Warnings   []schema.Diagnostic `json:"warnings,omitempty"`
	DurationMs int64               `json:"duration_ms"`
	CreatedAt  time.Time           `json:"created_at"`
}

// ReportFilter narrows ListReports. Zero values match everything.
type ReportFilter struct {
	App   string
	Valid *bool
	Since *time.Time
	Limit int
}
