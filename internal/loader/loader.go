// Package loader validates the app specs of many apps concurrently and
// records one report per app.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/appspec/internal/logging"
	"github.com/rendis/appspec/internal/store"
	"github.com/rendis/appspec/internal/validation"
	"github.com/rendis/appspec/pkg/schema"
)

// DefaultPoolSize bounds concurrent validations when Config.PoolSize is unset.
const DefaultPoolSize = 4

// Source is one app spec to validate. Document takes priority over Path;
// when BaseURI is empty it is derived from Path.
type Source struct {
	App      string
	Path     string
	Document map[string]any
	BaseURI  string
}

// Result is the outcome for one Source. Err is the fatal validation error,
// if any; SaveErr is set when the report could not be persisted.
type Result struct {
	Source  Source
	Spec    *schema.AppSpec
	Report  store.Report
	Err     error
	SaveErr error
}

// ReportSink persists reports. Satisfied by store.Store.
type ReportSink interface {
	SaveReport(ctx context.Context, report *store.Report) error
}

// Config configures a Loader.
type Config struct {
	Validator *validation.AppValidator
	PoolSize  int
	// Sink receives every report; nil keeps reports in memory only.
	Sink   ReportSink
	Logger *slog.Logger
}

// Loader validates app specs through an AppValidator.
type Loader struct {
	validator *validation.AppValidator
	poolSize  int
	sink      ReportSink
	logger    *slog.Logger
}

// New creates a Loader.
func New(cfg Config) (*Loader, error) {
	if cfg.Validator == nil {
		return nil, errors.New("loader requires an app validator")
	}
	size := cfg.PoolSize
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Loader{
		validator: cfg.Validator,
		poolSize:  size,
		sink:      cfg.Sink,
		logger:    logging.OrDefault(cfg.Logger),
	}, nil
}

// LoadApps validates every source and returns the results in input order.
// One app failing never stops the others. The returned error is non-nil only
// when ctx ends before every source was scheduled; the results then hold
// the sources that did run.
func (l *Loader) LoadApps(ctx context.Context, sources []Source) ([]Result, error) {
	results := make([]Result, len(sources))
	pool := NewPool(l.poolSize)
	defer pool.Shutdown()

	var submitErr error
	for i := range sources {
		results[i].Source = sources[i]
		err := pool.Submit(ctx, func(ctx context.Context) error {
			results[i] = l.load(ctx, sources[i])
			return results[i].Err
		}, func(err error) {
			var pe *PanicError
			if errors.As(err, &pe) {
				l.logger.Error("app validation panicked", slog.String("app", sources[i].App), slog.Any("panic", pe.Value))
				results[i] = Result{Source: sources[i], Err: schema.InvalidApi("App %s: %s", sources[i].App, pe.Error())}
				results[i].Report = NewReport(sources[i].App, sourceName(sources[i]), results[i].Err, nil, 0)
			}
		})
		if err != nil {
			submitErr = err
			results = results[:i]
			break
		}
	}
	pool.Wait()

	m := pool.Metrics()
	l.logger.Info("apps loaded",
		slog.Int("apps", len(results)),
		slog.Int64("valid", m.Completed),
		slog.Int64("invalid", m.Failed),
	)
	return results, submitErr
}

// Load validates a single source synchronously.
func (l *Loader) Load(ctx context.Context, src Source) Result {
	return l.load(ctx, src)
}

func (l *Loader) load(ctx context.Context, src Source) Result {
	res := Result{Source: src}
	start := time.Now()
	logger := logging.LogWith(logging.WithApp(ctx, src.App), l.logger)

	var diags *schema.Diagnostics
	doc, baseURI, err := resolveSource(src)
	if err == nil {
		res.Spec, diags, err = l.validator.ValidateAppSpec(ctx, src.App, doc, baseURI)
	}
	res.Err = err
	res.Report = NewReport(src.App, sourceName(src), err, diags, time.Since(start))

	if err != nil {
		logger.Warn("app spec rejected", slog.String("error", err.Error()))
	} else {
		logger.Debug("app spec accepted", slog.Int("warnings", len(res.Report.Warnings)))
	}

	if l.sink != nil {
		if serr := l.sink.SaveReport(ctx, &res.Report); serr != nil {
			res.SaveErr = serr
			logger.Error("failed to save report", slog.String("error", serr.Error()))
		}
	}
	return res
}

// NewReport builds the report of one validation pass.
func NewReport(app, source string, err error, diags *schema.Diagnostics, elapsed time.Duration) store.Report {
	r := store.Report{
		ID:         uuid.New().String(),
		App:        app,
		Source:     source,
		Valid:      err == nil,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if diags != nil {
		r.Warnings = diags.Warnings
	}
	if err == nil {
		return r
	}
	var appErr *schema.AppError
	if errors.As(err, &appErr) {
		r.Code = appErr.Code
		r.Message = appErr.Message
		r.Errors = appErr.Errors
	} else {
		r.Message = err.Error()
	}
	return r
}

func resolveSource(src Source) (map[string]any, string, error) {
	doc := src.Document
	if doc == nil {
		if src.Path == "" {
			return nil, "", schema.InvalidApi("App %s has neither a document nor a path", src.App)
		}
		var err error
		if doc, err = validation.LoadDocument(src.Path); err != nil {
			return nil, "", schema.InvalidApi("App %s: %s", src.App, err.Error()).WithCause(err)
		}
	}
	baseURI := src.BaseURI
	if baseURI == "" && src.Path != "" {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s: %w", src.Path, err)
		}
		baseURI = "file://" + filepath.ToSlash(abs)
	}
	return doc, baseURI, nil
}

func sourceName(src Source) string {
	if src.Path != "" {
		return src.Path
	}
	return src.BaseURI
}
