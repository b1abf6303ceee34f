package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/appspec/internal/actions"
	"github.com/rendis/appspec/internal/loader"
	"github.com/rendis/appspec/internal/logging"
	"github.com/rendis/appspec/internal/secrets"
	"github.com/rendis/appspec/internal/store"
	"github.com/rendis/appspec/internal/validation"
)

const saltSize = 16

// stack is the wired set of components one command runs against.
type stack struct {
	cfg       Config
	logger    *slog.Logger
	manifest  *actions.Manifest
	registry  *actions.Registry
	params    *validation.Validator
	validator *validation.AppValidator
	loader    *loader.Loader
	store     store.Store
	vault     secrets.Vault
}

type stackOptions struct {
	// withStore opens the report database and, with a passphrase, the vault.
	withStore bool
	logOut    io.Writer
}

func newLogger(cfg Config, out io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}
	handler := logging.NewCorrelationHandler(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return slog.New(handler), nil
}

func newStack(ctx context.Context, cfg Config, opts stackOptions) (*stack, error) {
	logger, err := newLogger(cfg, opts.logOut)
	if err != nil {
		return nil, err
	}
	rt := &stack{cfg: cfg, logger: logger, registry: actions.NewRegistry()}

	if cfg.Manifest != "" {
		if rt.manifest, err = actions.LoadManifest(cfg.Manifest); err != nil {
			return nil, err
		}
		n, err := rt.manifest.Register(rt.registry)
		if err != nil {
			return nil, fmt.Errorf("register callables: %w", err)
		}
		logger.Debug("callables registered", slog.Int("count", n), slog.String("manifest", cfg.Manifest))
	} else {
		rt.manifest = &actions.Manifest{Apps: map[string]actions.ManifestApp{}}
	}

	meta, err := validation.NewMetaValidator(cfg.MetaSchema)
	if err != nil {
		return nil, err
	}
	rt.params = validation.NewValidator(logger)
	rt.validator, err = validation.NewAppValidator(validation.AppValidatorConfig{
		Meta:      meta,
		Registry:  rt.registry,
		Validator: rt.params,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	var sink loader.ReportSink
	if opts.withStore && cfg.DBPath != "" {
		if err := rt.openStore(ctx); err != nil {
			return nil, err
		}
		sink = rt.store
	}

	rt.loader, err = loader.New(loader.Config{
		Validator: rt.validator,
		PoolSize:  cfg.PoolSize,
		Sink:      sink,
		Logger:    logger,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *stack) openStore(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(rt.cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + rt.cfg.DBPath)
	if err != nil {
		return err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	rt.store = s

	if rt.cfg.VaultPassphrase == "" {
		return nil
	}
	salt, err := loadOrCreateSalt(rt.cfg.saltPath())
	if err != nil {
		rt.close()
		return err
	}
	vault, err := secrets.NewAESVault(s, secrets.VaultConfig{Passphrase: rt.cfg.VaultPassphrase, Salt: salt})
	if err != nil {
		rt.close()
		return err
	}
	rt.vault = vault
	return nil
}

func (rt *stack) close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("failed to close store", slog.String("error", err.Error()))
		}
		rt.store = nil
	}
}

// sources builds the loader sources for files, or for every manifest app
// with a spec when files is empty.
func (rt *stack) sources(files []string, app string) ([]loader.Source, error) {
	if len(files) == 0 {
		var out []loader.Source
		for _, name := range rt.manifest.AppNames() {
			if spec := rt.manifest.Apps[name].Spec; spec != "" {
				out = append(out, loader.Source{App: name, Path: spec, BaseURI: rt.cfg.BaseURI})
			}
		}
		if len(out) == 0 {
			return nil, errors.New("no spec files given and the manifest lists none")
		}
		return out, nil
	}
	if app != "" && len(files) > 1 {
		return nil, errors.New("--app can only be used with a single spec file")
	}
	out := make([]loader.Source, 0, len(files))
	for _, f := range files {
		name := app
		if name == "" {
			var ok bool
			if name, ok = rt.manifest.AppForSpec(f); !ok {
				name = appNameFromPath(f)
			}
		}
		out = append(out, loader.Source{App: name, Path: f, BaseURI: rt.cfg.BaseURI})
	}
	return out, nil
}

// appNameFromPath names an app after the directory holding its spec.
func appNameFromPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return filepath.Base(filepath.Dir(abs))
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < saltSize {
			return nil, fmt.Errorf("vault salt %s is truncated", path)
		}
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read vault salt: %w", err)
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate vault salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write vault salt: %w", err)
	}
	return salt, nil
}
