package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/appspec/internal/loader"
	"github.com/rendis/appspec/pkg/mcp"
)

func newServeCmd(config func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the appspec MCP tools over stdio",
		Long:  "Serve the appspec MCP tools over stdio. Specs listed in the manifest are validated at startup.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the MCP transport; logs go to stderr.
	st, err := newStack(ctx, cfg, stackOptions{withStore: true, logOut: os.Stderr})
	if err != nil {
		return err
	}
	defer st.close()

	srv := mcp.NewServer(mcp.ServerDeps{
		Loader:    st.loader,
		Validator: st.params,
		Store:     st.store,
		Vault:     st.vault,
		Logger:    st.logger,
	})
	preload(ctx, st, srv.Specs())

	st.logger.Info("serving MCP over stdio", slog.Bool("vault", st.vault != nil), slog.Bool("store", st.store != nil))
	return srv.Serve(ctx)
}

// preload validates the manifest's specs and caches the valid ones.
func preload(ctx context.Context, st *stack, specs *mcp.SpecCache) {
	sources, err := st.sources(nil, "")
	if err != nil {
		return
	}
	results, err := st.loader.LoadApps(ctx, sources)
	if err != nil {
		st.logger.Warn("spec preload interrupted", slog.String("error", err.Error()))
	}
	cacheValid(results, specs)
}

func cacheValid(results []loader.Result, specs *mcp.SpecCache) {
	for _, r := range results {
		if r.Err == nil && r.Spec != nil {
			specs.Put(r.Source.App, r.Spec)
		}
	}
}
