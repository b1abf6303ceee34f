package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/appspec/internal/loader"
)

type validateOptions struct {
	app     string
	baseURI string
	noStore bool
	asJSON  bool
}

func newValidateCmd(config func() (Config, error)) *cobra.Command {
	var opts validateOptions
	cmd := &cobra.Command{
		Use:   "validate [spec-file]...",
		Short: "Validate app spec files against the meta-schema and registered callables",
		Long: "Validate each spec file, or every app spec listed in the manifest when no file is given.\n" +
			"The app a file belongs to is taken from --app, then the manifest, then the file's directory name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config()
			if err != nil {
				return err
			}
			if opts.baseURI != "" {
				cfg.BaseURI = opts.baseURI
			}
			return runValidate(cmd, cfg, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.app, "app", "", "app name for a single spec file")
	f.StringVar(&opts.baseURI, "base-uri", "", "URI that relative $ref values resolve against")
	f.BoolVar(&opts.noStore, "no-store", false, "do not record reports in the database")
	f.BoolVar(&opts.asJSON, "json", false, "print reports as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, cfg Config, opts validateOptions, files []string) error {
	ctx := cmd.Context()
	st, err := newStack(ctx, cfg, stackOptions{withStore: !opts.noStore, logOut: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer st.close()

	sources, err := st.sources(files, opts.app)
	if err != nil {
		return err
	}
	results, err := st.loader.LoadApps(ctx, sources)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		if err := printJSON(out, results); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	invalid := 0
	for _, r := range results {
		if r.Err != nil {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d app specs are invalid", invalid, len(results))
	}
	return nil
}

func printResults(w io.Writer, results []loader.Result) {
	for _, r := range results {
		if r.Err == nil {
			fmt.Fprintf(w, "ok    %s (%s)\n", r.Source.App, r.Report.Source)
		} else {
			fmt.Fprintf(w, "FAIL  %s (%s)\n", r.Source.App, r.Report.Source)
			fmt.Fprintf(w, "      %s\n", r.Report.Message)
			for _, e := range r.Report.Errors {
				fmt.Fprintf(w, "      - %s\n", e)
			}
		}
		for _, warn := range r.Report.Warnings {
			fmt.Fprintf(w, "      warning: %s\n", warn.Message)
		}
	}
}

func printJSON(w io.Writer, results []loader.Result) error {
	reports := make([]any, 0, len(results))
	for _, r := range results {
		reports = append(reports, r.Report)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"reports": reports})
}
