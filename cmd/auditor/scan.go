package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"repoaudit/internal/audit"
	"repoaudit/internal/cache"
	"repoaudit/internal/merge"
	"repoaudit/internal/progress"
	"repoaudit/internal/source"
	"repoaudit/internal/types"
)

type scanOptions struct {
	dir      string
	revision string
	format   string
	out      string
	model    string
	noCache  bool
	quiet    bool
}

func newScanCmd(a *app) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan [owner/repo[@ref]]",
		Short: "Run one audit and print the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scan(cmd.Context(), opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "", "audit a local directory instead of fetching from GitHub")
	f.StringVar(&opts.revision, "revision", "", "revision used as the cache key for --dir")
	f.StringVarP(&opts.format, "format", "f", "markdown", "markdown, json or sarif")
	f.StringVarP(&opts.out, "out", "o", "", "write the report to a file instead of stdout")
	f.StringVar(&opts.model, "model", "", "override the configured model")
	f.BoolVar(&opts.noCache, "no-cache", false, "ignore and do not update the scan cache")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func (a *app) scan(ctx context.Context, opts *scanOptions, args []string) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	switch format {
	case "markdown", "md", "json", "sarif":
	default:
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	req := audit.Request{Provider: a.cfg.Provider, NoCache: opts.noCache}
	if opts.model != "" {
		req.Provider.Model = opts.model
	}
	switch {
	case opts.dir != "":
		abs, err := filepath.Abs(opts.dir)
		if err != nil {
			return err
		}
		req.Repo = types.RepoRef{Owner: "local", Name: filepath.Base(abs)}
		if len(args) == 1 {
			if req.Repo, err = types.ParseRepoRef(args[0]); err != nil {
				return err
			}
		}
		req.Files, err = source.LoadDir(ctx, abs, source.Limits{
			MaxArchiveBytes: a.cfg.Fetch.MaxArchiveBytes,
			MaxFileBytes:    a.cfg.Fetch.MaxFileBytes,
		})
		if err != nil {
			return err
		}
		req.Revision = opts.revision
	case len(args) == 1:
		ref, err := types.ParseRepoRef(args[0])
		if err != nil {
			return err
		}
		req.Repo = ref
	default:
		return fmt.Errorf("pass owner/repo or --dir")
	}

	scanCache, err := cache.Open(ctx, a.cfg.Cache, a.log)
	if err != nil {
		a.log.Sugar().Warnf("scan cache disabled: %v", err)
		scanCache = cache.New(nil, a.log)
	}
	defer scanCache.Close()

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("auditing "+req.Repo.String()),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(!opts.quiet),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
	)
	ctx = progress.WithEmitter(ctx, progress.Func(func(e progress.Event) {
		if e.Message != "" {
			bar.Describe(e.Message)
		}
		_ = bar.Set(e.Progress)
	}))

	report, err := audit.FromConfig(a.cfg, scanCache, a.log).Run(ctx, req)
	_ = bar.Finish()
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if opts.out != "" {
		file, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return writeReport(w, format, report)
}

func writeReport(w io.Writer, format string, r *types.ScanReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "sarif":
		return merge.WriteSARIF(w, *r)
	default:
		_, err := io.WriteString(w, r.RenderedSummary)
		return err
	}
}
