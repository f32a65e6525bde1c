package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"roiquant/internal/logging"
	"roiquant/pkg/config"
	apperr "roiquant/pkg/errors"
	"roiquant/pkg/quantification"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

type app struct {
	cfg    *config.Config
	logger logging.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInput:
		return 2
	case apperr.KindComputation:
		return 3
	case apperr.KindReferenceData:
		return 4
	}
	return 1
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:     "roiquant",
		Short:   "Regional brain volume quantification against normative cohorts",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (defaults apply when empty)")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files overlaid on the config")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newRunCommand(a), newBatchCommand(a), newInitConfigCommand())
	return cmd
}

func (a *app) init(opts *rootOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(opts.envFiles...); err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return apperr.Wrap(err, apperr.KindInput, "invalid configuration")
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) quantifier() (*quantification.Quantifier, error) {
	refs, err := quantification.LoadReferences(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return quantification.NewQuantifier(a.cfg, refs, a.logger), nil
}

func newRunCommand(a *app) *cobra.Command {
	var p quantification.Params

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Quantify one case",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.quantifier()
			if err != nil {
				return err
			}

			start := time.Now()
			b, err := q.Process(cmd.Context(), p)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Case %s quantified in %.2f seconds\n", b.CaseID, time.Since(start).Seconds())
			fmt.Fprintf(out, "Run ID:          %s\n", b.RunID)
			fmt.Fprintf(out, "Z-scored regions: %d\n", len(b.ZScores.Scores))
			fmt.Fprintf(out, "Flags:           %d\n", len(b.Flags))
			fmt.Fprintf(out, "Artifacts in:    %s\n", p.OutputDir())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.ROIPath, "roi", "", "multi-label segmentation (NIfTI)")
	f.StringSliceVar(&p.ICVPaths, "icv", nil, "intracranial volume mask (exactly one)")
	f.StringSliceVar(&p.WMLSPaths, "wmls", nil, "white matter lesion mask (optional)")
	f.StringVar(&p.DemographicsPath, "demographics", "", "demographics file (.json or .csv)")
	f.StringVar(&p.OutputPath, "output", "", "report path; artifacts are written next to it")
	for _, name := range []string{"roi", "demographics", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newBatchCommand(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <manifest.yaml>",
		Short: "Quantify every case listed in a batch manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := quantification.LoadBatchManifest(args[0])
			if err != nil {
				return err
			}
			q, err := a.quantifier()
			if err != nil {
				return err
			}

			limit := a.cfg.Processing.NumCores
			if concurrency > 0 {
				limit = concurrency
			}
			results := q.RunBatch(cmd.Context(), manifest.Cases, limit)

			out := cmd.OutOrStdout()
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = "FAILED: " + r.Err.Error()
				}
				fmt.Fprintf(out, "%-32s %8.2fs  %s\n", r.CaseID, r.Elapsed.Seconds(), status)
			}

			if failed := quantification.Failed(results); failed > 0 {
				return fmt.Errorf("%d of %d cases failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "cases processed at once (default: processing.numCores)")
	return cmd
}

func newInitConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a config file holding the default values",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultConfigFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default configuration written to %s\n", args[0])
			return nil
		},
	}
}
