package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/enhancer/internal/batch"
	"github.com/olehluchkiv/enhancer/internal/classpath"
	"github.com/olehluchkiv/enhancer/internal/enhancer"
	"github.com/olehluchkiv/enhancer/internal/ledger"
	"github.com/olehluchkiv/enhancer/internal/report"
)

type enhanceFlags struct {
	all      bool
	manifest string
}

func newEnhanceCmd(a *app) *cobra.Command {
	var f enhanceFlags
	cmd := &cobra.Command{
		Use:   "enhance [class...]",
		Short: "Enhance entity classes",
		Long: `Enhance the named classes, every class in the classpath's directories
(--all), or the classes selected by a TOML manifest (--manifest).

Enhanced classes are written under --output, laid out by package. Classes
that are not entities, are already enhanced or opt out are skipped.

Examples:
  enhancer enhance --classpath build/classes:lib/* com.example.Order
  enhancer enhance --classpath build/classes --all --report yaml
  enhancer enhance --classpath build/classes --manifest enhance.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEnhance(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.all, "all", false, "enhance every class found in the classpath's directories")
	fl.StringVar(&f.manifest, "manifest", "", "TOML manifest selecting the classes to enhance")
	fl.String("classpath", "", "class search path, entries separated by the OS list separator")
	fl.String("output", "build/enhanced", "output directory for enhanced classes")
	fl.Int("workers", 4, "number of classes enhanced concurrently")
	fl.Bool("strict", false, "fail when a superclass outside the JDK cannot be loaded")
	fl.Bool("tag-interface", true, "also add the enhanced marker interface")
	fl.String("ledger", "", "SQLite ledger recording every outcome (disabled when empty)")
	fl.String("report", "text", "report format (text, yaml, mermaid)")
	fl.String("report-file", "", "write the report to this file instead of stdout")
	return cmd
}

func (a *app) runEnhance(cmd *cobra.Command, args []string, f enhanceFlags) error {
	cfg := a.cfg
	sp, err := classpath.Open(classpath.Split(cfg.Classpath), a.logger)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Close() }()

	names, err := selectClasses(sp, args, f)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no classes to enhance: name classes, or use --all or --manifest")
	}

	var (
		l     enhancer.Ledger
		store *ledger.Store
	)
	if cfg.Ledger != "" {
		store, err = ledger.Open(cfg.Ledger, a.logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		l = store
	}

	runner := batch.NewRunner(sp, batch.Options{
		Workers: cfg.Workers,
		Enhancer: enhancer.Options{
			Conventions:  cfg.AnalyzerConventions(),
			Hooks:        cfg.InstrumentHooks(),
			OutputDir:    cfg.OutputDir,
			Strict:       cfg.Strict,
			TagInterface: cfg.TagInterface,
		},
	}, l, a.logger)

	rep, runErr := runner.Run(cmd.Context(), names)
	if store != nil {
		a.logger.Info("outcomes recorded", "ledger", store.Path(), "run_id", runner.RunID())
	}
	if rep != nil {
		if err := writeReport(cmd.OutOrStdout(), cfg.Report.Output, cfg.Report.Format, rep); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if !rep.OK() {
		return fmt.Errorf("%d of %d classes failed", len(rep.Failures), len(names))
	}
	return nil
}

// selectClasses combines explicit names with directory discovery. A
// manifest filters what --all discovers, or everything when --all is not
// set.
func selectClasses(sp *classpath.SearchPath, args []string, f enhanceFlags) ([]string, error) {
	names := append([]string(nil), args...)
	if !f.all && f.manifest == "" {
		return names, nil
	}

	var dirs []string
	for _, src := range sp.Sources() {
		if d, ok := src.(*classpath.DirSource); ok {
			dirs = append(dirs, d.Root)
		}
	}
	discovered, err := batch.Discover(dirs...)
	if err != nil {
		return nil, err
	}

	m := &batch.Manifest{}
	if f.manifest != "" {
		if m, err = batch.LoadManifest(f.manifest); err != nil {
			return nil, err
		}
	}
	m.Classes = append(m.Classes, names...)
	return m.Select(discovered), nil
}

func writeReport(stdout io.Writer, path, format string, rep *batch.Report) error {
	if path == "" {
		return report.Write(stdout, rep, format)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := report.Write(out, rep, format); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
