package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/diag"
	"github.com/jward/arbor/scripts"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "arbor",
	Short:         "Elaborate hardware designs into a queryable instance tree",
	Long:          "Arbor elaborates SystemVerilog design files into a hierarchy of instances, binds their names, and writes the result to a SQLite database for queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: from arbor.hcl, arbor.db next to it)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "settings file (default: arbor.hcl in the project directory)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(elaborateCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queryCmd)
}

// newLogger returns a development logger with --verbose, otherwise a
// production logger that only reports warnings and above.
func newLogger() (*zap.Logger, error) {
	if flagVerbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// loadSettings reads --config if given, else searches dir.
func loadSettings(dir string) (*config.Settings, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load(dir)
}

// resolveDBPath returns the database path from the --db flag or the
// settings.
func resolveDBPath(s *config.Settings) string {
	if flagDB != "" {
		return flagDB
	}
	return s.DatabasePath()
}

// --- elaborate ---

var (
	flagForce    bool
	flagTops     []string
	flagSerial   bool
	flagKeepRuns int
)

var elaborateCmd = &cobra.Command{
	Use:   "elaborate [dir]",
	Short: "Elaborate the design files of a project",
	Long:  "Loads the design files matched by arbor.hcl, elaborates every top-level module, binds names and stores the run. An unchanged design reuses the latest run unless --force is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runElaborate,
}

func init() {
	elaborateCmd.Flags().BoolVar(&flagForce, "force", false, "elaborate even if the design is unchanged")
	elaborateCmd.Flags().StringSliceVar(&flagTops, "top", nil, "top-level module (repeatable; default: from settings or computed)")
	elaborateCmd.Flags().BoolVar(&flagSerial, "serial", false, "elaborate tops one at a time")
	elaborateCmd.Flags().IntVar(&flagKeepRuns, "keep", arbor.DefaultKeepRuns, "runs to keep in the database (0 keeps all)")
}

func runElaborate(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("elaborate", err)
	}
	s, err := loadSettings(targetDir)
	if err != nil {
		return outputError("elaborate", err)
	}
	if s.Path == "" {
		// Without a settings file the project is the target directory.
		s.Path = filepath.Join(targetDir, config.FileName)
	}
	logger, err := newLogger()
	if err != nil {
		return outputError("elaborate", err)
	}
	defer func() { _ = logger.Sync() }()

	opts := []arbor.Option{
		arbor.WithSettings(s),
		arbor.WithLogger(logger),
		arbor.WithForce(flagForce),
		arbor.WithParallel(!flagSerial),
		arbor.WithKeepRuns(flagKeepRuns),
	}
	if len(flagTops) > 0 {
		opts = append(opts, arbor.WithTops(flagTops...))
	}
	// The embedded prelude serves unless a scripts directory is configured.
	if s.ScriptsDir == "" {
		opts = append(opts, arbor.WithScriptsFS(scripts.FS))
	}

	dbPath := resolveDBPath(s)
	engine, err := arbor.New(dbPath, opts...)
	if err != nil {
		return outputError("elaborate", fmt.Errorf("creating engine: %w", err))
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := engine.RunDirectory(ctx)
	if err != nil {
		return outputError("elaborate", err)
	}

	summary := runToCLI(res.Run)
	summary.Cached = res.Cached
	summary.Database = dbPath
	if !res.Cached {
		summary.Bound = res.Stats.Bound
		summary.Implicit = res.Stats.Implicit
		summary.Unresolved = res.Stats.Unresolved
		for _, d := range res.Diagnostics {
			if d.Severity == diag.SeverityError {
				summary.Errors++
			}
		}
	}
	printRunBanner(os.Stderr, summary, time.Since(start))

	one := 1
	return outputResult(CLIResult{
		Command:    "elaborate",
		Results:    summary,
		TotalCount: &one,
	})
}

// resolveTargetDir returns the absolute path of the project directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// --- init ---

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default arbor.hcl",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return outputError("init", err)
	}
	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return outputError("init", fmt.Errorf("%s already exists", path))
	}
	if err := config.DefaultSettings().Save(path); err != nil {
		return outputError("init", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	one := 1
	return outputResult(CLIResult{Command: "init", Results: path, TotalCount: &one})
}
