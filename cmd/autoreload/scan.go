package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"autoreload-go/internal/config"
	"autoreload-go/internal/filter"
	"autoreload-go/internal/host"
	"autoreload-go/internal/progress"
	"autoreload-go/internal/walker"
)

var (
	scanConfigPath      string
	scanExcludeDirs     []string
	scanExcludeExts     []string
	scanExcludePatterns []string
	scanQuiet           bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [directory]",
	Short: "Print the latest modification time of a directory",
	Long: `Walk a directory once with the configured exclusions and print the newest
modification time found. Without a directory the active template from the
config file is scanned.

With --quiet only the timestamp is printed, matching the endpoint's answer.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanConfigPath, "config", "c", "autoreload.yaml", "Config file path")
	f.StringArrayVar(&scanExcludeDirs, "exclude-dir", nil, "Excluded subpath relative to the root (repeatable, replaces config)")
	f.StringArrayVar(&scanExcludeExts, "exclude-ext", nil, "Excluded file extension (repeatable, replaces config)")
	f.StringArrayVar(&scanExcludePatterns, "exclude-pattern", nil, "Excluded glob such as /**/*.min.js (repeatable, replaces config)")
	f.BoolVarP(&scanQuiet, "quiet", "q", false, "Only print the timestamp")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(scanConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var resolver host.TemplateResolver = cfg.Templates()
	if len(args) == 1 {
		directory := args[0]
		resolver = host.ResolverFunc(func() string { return directory })
	}

	watch := config.New(cfg.Watch(), resolver)

	flags := cmd.Flags()
	if flags.Changed("exclude-dir") {
		watch.ExcludedDirectories = scanExcludeDirs
	}
	if flags.Changed("exclude-ext") {
		watch.ExcludedExtensions = scanExcludeExts
	}
	if flags.Changed("exclude-pattern") {
		watch.ExcludedPatterns = scanExcludePatterns
	}

	absDirectory, err := filepath.Abs(watch.Root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	var bar walker.Progress
	var counter *progress.Counter
	if !scanQuiet {
		fmt.Printf("Scanning directory: %s\n", absDirectory)
		counter = progress.New()
		bar = counter
	}

	result, err := walker.ScanWithProgress(cmd.Context(), absDirectory, filter.New(watch.Rules()), bar)
	if counter != nil {
		counter.Finish()
	}
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	if scanQuiet {
		fmt.Println(result.Latest)
		return nil
	}

	fmt.Printf("✓ Latest modification: %d", result.Latest)
	if result.Latest > 0 {
		fmt.Printf(" (%s)", time.Unix(result.Latest, 0).Format(time.RFC3339))
	}
	fmt.Println()
	if result.Newest != "" {
		fmt.Printf("  Newest file: %s\n", result.Newest)
	}
	fmt.Printf("  Files: %d\n", result.Files)
	fmt.Printf("  Pruned directories: %d\n", result.Pruned)

	if len(result.Errors) > 0 {
		fmt.Printf("\n⚠ Skipped %d entries due to errors\n", len(result.Errors))
	}

	return nil
}
