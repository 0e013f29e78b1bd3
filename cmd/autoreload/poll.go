package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autoreload-go/internal/config"
	"autoreload-go/internal/logger"
	"autoreload-go/internal/poller"
	"autoreload-go/internal/state"
)

var (
	pollURL         string
	pollToken       string
	pollInterval    time.Duration
	pollExcludeDirs []string
	pollExcludeExts []string
	pollTemplate    string
	pollRoot        string
	pollBootstrap   bool
	pollStateFile   string
	pollStateDB     string
	pollStateKey    string
	pollReset       bool
	pollExec        string
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll a change endpoint and react to changes",
	Long: `Poll a change endpoint and run a command whenever the latest modification
time moves forward. The first answer only records a baseline.

Polling stops for good on the first failed request.

Examples:
  autoreload poll --url http://localhost:8080/modules/frontendautoreload/latest --token s3cret
  autoreload poll --url ... --bootstrap --exec "browser-sync reload"
  autoreload poll --url ... --exclude-dir /images --exclude-dir /cache --state-file .autoreload/ts`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	f := pollCmd.Flags()
	f.StringVar(&pollURL, "url", "", "Change endpoint URL (required)")
	f.StringVar(&pollToken, "token", os.Getenv("AUTORELOAD_TOKEN"), "Bearer token (default $AUTORELOAD_TOKEN)")
	f.DurationVarP(&pollInterval, "interval", "i", time.Duration(config.DefaultInterval)*time.Second, "Polling interval")
	f.StringArrayVar(&pollExcludeDirs, "exclude-dir", nil, "Excluded subpath relative to the watched root (repeatable)")
	f.StringArrayVar(&pollExcludeExts, "exclude-ext", nil, "Excluded file extension (repeatable)")
	f.StringVar(&pollTemplate, "template", "", "Template to watch instead of the server's active one")
	f.StringVar(&pollRoot, "root", "", "Directory to watch instead of the server's active template")
	f.BoolVar(&pollBootstrap, "bootstrap", false, "Start from the server's default configuration (<url>/config)")
	f.StringVar(&pollStateFile, "state-file", "", "Keep the last seen timestamp in this file")
	f.StringVar(&pollStateDB, "state-db", "", "Keep the last seen timestamp in this SQLite database")
	f.StringVar(&pollStateKey, "state-key", state.DefaultKey, "Key of the timestamp in the state database")
	f.BoolVar(&pollReset, "reset", false, "Forget the stored baseline before polling")
	f.StringVar(&pollExec, "exec", "", "Shell command to run on change ($AUTORELOAD_TIMESTAMP holds the new value)")

	pollCmd.MarkFlagRequired("url")
}

func runPoll(cmd *cobra.Command, args []string) error {
	if err := initLogging(logLevel, logFormat); err != nil {
		return err
	}
	log := logger.ForComponent("poll")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if pollReset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset state: %w", err)
		}
	}

	overrides := config.Overrides{}
	interval := pollInterval

	if pollBootstrap {
		cc, err := poller.FetchConfig(ctx, nil, strings.TrimSuffix(pollURL, "/")+"/config", pollToken)
		if err != nil {
			return fmt.Errorf("failed to bootstrap: %w", err)
		}
		overrides = poller.Overrides(cc)
		if !cmd.Flags().Changed("interval") && cc.Interval > 0 {
			interval = time.Duration(cc.Interval) * time.Second
		}
	}

	flags := cmd.Flags()
	if flags.Changed("exclude-dir") {
		dirs := pollExcludeDirs
		overrides.ExcludedDirectories = &dirs
	}
	if flags.Changed("exclude-ext") {
		exts := pollExcludeExts
		overrides.ExcludedExtensions = &exts
	}
	if flags.Changed("template") {
		template := pollTemplate
		overrides.Template = &template
	}
	if flags.Changed("root") {
		root := pollRoot
		overrides.Root = &root
	}
	if flags.Changed("interval") || pollBootstrap {
		seconds := int(interval / time.Second)
		if seconds > 0 {
			overrides.Interval = &seconds
		}
	}

	p, err := poller.New(poller.Options{
		URL:       pollURL,
		Interval:  interval,
		Overrides: overrides,
		Token:     pollToken,
		Store:     store,
		Action:    reloadAction(),
		Logger:    logger.ForComponent("poller"),
	})
	if err != nil {
		return err
	}

	log.Info("autoreload polling started",
		"url", pollURL,
		"interval", interval,
		"template", deref(overrides.Template),
		"excluded_directories", derefSlice(overrides.ExcludedDirectories),
		"excluded_extensions", derefSlice(overrides.ExcludedExtensions),
	)

	return p.Run(ctx)
}

func openStore() (state.Store, func(), error) {
	switch {
	case pollStateDB != "":
		s, err := state.NewSQLiteStore(pollStateDB, pollStateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state database: %w", err)
		}
		return s, func() { s.Close() }, nil
	case pollStateFile != "":
		return state.NewFileStore(pollStateFile), func() {}, nil
	default:
		return state.NewMemoryStore(), func() {}, nil
	}
}

func reloadAction() poller.Action {
	if pollExec == "" {
		return nil
	}

	return func(ctx context.Context, ts int64) error {
		var c *exec.Cmd
		if runtime.GOOS == "windows" {
			c = exec.CommandContext(ctx, "cmd", "/C", pollExec)
		} else {
			c = exec.CommandContext(ctx, "sh", "-c", pollExec)
		}
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		c.Env = append(os.Environ(), "AUTORELOAD_TIMESTAMP="+strconv.FormatInt(ts, 10))

		if err := c.Run(); err != nil {
			return fmt.Errorf("failed to run %q: %w", pollExec, err)
		}
		return nil
	}
}

func deref(s *string) string {
	if s == nil {
		return "(server default)"
	}
	return *s
}

func derefSlice(s *[]string) any {
	if s == nil {
		return "(server default)"
	}
	return *s
}
