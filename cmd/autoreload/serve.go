package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autoreload-go/internal/config"
	"autoreload-go/internal/endpoint"
	"autoreload-go/internal/host"
	"autoreload-go/internal/logger"
)

const shutdownTimeout = 5 * time.Second

var (
	serveConfigPath string
	serveListen     string
	serveTemplates  string
	serveTemplate   string
	serveToken      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the change endpoint",
	Long: `Serve the change endpoint over HTTP.

Only callers presenting an admin token (Authorization: Bearer <token> or the
autoreload_token cookie) get an answer; everyone else sees a plain 404.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveConfigPath, "config", "c", "autoreload.yaml", "Config file path")
	f.StringVar(&serveListen, "listen", "", "Listen address (overrides config)")
	f.StringVar(&serveTemplates, "templates", "", "Templates directory (overrides config)")
	f.StringVar(&serveTemplate, "template", "", "Preferred page template (overrides config)")
	f.StringVar(&serveToken, "token", "", "Admin token to accept in addition to configured ones")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveTemplates != "" {
		cfg.TemplatesDir = serveTemplates
	}
	if serveTemplate != "" {
		cfg.Template = serveTemplate
	}
	if serveToken != "" {
		cfg.Tokens = append(cfg.Tokens, host.Token{Value: serveToken, Admin: true})
	}

	level, format := cfg.LogLevel, cfg.LogFormat
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = logFormat
	}
	if err := initLogging(level, format); err != nil {
		return err
	}
	log := logger.ForComponent("serve")

	if len(cfg.Tokens) == 0 {
		log.Warn("no tokens configured, every request will get a 404")
	}

	templates := cfg.Templates()
	handler := endpoint.New(endpoint.Options{
		Capabilities: host.NewTokenAuthorizer(cfg.Tokens),
		Resolver:     templates,
		Defaults:     cfg.Watch(),
		Logger:       logger.ForComponent("endpoint"),
	})

	mux := http.NewServeMux()
	handler.Register(mux, cfg.Path, templates.Active)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("autoreload started",
		"listen", cfg.Listen,
		"path", cfg.Path,
		"template", templates.Active(),
		"root", templates.Resolve(),
		"excluded_directories", cfg.ExcludedDirectories,
		"excluded_extensions", cfg.ExcludedExtensions,
		"interval", cfg.Interval,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
