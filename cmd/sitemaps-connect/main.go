package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/romangod6/pro-sitemaps-connect/config"
	"github.com/romangod6/pro-sitemaps-connect/internal/api"
	"github.com/romangod6/pro-sitemaps-connect/internal/prosite"
	"github.com/romangod6/pro-sitemaps-connect/internal/rewrite"
	"github.com/romangod6/pro-sitemaps-connect/internal/robots"
	"github.com/romangod6/pro-sitemaps-connect/internal/settings"
	"github.com/romangod6/pro-sitemaps-connect/internal/storage"
	"github.com/romangod6/pro-sitemaps-connect/internal/updater"
	"github.com/romangod6/pro-sitemaps-connect/internal/utils"
	"github.com/romangod6/pro-sitemaps-connect/internal/verify"
)

func main() {
	var (
		configPath string
		debug      bool
	)

	root := &cobra.Command{
		Use:          "sitemaps-connect",
		Short:        "Serve PRO Sitemaps hosted sitemaps under the local site",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the sitemap server and admin surface",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(configPath, debug)
			},
		},
		&cobra.Command{
			Use:   "test",
			Short: "Run the API connection test and print the found sitemaps",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return testConnection(cmd.Context(), configPath, debug)
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Delete the stored options",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return uninstall(cmd.Context(), configPath)
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	store    storage.Store
	rules    *rewrite.RuleSet
	settings *settings.Manager
	client   *prosite.Client
}

func newApp(ctx context.Context, configPath string, logger *utils.Logger) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewStore(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}

	rules := rewrite.NewRuleSet()
	manager := settings.NewManager(store, rules, logger)
	if err := manager.Activate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	client := prosite.NewClient(prosite.Config{
		Endpoint:   cfg.API.Endpoint,
		Version:    cfg.API.Version,
		HomeURL:    cfg.HomeURL(),
		Permalinks: cfg.Site.Permalinks,
		Timeout:    cfg.GetAPITimeout(),
		Logger:     logger,
	})

	return &app{cfg: cfg, store: store, rules: rules, settings: manager, client: client}, nil
}

func serve(configPath string, debug bool) error {
	// Config is read twice: once for the log dir, then by newApp
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewServiceLogger(cfg.Log.Dir, "sitemaps connect")
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.SetDebug(debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	queue := updater.NewQueue(a.cfg.Updater.Workers, a.cfg.Updater.QueueSize, a.settings, a.client, logger)
	queue.Start(ctx)

	server := api.NewServer(a.cfg.Server.Port, api.Dependencies{
		Settings: a.settings,
		Client:   a.client,
		Rules:    a.rules,
		Queue:    queue,
		Verifier: verify.NewVerifier("", a.cfg.GetAPITimeout(), logger),
		Site: api.Site{
			HomeURL:    a.cfg.HomeURL(),
			Public:     a.cfg.Site.Public,
			RobotsBase: a.cfg.Robots.Base,
			RobotsFile: robots.File{Path: a.cfg.Robots.File},
		},
		Admin:  api.Admin{User: a.cfg.Admin.User, Password: a.cfg.Admin.Password},
		Logger: logger,
	})

	errChan := make(chan error, 1)
	go func() {
		logger.LogInfo("Starting server on port %d, sitemap at %s", a.cfg.Server.Port, a.client.LocalPath())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	err = waitForShutdown(errChan, server, logger)
	queue.Stop()
	return err
}

func waitForShutdown(errChan <-chan error, server *api.Server, logger *utils.Logger) error {
	// Handle system signals for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-sigChan:
	}
	logger.LogInfo("Shutting down...")

	// Graceful server shutdown
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Error shutting down server: %v", err)
		return err
	}
	logger.LogInfo("Server shut down gracefully")
	return nil
}

func testConnection(ctx context.Context, configPath string, debug bool) error {
	logger := utils.NewLogger(os.Stderr)
	logger.SetDebug(debug)

	a, err := newApp(ctx, configPath, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	opts, err := a.settings.Load(ctx)
	if err != nil {
		return err
	}
	if !opts.HasAPIInfo() {
		return prosite.ErrNotConfigured
	}

	result := a.client.GetSitemapInfo(ctx, opts, nil)
	if result.Failed() {
		return fmt.Errorf("connection test failed: %s", result.Error)
	}
	if len(result.SitemapList) == 0 {
		fmt.Println("No sitemaps have been detected, please check your PRO Sitemaps account")
		return nil
	}
	if err := a.settings.CacheSitemaps(ctx, result.SitemapList); err != nil {
		return err
	}

	fmt.Printf("Success! Found %d sitemaps for site %s\n", len(result.SitemapList), opts.SiteID)
	for _, entry := range result.SitemapList {
		mark := " "
		if entry.Submittable() {
			mark = "*"
		}
		fmt.Printf("%s %s <- %s (%d)\n", mark, entry.ClientURL, entry.SitemapURL, entry.ElementsCount)
	}
	if entries := strings.TrimSpace(robots.Entries(result.SitemapList)); entries != "" {
		fmt.Printf("\nrobots.txt entries:\n%s\n", entries)
	}
	return nil
}

func uninstall(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath, utils.NewLogger(os.Stderr))
	if err != nil {
		return err
	}
	defer a.store.Close()

	if err := a.settings.Uninstall(ctx); err != nil {
		return err
	}
	log.Println("Options deleted")
	return nil
}
