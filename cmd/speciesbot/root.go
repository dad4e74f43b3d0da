package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackmichael/species-poster/internal/bluesky"
	"github.com/blackmichael/species-poster/internal/catalog"
	"github.com/blackmichael/species-poster/internal/config"
	"github.com/blackmichael/species-poster/internal/domain"
	"github.com/blackmichael/species-poster/internal/firehose"
	"github.com/blackmichael/species-poster/internal/logging"
	"github.com/blackmichael/species-poster/internal/media"
	"github.com/blackmichael/species-poster/internal/scrape"
	"github.com/blackmichael/species-poster/internal/sqlite"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "speciesbot",
		Short:         "speciesbot posts a species of the day to Bluesky.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (or set SPECIESBOT_CONFIG)")

	open := func(ctx context.Context, seedFromCatalog bool) (*app, error) {
		return openApp(ctx, configPath, seedFromCatalog)
	}
	root.AddCommand(
		newRunCmd(open),
		newServeCmd(open),
		newSeedCmd(open),
		newStatusCmd(open),
	)
	return root
}

// opener opens the app. seedFromCatalog fills an empty universe with every
// catalog row.
type opener func(ctx context.Context, seedFromCatalog bool) (*app, error)

// app holds what every command needs: configuration, a logger, the catalog
// and the state database.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	repo    *sqlite.Repository
}

func openApp(ctx context.Context, configPath string, seedFromCatalog bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	repo, err := sqlite.NewRepository(cfg.State.DBPath)
	if err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, catalog: cat, repo: repo}
	if !seedFromCatalog {
		return a, nil
	}
	if err := a.ensureSeeded(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	return a.repo.Close()
}

// ensureSeeded fills an empty universe with every catalog row.
func (a *app) ensureSeeded(ctx context.Context) error {
	stats, err := a.repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	if stats.Universe > 0 {
		return nil
	}

	added, err := a.repo.Seed(ctx, a.catalog.Indices())
	if err != nil {
		return fmt.Errorf("seed universe: %w", err)
	}
	a.logger.Info("seeded selection universe from catalog", "species", added, "catalog", a.cfg.Catalog.Path)
	return nil
}

// pipeline wires the configured adapters into a domain.Pipeline.
func (a *app) pipeline(dryRun bool) (*domain.Pipeline, error) {
	cfg := a.cfg

	if !dryRun {
		if err := cfg.RequireCredentials(); err != nil {
			return nil, err
		}
	}

	web := scrape.NewHTTPClient(cfg.Scrape.Timeout)
	scrapeLogger := a.logger.With("component", "scrape")

	var lookup domain.ImageLookup = scrape.NewProfileLookup(web, scrapeLogger)
	if cfg.Features.DeepScrape {
		lookup = scrape.NewDeepLookup(web, scrapeLogger)
	}

	deps := domain.PipelineDeps{
		Catalog: a.catalog,
		Store:   a.repo,
		Posts:   a.repo,
		Lookup:  lookup,
		Scratch: media.Scratch{ImagePath: cfg.Scratch.ImagePath, CaptionPath: cfg.Scratch.CaptionPath},
		Logger:  a.logger.With("component", "pipeline"),
	}
	if !dryRun {
		deps.Publisher = bluesky.NewPublisher(
			bluesky.NewClient(cfg.Bluesky.PDSHost),
			bluesky.Credentials{Handle: cfg.Bluesky.Handle, Password: cfg.Bluesky.Password},
			web,
			a.logger.With("component", "bluesky"),
		)
	}
	if cfg.Features.Confirm {
		deps.Confirmer = firehose.NewConfirmer(cfg.Firehose.URL, cfg.Firehose.Timeout, a.logger.With("component", "firehose"))
	}

	return domain.NewPipeline(domain.PipelineConfig{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Langs:       cfg.Pipeline.Langs,
		Features:    cfg.DomainFeatures(),
		DryRun:      dryRun,
	}, deps)
}
