package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amaumene/gocomet/internal/cache"
	"github.com/amaumene/gocomet/internal/config"
	"github.com/amaumene/gocomet/internal/database"
	"github.com/amaumene/gocomet/internal/debrid"
	"github.com/amaumene/gocomet/internal/handlers"
	"github.com/amaumene/gocomet/internal/search"
	"github.com/amaumene/gocomet/internal/sources"
	"github.com/amaumene/gocomet/internal/telemetry"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "gocomet",
		Short: "Torrent metasearch and debrid resolution service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolutionCache := cache.New(cfg.Cache.Capacity)
	resolutionCache.StartSweep(ctx, cfg.Cache.SweepInterval)

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	srcs := buildSources(cfg)
	if len(srcs) == 0 {
		return fmt.Errorf("no sources enabled")
	}
	providers := buildProviders(cfg, db)

	if len(providers) > 0 {
		cleaner := debrid.NewCleaner(db, providers, cfg.CleanupInterval, cfg.MagnetMaxAge)
		cleaner.Start(ctx)
	}

	aggregator := search.NewAggregator(cfg, srcs, providers, resolutionCache, db, metrics)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Next()
	})

	handlers.New(aggregator, cfg, registry).RegisterRoutes(router)

	log.Info().Str("addr", cfg.ListenAddr).
		Int("sources", len(srcs)).
		Int("providers", len(providers)).
		Msg("starting server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func buildSources(cfg *config.Config) []sources.Source {
	var out []sources.Source
	for _, sc := range cfg.EnabledSources() {
		switch sc.Name {
		case "apibay":
			out = append(out, sources.NewApiBay(sc.BaseURL))
		case "torrentscsv":
			out = append(out, sources.NewTorrentsCSV(sc.BaseURL))
		case "eztv":
			out = append(out, sources.NewEZTV(sc.BaseURL))
		case "ygg":
			out = append(out, sources.NewYGG(sc.BaseURL))
		default:
			log.Warn().Str("source", sc.Name).Msg("unknown source in config")
		}
	}
	return out
}

func buildProviders(cfg *config.Config, db database.Database) []debrid.Provider {
	var out []debrid.Provider
	for _, pc := range cfg.Providers {
		var p debrid.Provider
		switch pc.Name {
		case "alldebrid":
			p = debrid.NewAllDebrid(pc.APIKey, pc.BaseURL)
		case "realdebrid":
			p = debrid.NewRealDebrid(pc.APIKey, pc.BaseURL)
		case "torbox":
			p = debrid.NewTorBox(pc.APIKey, pc.BaseURL)
		default:
			log.Warn().Str("provider", pc.Name).Msg("unknown provider in config")
			continue
		}
		if setter, ok := p.(debrid.DatabaseSetter); ok {
			setter.SetDatabase(db)
		}
		out = append(out, p)
	}
	return out
}
