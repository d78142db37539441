package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/gtcollab-api/internal/catalog"
	"github.com/noah-isme/gtcollab-api/internal/repository"
	"github.com/noah-isme/gtcollab-api/internal/service"
	"github.com/noah-isme/gtcollab-api/pkg/cache"
	"github.com/noah-isme/gtcollab-api/pkg/config"
	"github.com/noah-isme/gtcollab-api/pkg/database"
	"github.com/noah-isme/gtcollab-api/pkg/logger"
	"github.com/noah-isme/gtcollab-api/pkg/middleware/requestid"
)

// catalog-sync runs one catalog synchronisation and prints the report.
func main() {
	termType := flag.String("term-type", "", "override CATALOG_TERM_TYPE")
	concurrency := flag.Int("concurrency", 0, "override CATALOG_CONCURRENCY")
	pretty := flag.Bool("pretty", false, "indent the JSON report")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *termType != "" {
		cfg.Catalog.TermType = *termType
	}
	if *concurrency > 0 {
		cfg.Catalog.Concurrency = *concurrency
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	os.Exit(run(cfg, logr, *pretty))
}

func run(cfg *config.Config, logr *zap.Logger, pretty bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = requestid.WithValue(ctx, requestid.New())

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("failed to connect to postgres", zap.Error(err))
		return 1
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Error("failed to connect to redis", zap.Error(err))
		return 1
	}

	var tracker *service.LoadStateTracker
	if redisClient != nil {
		defer redisClient.Close()
		tracker = service.InitProcessLoadState(repository.NewSyncStateRepository(redisClient), cfg.Sync.LockTTL, logr)
	} else {
		tracker = service.InitProcessLoadState(nil, cfg.Sync.LockTTL, logr)
	}

	syncSvc := service.NewCatalogSyncService(
		catalog.NewClient(cfg.Catalog, catalog.WithLogger(logr)),
		repository.NewTermRepository(db),
		repository.NewSubjectRepository(db),
		repository.NewCourseRepository(db),
		repository.NewSectionRepository(db),
		database.NewTxRunner(db),
		tracker,
		service.CatalogSyncConfig{
			TermType:      cfg.Catalog.TermType,
			PreTermWindow: cfg.Catalog.PreTermWindow,
			Concurrency:   cfg.Catalog.Concurrency,
		},
		service.WithSyncLogger(logr),
	)

	report, err := syncSvc.Sync(ctx)
	if err != nil {
		logr.Error("catalog sync failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(report.FailedSubjects) > 0 {
		return 2
	}
	return 0
}
