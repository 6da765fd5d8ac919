package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/geofetch/internal/cleanup"
	"github.com/italolelis/geofetch/internal/config"
	"github.com/italolelis/geofetch/internal/copernicus"
	"github.com/italolelis/geofetch/internal/fetch"
	"github.com/italolelis/geofetch/internal/logctx"
	"github.com/italolelis/geofetch/internal/notifier"
	"github.com/italolelis/geofetch/internal/stac"
	"github.com/italolelis/geofetch/internal/storage"
	"github.com/italolelis/geofetch/internal/storage/sqlite"
	"github.com/italolelis/geofetch/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// version is set at build time via -ldflags.
var version = "dev"

var cli struct {
	Fetch   FetchCmd   `cmd:"" default:"withargs" help:"Query a catalog and download matching assets."`
	Status  StatusCmd  `cmd:"" help:"List journaled fetch outcomes."`
	Cleanup CleanupCmd `cmd:"" help:"Delete downloaded files past the retention window."`
	Version VersionCmd `cmd:"" help:"Print the version."`
}

type appContext struct {
	ctx context.Context
	cfg *config.Config
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kctx := kong.Parse(&cli,
		kong.Name("geofetch"),
		kong.Description("Retrieve public geospatial raster data from cloud catalogs."),
	)

	app := &appContext{ctx: logctx.WithLogger(ctx, logger), cfg: cfg}

	if err := kctx.Run(app); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

// FetchCmd queries the catalog for the requested collection, bbox and time
// range, then bulk-downloads the matching assets.
type FetchCmd struct {
	Collection   string `help:"Catalog collection name." default:"3dep-lidar-dsm"`
	BBox         string `name:"bbox" help:"Bounding box: four space-separated floats (min-lon min-lat max-lon max-lat)." default:"-121.846 48.7 -121.823 48.76"`
	TimeRange    string `help:"ISO-8601 time interval." default:"2000-12-01/2020-12-31"`
	OutputFolder string `help:"Output folder, created if absent." default:"downloads"`
	Overwrite    bool   `help:"Re-download assets that already exist locally."`
	MaxRetries   int    `help:"Per-asset retry budget for transient failures." default:"3"`
	MaxParallel  int    `help:"Concurrent asset downloads." default:"4"`
}

func (cmd *FetchCmd) Run(app *appContext) error {
	ctx := app.ctx
	cfg := app.cfg
	logger := logctx.LoggerFromContext(ctx)

	logger.Info("geofetch starting...", "version", version, "collection", cmd.Collection, "log_level", cfg.LogLevel)

	bbox, err := stac.ParseBBox(cmd.BBox)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "geofetch",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Telemetry.Enabled {
		startMetricsServer(ctx, tel, cfg.Telemetry.BindAddress)
	}

	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	// =========================================================================
	// Start Journal
	var journal storage.JournalWriteRepository

	if cfg.DBPath != "" {
		database, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer database.Close()

		journal = sqlite.NewInstrumentedJournal(sqlite.NewJournalRepository(database), tel)
	}

	// =========================================================================
	// Query Catalog
	descriptors, err := cmd.buildDescriptors(ctx, cfg, httpClient, tel, bbox)
	if err != nil {
		return fmt.Errorf("catalog query failed: %w", err)
	}

	if len(descriptors) == 0 {
		logger.Warn("no data available within specified bounds, check your bbox and time range inputs")

		return nil
	}

	// =========================================================================
	// Fetch Assets
	fetcher := fetch.NewFetcher(fetch.Config{
		OutputFolder:   cmd.OutputFolder,
		Overwrite:      cmd.Overwrite,
		MaxRetries:     cmd.MaxRetries,
		MaxParallel:    cmd.MaxParallel,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
	}, httpClient, tel)

	results, err := fetcher.Fetch(ctx, descriptors)
	if err != nil {
		return fmt.Errorf("fetch batch failed: %w", err)
	}

	// =========================================================================
	// Report Results
	batchID := uuid.New().String()

	for _, res := range results {
		if res.Failed() {
			logger.Error("asset failed", "asset_id", res.ID, "err", res.Err)
		}

		if journal == nil {
			continue
		}

		rec := storage.FetchRecord{
			BatchID:  batchID,
			AssetID:  res.ID,
			FilePath: res.Path,
			Status:   string(res.Status),
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}

		if err := journal.RecordResult(rec); err != nil {
			logger.Error("failed to journal result", "asset_id", res.ID, "err", err)
		}
	}

	summary := fetch.Summarize(results)

	logger.Info("fetch complete",
		"batch_id", batchID,
		"downloaded", summary.Downloaded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	notifySummary(ctx, cfg, cmd.Collection, summary)

	if !summary.OK() {
		return fmt.Errorf("%d of %d assets failed", summary.Failed, len(results))
	}

	return nil
}

// buildDescriptors resolves the collection to the right catalog: the
// Copernicus DEM collections live on a public tile grid, everything else
// goes through the STAC search API.
func (cmd *FetchCmd) buildDescriptors(
	ctx context.Context,
	cfg *config.Config,
	httpClient *http.Client,
	tel *telemetry.Telemetry,
	bbox []float64,
) ([]fetch.AssetDescriptor, error) {
	logger := logctx.LoggerFromContext(ctx)

	if copernicus.IsCopernicusCollection(cmd.Collection) {
		if cmd.TimeRange != "" {
			logger.Debug("time range is ignored for copernicus tile collections")
		}

		client, err := copernicus.NewClient(copernicus.Config{Collection: cmd.Collection}, httpClient, tel)
		if err != nil {
			return nil, err
		}

		return client.Descriptors(ctx, bbox)
	}

	client := stac.NewClient(stac.Config{
		BaseURL:         cfg.STACBaseURL,
		SASURL:          cfg.SASBaseURL,
		SubscriptionKey: cfg.SubscriptionKey,
	}, httpClient, tel)

	items, err := client.Search(ctx, stac.SearchParams{
		Collection: cmd.Collection,
		BBox:       bbox,
		Datetime:   cmd.TimeRange,
	})
	if err != nil {
		return nil, err
	}

	return client.Descriptors(ctx, items, stac.DataAssetKey)
}

func notifySummary(ctx context.Context, cfg *config.Config, collection string, summary fetch.Summary) {
	if cfg.WebhookURL == "" {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	notif := &notifier.WebhookNotifier{WebhookURL: cfg.WebhookURL}

	msg := fmt.Sprintf("✅ geofetch finished for %s: %d downloaded, %d skipped", collection, summary.Downloaded, summary.Skipped)
	if !summary.OK() {
		msg = fmt.Sprintf("❌ geofetch finished for %s with %d failures (%d downloaded, %d skipped)",
			collection, summary.Failed, summary.Downloaded, summary.Skipped)
	}

	if err := notif.Notify(msg); err != nil {
		logger.Error("failed to send notification", "err", err)
	}
}

// startMetricsServer exposes /metrics and /healthz for the duration of the
// run. Long bulk fetches are the point; short runs just tear it down again.
func startMetricsServer(ctx context.Context, tel *telemetry.Telemetry, bindAddress string) {
	logger := logctx.LoggerFromContext(ctx)

	r := chi.NewRouter()
	r.Handle("/metrics", tel.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:        bindAddress,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "host", bindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()
}

// StatusCmd lists journaled fetch outcomes.
type StatusCmd struct {
	BatchID string `help:"Only show records for one batch."`
}

func (cmd *StatusCmd) Run(app *appContext) error {
	if app.cfg.DBPath == "" {
		return fmt.Errorf("journal is disabled, set GEOFETCH_DB_PATH")
	}

	database, err := sqlite.InitDB(app.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewJournalRepository(database)

	var records []storage.FetchRecord

	if cmd.BatchID != "" {
		records, err = repo.GetBatchRecords(cmd.BatchID)
	} else {
		records, err = repo.GetRecords()
	}

	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	for _, rec := range records {
		age := rec.FetchedAt
		if t, parseErr := time.Parse(time.RFC3339, rec.FetchedAt); parseErr == nil {
			age = humanize.Time(t)
		}

		fmt.Printf("%-14s %-10s %s (%s)\n", rec.Status, age, rec.AssetID, rec.FilePath)
	}

	fmt.Printf("%d records\n", len(records))

	return nil
}

// CleanupCmd deletes downloaded files past the retention window.
type CleanupCmd struct {
	OutputFolder string `help:"Output folder the files were downloaded to." default:"downloads"`
}

func (cmd *CleanupCmd) Run(app *appContext) error {
	if app.cfg.DBPath == "" {
		return fmt.Errorf("journal is disabled, set GEOFETCH_DB_PATH")
	}

	database, err := sqlite.InitDB(app.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer database.Close()

	repo := sqlite.NewJournalRepository(database)

	return cleanup.DeleteExpiredFiles(app.ctx, repo, cmd.OutputFolder, app.cfg.KeepDownloadedFor)
}

type VersionCmd struct{}

func (cmd *VersionCmd) Run(_ *appContext) error {
	fmt.Println("geofetch", version)

	return nil
}
