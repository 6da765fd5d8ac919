package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/italolelis/geofetch/internal/fetch"
	"github.com/italolelis/geofetch/internal/logctx"
	"github.com/italolelis/geofetch/internal/storage"
)

// Journal is the slice of the journal the cleanup needs.
type Journal interface {
	GetRecords() ([]storage.FetchRecord, error)
	DeleteRecord(assetID string) error
}

// DeleteExpiredFiles removes downloaded files older than keepDuration from
// the output folder, along with their journal rows. Only records with a
// downloaded status are considered; failed and skipped entries never had a
// file of their own to remove.
func DeleteExpiredFiles(ctx context.Context, journal Journal, dir string, keepDuration time.Duration) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	records, err := journal.GetRecords()
	if err != nil {
		return err
	}

	for _, rec := range records {
		if rec.Status != string(fetch.StatusDownloaded) {
			continue
		}

		filePath := filepath.Join(dir, rec.FilePath)

		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already deleted
			}

			logger.Error("failed to stat file", "file", filePath, "err", err)

			return err
		}

		fetchedAt, err := time.Parse(time.RFC3339, rec.FetchedAt)
		if err != nil {
			// fallback: use file mod time
			logger.Warn("failed to parse fetch time, using file mod time", "file", filePath, "err", err)

			fetchedAt = info.ModTime()
		}

		if now.Sub(fetchedAt) <= keepDuration {
			continue
		}

		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("failed to delete expired file", "file", filePath, "err", err)

			return err
		}

		if err := journal.DeleteRecord(rec.AssetID); err != nil {
			logger.Error("failed to delete journal record", "asset_id", rec.AssetID, "err", err)

			return err
		}

		logger.Info("deleted expired file", "file", filePath)
	}

	return nil
}
