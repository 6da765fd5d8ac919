package cleanup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/italolelis/geofetch/internal/cleanup"
	"github.com/italolelis/geofetch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	records []storage.FetchRecord
	deleted []string
}

func (f *fakeJournal) GetRecords() ([]storage.FetchRecord, error) {
	return f.records, nil
}

func (f *fakeJournal) DeleteRecord(assetID string) error {
	f.deleted = append(f.deleted, assetID)

	return nil
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("tile bytes"), 0644))

	return path
}

func TestDeleteExpiredFiles(t *testing.T) {
	dir := t.TempDir()

	expired := writeFile(t, dir, "expired.tif")
	fresh := writeFile(t, dir, "fresh.tif")

	journal := &fakeJournal{records: []storage.FetchRecord{
		{
			AssetID:   "expired",
			FilePath:  "expired.tif",
			Status:    "downloaded",
			FetchedAt: time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
		},
		{
			AssetID:   "fresh",
			FilePath:  "fresh.tif",
			Status:    "downloaded",
			FetchedAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
		},
		{
			AssetID:   "failed",
			FilePath:  "failed.tif",
			Status:    "failed",
			FetchedAt: time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
		},
	}}

	err := cleanup.DeleteExpiredFiles(context.Background(), journal, dir, 24*time.Hour)
	require.NoError(t, err)

	assert.NoFileExists(t, expired)
	assert.FileExists(t, fresh)
	assert.Equal(t, []string{"expired"}, journal.deleted)
}

func TestDeleteExpiredFiles_MissingFileSkipped(t *testing.T) {
	journal := &fakeJournal{records: []storage.FetchRecord{
		{
			AssetID:   "gone",
			FilePath:  "gone.tif",
			Status:    "downloaded",
			FetchedAt: time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
		},
	}}

	err := cleanup.DeleteExpiredFiles(context.Background(), journal, t.TempDir(), 24*time.Hour)
	require.NoError(t, err)

	// The record is kept; only files that were actually removed lose
	// their journal rows.
	assert.Empty(t, journal.deleted)
}

func TestDeleteExpiredFiles_BadTimestampUsesModTime(t *testing.T) {
	dir := t.TempDir()

	old := writeFile(t, dir, "old.tif")
	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	journal := &fakeJournal{records: []storage.FetchRecord{
		{AssetID: "old", FilePath: "old.tif", Status: "downloaded", FetchedAt: "not-a-timestamp"},
	}}

	err := cleanup.DeleteExpiredFiles(context.Background(), journal, dir, 24*time.Hour)
	require.NoError(t, err)

	assert.NoFileExists(t, old)
	assert.Equal(t, []string{"old"}, journal.deleted)
}
