package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/types"
)

func TestIsSubmissionFile(t *testing.T) {
	assert.True(t, isSubmissionFile("/drop/acme/shipment.xml"))
	assert.True(t, isSubmissionFile("/drop/acme/shipment.JSON"))
	assert.False(t, isSubmissionFile("/drop/acme/notes.txt"))
	assert.False(t, isSubmissionFile("/drop/acme/.DS_Store"))
}

func TestIsArchivePath(t *testing.T) {
	assert.True(t, isArchivePath("/drop/archived/acme/old.xml"))
	assert.False(t, isArchivePath("/drop/acme/new.xml"))
}

func newTestWatcher(t *testing.T) (*FileWatcher, sqlmock.Sqlmock, *configs.Config) {
	t.Helper()
	db, mock := newMockDB(t)
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &configs.Config{
		WatchDir:         t.TempDir(),
		ArchiveDir:       t.TempDir(),
		WatchSettleDelay: 0,
	}
	return NewFileWatcher(cfg, db, NewSubmissionService(db, storage)), mock, cfg
}

func TestHandleFileProcessesAndArchives(t *testing.T) {
	watcher, mock, cfg := newTestWatcher(t)
	now := time.Now()

	supplierRows := sqlmock.NewRows([]string{"id", "name", "contact_email", "directory_name", "created_at"}).
		AddRow("supplier-1", "Acme Pharma", "compliance@acme.example", "acme", now)
	mock.ExpectQuery("SELECT \\* FROM suppliers WHERE directory_name").
		WithArgs("acme").
		WillReturnRows(supplierRows)

	mock.ExpectQuery("SELECT \\* FROM epcis_submissions WHERE supplier_id").
		WithArgs("supplier-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	mock.ExpectExec("INSERT INTO epcis_submissions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Malformed content leads to one stored format error and a held status
	mock.ExpectExec("UPDATE epcis_submissions").
		WithArgs(types.StatusHeld, false, 1, 0, false, false, "",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("INSERT INTO validation_errors").
		WillReturnResult(sqlmock.NewResult(0, 1))

	supplierDir := filepath.Join(cfg.WatchDir, "acme")
	require.NoError(t, os.MkdirAll(supplierDir, 0o755))
	dropped := filepath.Join(supplierDir, "shipment.xml")
	require.NoError(t, os.WriteFile(dropped, []byte("<broken"), 0o644))

	watcher.handleFile(context.Background(), dropped)

	_, err := os.Stat(dropped)
	assert.True(t, os.IsNotExist(err), "Dropped file should be moved out of the watch directory")

	archived := filepath.Join(cfg.ArchiveDir, "acme", "shipment.xml")
	_, err = os.Stat(archived)
	assert.NoError(t, err, "Processed file should be archived")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestHandleFileSkipsUnknownSupplier(t *testing.T) {
	watcher, mock, cfg := newTestWatcher(t)

	mock.ExpectQuery("SELECT \\* FROM suppliers WHERE directory_name").
		WithArgs("mystery").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	unknownDir := filepath.Join(cfg.WatchDir, "mystery")
	require.NoError(t, os.MkdirAll(unknownDir, 0o755))
	dropped := filepath.Join(unknownDir, "shipment.xml")
	require.NoError(t, os.WriteFile(dropped, []byte("<EPCISDocument/>"), 0o644))

	watcher.handleFile(context.Background(), dropped)

	// File stays in place for manual triage
	_, err := os.Stat(dropped)
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestHandleFileIgnoresNonSubmissionFiles(t *testing.T) {
	watcher, mock, cfg := newTestWatcher(t)

	dropped := filepath.Join(cfg.WatchDir, "readme.txt")
	require.NoError(t, os.WriteFile(dropped, []byte("hello"), 0o644))

	watcher.handleFile(context.Background(), dropped)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
