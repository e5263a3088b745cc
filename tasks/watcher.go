package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/configs"
)

// FileWatcher monitors supplier drop directories for new EPCIS files and
// feeds them through the submission service. Each immediate subdirectory of
// the watch root belongs to one supplier; the directory name maps to a
// supplier row.
type FileWatcher struct {
	cfg     *configs.Config
	db      *sqlx.DB
	service *SubmissionService

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewFileWatcher creates a watcher over the configured drop directory.
func NewFileWatcher(cfg *configs.Config, db *sqlx.DB, service *SubmissionService) *FileWatcher {
	return &FileWatcher{
		cfg:      cfg,
		db:       db,
		service:  service,
		inFlight: make(map[string]bool),
	}
}

// Run watches until the context is cancelled. Existing files in the drop
// directories are picked up on startup so nothing dropped while the watcher
// was down gets missed.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addWatchTree(watcher, w.cfg.WatchDir); err != nil {
		return err
	}
	logger.Info("File watcher started", zap.String("watch_dir", w.cfg.WatchDir))

	w.processExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				// New supplier directory, start watching it too
				if !isArchivePath(ev.Name) {
					if err := watcher.Add(ev.Name); err != nil {
						logger.Error("Failed to watch new directory",
							zap.String("path", ev.Name), zap.Error(err))
					}
				}
				continue
			}
			go w.handleFile(ctx, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *FileWatcher) addWatchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || isArchivePath(path) {
			return nil
		}
		return watcher.Add(path)
	})
}

func (w *FileWatcher) processExisting(ctx context.Context) {
	_ = filepath.WalkDir(w.cfg.WatchDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if isArchivePath(path) || !isSubmissionFile(path) {
			return nil
		}
		go w.handleFile(ctx, path)
		return nil
	})
}

func (w *FileWatcher) handleFile(ctx context.Context, path string) {
	if !isSubmissionFile(path) || isArchivePath(path) {
		return
	}

	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	// Give the writer time to finish before reading
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(w.cfg.WatchSettleDelay) * time.Second):
	}

	directory := filepath.Base(filepath.Dir(path))
	supplier, err := GetSupplierByDirectory(ctx, w.db, directory)
	if err != nil {
		logger.Error("Supplier lookup failed",
			zap.String("directory", directory), zap.Error(err))
		return
	}
	if supplier == nil {
		logger.Warn("File in unknown supplier directory, skipping",
			zap.String("path", path),
			zap.String("directory", directory))
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("Failed to read dropped file",
			zap.String("path", path), zap.Error(err))
		return
	}

	result, err := w.service.ProcessSubmission(ctx, content, filepath.Base(path), supplier.ID, "")
	if err != nil {
		logger.Error("Failed to process dropped file",
			zap.String("path", path), zap.Error(err))
		return
	}

	logger.Info("Dropped file processed",
		zap.String("path", path),
		zap.String("submission_id", result.SubmissionID),
		zap.String("status", result.Status),
		zap.Int("error_count", result.ErrorCount))

	if err := w.archive(path, supplier.DirectoryName); err != nil {
		logger.Error("Failed to archive file",
			zap.String("path", path), zap.Error(err))
	}
}

// archive moves a processed file out of the drop directory so it is not
// picked up again.
func (w *FileWatcher) archive(path, supplierDir string) error {
	archiveDir := filepath.Join(w.cfg.ArchiveDir, supplierDir)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	target := filepath.Join(archiveDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("moving %s to archive: %w", path, err)
	}

	logger.Info("File archived", zap.String("path", target))
	return nil
}

func isSubmissionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".json":
		return true
	}
	return false
}

func isArchivePath(path string) bool {
	return strings.Contains(path, "archived")
}
