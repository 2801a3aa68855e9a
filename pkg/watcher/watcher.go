// Package watcher monitors folder trees and feeds changed files into the
// ingestion engine. Detection is polling-based, comparing (mtime, size)
// snapshots per scan; fsnotify events only pull the next scan forward, so
// the polling pass stays the single source of truth for classification.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pratap1297/rag-new-sub000/pkg/config"
	"github.com/pratap1297/rag-new-sub000/pkg/ingest"
)

// Ingestor is the slice of the ingestion engine the monitor drives.
type Ingestor interface {
	IngestFile(ctx context.Context, path string, userMetadata map[string]any) (*ingest.Result, error)
	DeleteFile(ctx context.Context, pathOrDocPath string) (int, error)
}

// FileState is the tracking record for one observed file.
type FileState struct {
	Path     string    `json:"path"`
	ModTime  time.Time `json:"mod_time"`
	Size     int64     `json:"size"`
	LastSeen time.Time `json:"last_seen"`
	Ingested bool      `json:"ingested"`
}

// Status reports the monitor's current shape.
type Status struct {
	Running      bool      `json:"running"`
	Folders      []string  `json:"folders"`
	TrackedFiles int       `json:"tracked_files"`
	LastScan     time.Time `json:"last_scan"`
	ScanCount    int       `json:"scan_count"`
	Errors       int       `json:"errors"`
}

// Monitor polls a set of root folders for new, modified and deleted
// files.
type Monitor struct {
	ingestor  Ingestor
	interval  time.Duration
	recursive bool
	extsOK    map[string]bool

	mu        sync.Mutex
	folders   map[string]bool
	files     map[string]FileState
	running   bool
	lastScan  time.Time
	scanCount int
	errCount  int
	scanning  sync.Mutex

	kick   chan struct{}
	stopCh chan struct{}
	done   chan struct{}

	fsWatcher *fsnotify.Watcher
}

// New creates a monitor. supportedFormats limits which extensions are
// ingested; empty means all files.
func New(ingestor Ingestor, cfg *config.MonitoringConfig, supportedFormats []string) *Monitor {
	interval := time.Duration(cfg.CheckInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	exts := make(map[string]bool, len(supportedFormats))
	for _, f := range supportedFormats {
		exts["."+strings.TrimPrefix(strings.ToLower(f), ".")] = true
	}

	m := &Monitor{
		ingestor:  ingestor,
		interval:  interval,
		recursive: cfg.Recursive,
		extsOK:    exts,
		folders:   make(map[string]bool),
		files:     make(map[string]FileState),
		kick:      make(chan struct{}, 1),
	}

	if cfg.EnableFsnotify {
		if fsw, err := fsnotify.NewWatcher(); err == nil {
			m.fsWatcher = fsw
		} else {
			slog.Warn("Fsnotify unavailable, relying on polling only", "error", err)
		}
	}

	for _, folder := range cfg.WatchFolders {
		if added, err := m.AddFolder(folder); err != nil {
			slog.Warn("Skipping configured watch folder", "path", folder, "error", err)
		} else if added {
			slog.Info("Watching folder", "path", folder)
		}
	}
	return m
}

// AddFolder registers a folder. Re-adding an existing folder is reported
// with added=false.
func (m *Monitor) AddFolder(path string) (added bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, &fs.PathError{Op: "watch", Path: abs, Err: fs.ErrInvalid}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.folders[abs] {
		return false, nil
	}
	m.folders[abs] = true

	if m.fsWatcher != nil {
		if err := m.fsWatcher.Add(abs); err != nil {
			slog.Warn("Fsnotify add failed, folder still polled", "path", abs, "error", err)
		}
	}
	return true, nil
}

// RemoveFolder unregisters a folder and drops its tracked files.
func (m *Monitor) RemoveFolder(path string) (removed bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.folders[abs] {
		return false, nil
	}
	delete(m.folders, abs)

	for p := range m.files {
		if p == abs || isUnder(p, abs) {
			delete(m.files, p)
		}
	}
	if m.fsWatcher != nil {
		_ = m.fsWatcher.Remove(abs)
	}
	return true, nil
}

// Start launches the scan loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
	slog.Info("Folder monitor started", "interval", m.interval)
}

// Stop halts the loop and joins it before returning.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.mu.Unlock()

	<-done
	slog.Info("Folder monitor stopped")
}

// Close stops the monitor and releases the fsnotify handle.
func (m *Monitor) Close() error {
	m.Stop()
	if m.fsWatcher != nil {
		return m.fsWatcher.Close()
	}
	return nil
}

// ForceScan runs one scan immediately, waiting for any active scan to
// finish first.
func (m *Monitor) ForceScan(ctx context.Context) Status {
	m.scan(ctx)
	return m.GetStatus()
}

// GetStatus reports a snapshot of the monitor.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Running:      m.running,
		Folders:      m.folderListLocked(),
		TrackedFiles: len(m.files),
		LastScan:     m.lastScan,
		ScanCount:    m.scanCount,
		Errors:       m.errCount,
	}
}

// ListFolders returns the monitored roots, sorted.
func (m *Monitor) ListFolders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folderListLocked()
}

func (m *Monitor) folderListLocked() []string {
	folders := make([]string, 0, len(m.folders))
	for f := range m.folders {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return folders
}

// ListFiles returns the tracking records, sorted by path.
func (m *Monitor) ListFiles() []FileState {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make([]FileState, 0, len(m.files))
	for _, f := range m.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func (m *Monitor) loop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var fsEvents chan fsnotify.Event
	var fsErrors chan error
	if m.fsWatcher != nil {
		fsEvents = m.fsWatcher.Events
		fsErrors = m.fsWatcher.Errors
	}

	// Baseline pass so pre-existing files are classified as new once.
	m.scan(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.scan(context.Background())
		case <-m.kick:
			m.scan(context.Background())
		case _, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			// An event only schedules the next poll early.
			select {
			case m.kick <- struct{}{}:
			default:
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			slog.Warn("Fsnotify error", "error", err)
		}
	}
}

// scan walks every root, classifies each file against its tracking
// record, and dispatches ingest/delete calls. Per-file failures are
// logged and do not stop the scan.
func (m *Monitor) scan(ctx context.Context) {
	m.scanning.Lock()
	defer m.scanning.Unlock()

	m.mu.Lock()
	roots := m.folderListLocked()
	previous := make(map[string]FileState, len(m.files))
	for p, f := range m.files {
		previous[p] = f
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	current := make(map[string]FileState)

	for _, root := range roots {
		m.walkRoot(ctx, root, previous, current, now)
	}

	// Anything tracked but no longer on disk was deleted.
	for path := range previous {
		if _, alive := current[path]; alive {
			continue
		}
		if _, err := m.ingestor.DeleteFile(ctx, path); err != nil {
			slog.Warn("Failed to remove deleted file from index", "path", path, "error", err)
			m.countError()
		} else {
			slog.Info("Removed deleted file from index", "path", path)
		}
	}

	m.mu.Lock()
	m.files = current
	m.lastScan = now
	m.scanCount++
	m.mu.Unlock()
}

func (m *Monitor) walkRoot(ctx context.Context, root string, previous, current map[string]FileState, now time.Time) {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !m.recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if len(m.extsOK) > 0 && !m.extsOK[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		state := FileState{
			Path:     path,
			ModTime:  info.ModTime(),
			Size:     info.Size(),
			LastSeen: now,
		}

		prev, tracked := previous[path]
		switch {
		case !tracked:
			state.Ingested = m.ingest(ctx, path, "new")
		case !prev.ModTime.Equal(state.ModTime) || prev.Size != state.Size:
			state.Ingested = m.ingest(ctx, path, "modified")
		default:
			state.Ingested = prev.Ingested
		}
		current[path] = state
		return nil
	})
	if walkErr != nil {
		slog.Warn("Folder scan failed", "root", root, "error", walkErr)
		m.countError()
	}
}

func (m *Monitor) ingest(ctx context.Context, path, kind string) bool {
	if _, err := m.ingestor.IngestFile(ctx, path, nil); err != nil {
		slog.Warn("Failed to ingest "+kind+" file", "path", path, "error", err)
		m.countError()
		return false
	}
	slog.Info("Ingested "+kind+" file", "path", path)
	return true
}

func (m *Monitor) countError() {
	m.mu.Lock()
	m.errCount++
	m.mu.Unlock()
}

func isUnder(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && !startsWithDotDot(rel)
}

func startsWithDotDot(rel string) bool {
	return rel == ".." || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)
}
