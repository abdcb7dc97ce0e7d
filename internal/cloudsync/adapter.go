// Package cloudsync mirrors full-store snapshots into a user-picked
// cloud-synced directory and restores from the newest one. The directory is
// chosen through the platform file picker; this adapter only ever sees the
// picked handle (URI plus resolved filesystem path).
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/halcyonlabs/halcyon-device/internal/backup"
	"github.com/halcyonlabs/halcyon-device/internal/faults"
	"go.uber.org/zap"
)

const (
	settingsKeyDestination = "cloud_backup_destination"
	backupSubfolder        = "HalcyonBackups"
	backupFilePrefix       = "halcyon_backup"
	defaultKeepCount       = 5
)

var (
	// ErrNotConfigured indicates a backup or restore before ConfigureDestination.
	ErrNotConfigured = errors.New("cloudsync: destination not configured")
	// ErrDestinationUnreachable indicates the configured directory was revoked or deleted.
	ErrDestinationUnreachable = errors.New("cloudsync: destination is no longer accessible")
	// ErrNoBackupsFound indicates a restore against a destination holding no snapshot files.
	ErrNoBackupsFound = errors.New("cloudsync: no backup files found")
	// ErrUnknownProvider indicates a provider tag this build does not recognize.
	ErrUnknownProvider = errors.New("cloudsync: unknown provider")
	// ErrProviderMismatch indicates a picked directory that does not belong to the expected provider.
	ErrProviderMismatch = errors.New("cloudsync: selected directory does not belong to the expected provider")

	errMissingOrchestrator = errors.New("orchestrator is required")
	errMissingSettings     = errors.New("settings store is required")
	noOpLogger             = zap.NewNop()
)

const (
	opConfigure = "cloudsync.configure_destination"
	opBackupNow = "cloudsync.backup_now"
	opRestore   = "cloudsync.restore_latest"
	opStatus    = "cloudsync.status"
)

// Provider tags the cloud storage vendor backing the picked directory.
type Provider string

const (
	ProviderGoogleDrive Provider = "gdrive"
	ProviderDropbox     Provider = "dropbox"
	ProviderOneDrive    Provider = "onedrive"
	ProviderICloud      Provider = "icloud"
)

// Android storage-access-framework URIs carry the provider's package as the
// authority. A picked directory whose URI lacks the marker is some other
// app's tree and would never sync.
var providerURIMarkers = map[Provider]string{
	ProviderGoogleDrive: "com.google.android.apps.docs",
	ProviderDropbox:     "com.dropbox.android",
	ProviderOneDrive:    "com.microsoft.skydrive",
}

// PickedDirectory is the handle returned by the platform file picker.
type PickedDirectory struct {
	URI      string
	Path     string
	Platform string
}

// Destination is the persisted cloud backup configuration.
type Destination struct {
	Provider            Provider `json:"provider"`
	URI                 string   `json:"uri"`
	Path                string   `json:"path"`
	ConfiguredAtSeconds int64    `json:"configured_at_s"`
	LastBackupAtSeconds int64    `json:"last_backup_at_s"`
}

// SnapshotSource is the slice of the backup orchestrator the adapter drives.
type SnapshotSource interface {
	Export(ctx context.Context) (backup.Snapshot, error)
	Restore(ctx context.Context, snapshot backup.Snapshot) (backup.RestoreCounts, error)
}

// ConfigStore persists the destination between runs.
type ConfigStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
}

// AdapterConfig describes the dependencies of the cloud backup adapter.
type AdapterConfig struct {
	Orchestrator SnapshotSource
	Settings     ConfigStore
	Clock        func() time.Time
	Logger       *zap.Logger
	KeepCount    int
}

// Adapter writes timestamped snapshot files into the configured directory,
// prunes old ones, and restores from the newest.
type Adapter struct {
	orchestrator SnapshotSource
	settings     ConfigStore
	clock        func() time.Time
	logger       *zap.Logger
	keepCount    int
}

// NewAdapter constructs the cloud backup adapter.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Orchestrator == nil {
		return nil, faults.New("cloudsync.adapter.new", "missing_orchestrator", errMissingOrchestrator)
	}
	if cfg.Settings == nil {
		return nil, faults.New("cloudsync.adapter.new", "missing_settings", errMissingSettings)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	keep := cfg.KeepCount
	if keep <= 0 {
		keep = defaultKeepCount
	}

	return &Adapter{
		orchestrator: cfg.Orchestrator,
		settings:     cfg.Settings,
		clock:        clock,
		logger:       logger,
		keepCount:    keep,
	}, nil
}

// Status returns the persisted destination, if any.
func (a *Adapter) Status(ctx context.Context) (Destination, bool, error) {
	var destination Destination
	found, err := a.settings.Get(ctx, settingsKeyDestination, &destination)
	if err != nil {
		return Destination{}, false, faults.New(opStatus, "config_read_failed", err)
	}
	return destination, found, nil
}

// ConfigureDestination validates the picked directory and persists it as the
// backup destination. A rejected pick leaves any previous configuration
// untouched.
func (a *Adapter) ConfigureDestination(ctx context.Context, picked PickedDirectory, provider Provider) (Destination, error) {
	marker, known := providerURIMarkers[provider]
	if !known && provider != ProviderICloud {
		return Destination{}, faults.New(opConfigure, "unknown_provider", fmt.Errorf("%w: %q", ErrUnknownProvider, provider))
	}

	if picked.Platform == "android" {
		// Only providers with a known document-provider authority exist on
		// android; iCloud carries no marker and must not slip past the check.
		if marker == "" {
			return Destination{}, faults.New(opConfigure, "provider_mismatch",
				fmt.Errorf("%w: provider %q is not available on android", ErrProviderMismatch, provider))
		}
		if !strings.Contains(picked.URI, marker) {
			return Destination{}, faults.New(opConfigure, "provider_mismatch",
				fmt.Errorf("%w: uri %q lacks marker %q", ErrProviderMismatch, picked.URI, marker))
		}
	}

	if err := os.MkdirAll(filepath.Join(picked.Path, backupSubfolder), 0o755); err != nil {
		a.logError(opConfigure, "destination_unreachable", err, zap.String("path", picked.Path))
		return Destination{}, faults.New(opConfigure, "destination_unreachable",
			fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	destination := Destination{
		Provider:            provider,
		URI:                 picked.URI,
		Path:                picked.Path,
		ConfiguredAtSeconds: a.clock().UTC().Unix(),
	}
	if err := a.settings.Put(ctx, settingsKeyDestination, destination); err != nil {
		a.logError(opConfigure, "config_write_failed", err)
		return Destination{}, faults.New(opConfigure, "config_write_failed", err)
	}

	a.logger.Info("cloud backup destination configured",
		zap.String("provider", string(provider)),
		zap.String("path", destination.Path))
	return destination, nil
}

// BackupNow exports a snapshot and writes it as a new timestamped file inside
// the destination's backup subfolder, then prunes all but the newest files.
// Pruning is best effort: a failed cleanup never fails a succeeded backup.
func (a *Adapter) BackupNow(ctx context.Context) (string, error) {
	destination, err := a.requireDestination(ctx, opBackupNow)
	if err != nil {
		return "", err
	}

	snapshot, err := a.orchestrator.Export(ctx)
	if err != nil {
		return "", faults.New(opBackupNow, "export_failed", err)
	}

	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", faults.New(opBackupNow, "encode_failed", err)
	}

	folder := filepath.Join(destination.Path, backupSubfolder)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		a.logError(opBackupNow, "destination_unreachable", err, zap.String("path", folder))
		return "", faults.New(opBackupNow, "destination_unreachable",
			fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	fileName := backupFileName(a.clock().UTC())
	filePath := filepath.Join(folder, fileName)
	if err := os.WriteFile(filePath, encoded, 0o644); err != nil {
		a.logError(opBackupNow, "write_failed", err, zap.String("file", filePath))
		return "", faults.New(opBackupNow, "write_failed",
			fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	destination.LastBackupAtSeconds = a.clock().UTC().Unix()
	if err := a.settings.Put(ctx, settingsKeyDestination, destination); err != nil {
		a.logError(opBackupNow, "config_write_failed", err)
		return "", faults.New(opBackupNow, "config_write_failed", err)
	}

	a.pruneOldBackups(folder)

	a.logger.Info("cloud backup written",
		zap.String("file", fileName),
		zap.Int("bytes", len(encoded)))
	return fileName, nil
}

// RestoreLatest reads the most recently modified backup file from the
// destination and applies it through the orchestrator. The file is parsed in
// full before a single row is written.
func (a *Adapter) RestoreLatest(ctx context.Context) (backup.RestoreCounts, error) {
	destination, err := a.requireDestination(ctx, opRestore)
	if err != nil {
		return backup.RestoreCounts{}, err
	}

	folder := filepath.Join(destination.Path, backupSubfolder)
	newest, err := newestBackupFile(folder)
	if err != nil {
		if errors.Is(err, ErrNoBackupsFound) {
			return backup.RestoreCounts{}, faults.New(opRestore, "no_backups_found", err)
		}
		a.logError(opRestore, "destination_unreachable", err, zap.String("path", folder))
		return backup.RestoreCounts{}, faults.New(opRestore, "destination_unreachable",
			fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	contents, err := os.ReadFile(newest)
	if err != nil {
		a.logError(opRestore, "read_failed", err, zap.String("file", newest))
		return backup.RestoreCounts{}, faults.New(opRestore, "read_failed",
			fmt.Errorf("%w: %v", ErrDestinationUnreachable, err))
	}

	var snapshot backup.Snapshot
	if err := json.Unmarshal(contents, &snapshot); err != nil {
		a.logError(opRestore, "parse_failed", err, zap.String("file", newest))
		return backup.RestoreCounts{}, faults.New(opRestore, "parse_failed", err)
	}

	counts, err := a.orchestrator.Restore(ctx, snapshot)
	if err != nil {
		return backup.RestoreCounts{}, faults.New(opRestore, "restore_failed", err)
	}

	a.logger.Info("cloud backup restored", zap.String("file", filepath.Base(newest)))
	return counts, nil
}

func (a *Adapter) requireDestination(ctx context.Context, operation string) (Destination, error) {
	destination, found, err := a.Status(ctx)
	if err != nil {
		return Destination{}, faults.New(operation, "config_read_failed", err)
	}
	if !found {
		return Destination{}, faults.New(operation, "not_configured", ErrNotConfigured)
	}
	return destination, nil
}

// pruneOldBackups removes all but the keepCount most recently modified backup
// files, oldest first. Failures are logged and swallowed.
func (a *Adapter) pruneOldBackups(folder string) {
	files, err := listBackupFiles(folder)
	if err != nil {
		a.logger.Warn("backup prune skipped", zap.Error(err))
		return
	}
	if len(files) <= a.keepCount {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	for _, stale := range files[a.keepCount:] {
		if err := os.Remove(stale.path); err != nil {
			a.logger.Warn("failed to prune old backup",
				zap.String("file", stale.path),
				zap.Error(err))
			continue
		}
		a.logger.Debug("pruned old backup", zap.String("file", stale.path))
	}
}

type backupFile struct {
	path    string
	modTime time.Time
}

func listBackupFiles(folder string) ([]backupFile, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	files := make([]backupFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, backupFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, backupFile{
			path:    filepath.Join(folder, name),
			modTime: info.ModTime(),
		})
	}
	return files, nil
}

func newestBackupFile(folder string) (string, error) {
	files, err := listBackupFiles(folder)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoBackupsFound
	}
	newest := files[0]
	for _, candidate := range files[1:] {
		if candidate.modTime.After(newest.modTime) {
			newest = candidate
		}
	}
	return newest.path, nil
}

func (a *Adapter) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	a.logger.Error("cloud backup error", attrs...)
}

// backupFileName renders "<prefix>_<ISO timestamp>.json" with the colons and
// dots of the timestamp replaced by dashes, keeping the name portable across
// the providers' sync clients.
func backupFileName(at time.Time) string {
	stamp := at.Format("2006-01-02T15:04:05.000Z")
	sanitized := strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s_%s.json", backupFilePrefix, sanitized)
}
