package reliability

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // verification opens the snapshot directly
)

const (
	backupPrefix    = "stonecrest-backup-"
	backupSuffix    = ".db.gz"
	backupTimestamp = "2006-01-02-150405"

	// MinBackupsKept survive rotation regardless of age
	MinBackupsKept = 3
)

// BackupInfo describes one backup archive
type BackupInfo struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// BackupResult reports a completed backup run
type BackupResult struct {
	Path      string        `json:"path"`
	SizeBytes int64         `json:"size_bytes"`
	Checksum  string        `json:"checksum"`
	Uploaded  bool          `json:"uploaded"`
	Rotated   int           `json:"rotated"`
	Duration  time.Duration `json:"duration"`
}

// BackupService snapshots the ledger database into compressed archives,
// optionally ships them to an object store and rotates old copies.
type BackupService struct {
	db            *sql.DB
	backupDir     string
	store         ObjectStore
	retentionDays int
	events        *events.Manager
	now           func() time.Time
	log           zerolog.Logger
}

// NewBackupService creates a backup service. A nil store keeps backups local only.
func NewBackupService(
	db *sql.DB,
	backupDir string,
	store ObjectStore,
	retentionDays int,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		db:            db,
		backupDir:     backupDir,
		store:         store,
		retentionDays: retentionDays,
		events:        eventManager,
		now:           time.Now,
		log:           log.With().Str("service", "backup").Logger(),
	}
}

// Run takes a consistent snapshot, verifies it, compresses it and rotates old archives
func (s *BackupService) Run(ctx context.Context) (*BackupResult, error) {
	start := s.now()
	s.log.Info().Msg("Starting backup")

	stagingDir := filepath.Join(s.backupDir, "staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	name := backupPrefix + start.UTC().Format(backupTimestamp)
	snapshotPath := filepath.Join(stagingDir, name+".db")

	if err := s.snapshot(ctx, snapshotPath); err != nil {
		return nil, err
	}
	if err := verifySnapshot(snapshotPath); err != nil {
		return nil, err
	}

	archivePath := filepath.Join(s.backupDir, name+backupSuffix)
	if err := compressFile(snapshotPath, archivePath, name+".db"); err != nil {
		return nil, err
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}
	checksum, err := fileChecksum(archivePath)
	if err != nil {
		return nil, err
	}

	result := &BackupResult{
		Path:      archivePath,
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}

	if s.store != nil {
		if err := s.upload(ctx, archivePath); err != nil {
			return nil, err
		}
		result.Uploaded = true
	}

	rotated, err := s.rotate(ctx)
	if err != nil {
		// The new archive is safe; stale ones are retried next run
		s.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	result.Rotated = rotated
	result.Duration = s.now().Sub(start)

	s.log.Info().
		Str("path", archivePath).
		Int64("size_bytes", result.SizeBytes).
		Str("checksum", checksum).
		Bool("uploaded", result.Uploaded).
		Int("rotated", rotated).
		Dur("duration", result.Duration).
		Msg("Backup completed")

	if s.events != nil {
		s.events.Emit("reliability", &events.BackupCompletedData{
			File:      filepath.Base(archivePath),
			SizeBytes: result.SizeBytes,
			Uploaded:  result.Uploaded,
		})
	}

	return result, nil
}

// ListLocal returns local archives, newest first
func (s *BackupService) ListLocal() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{Name: entry.Name(), Timestamp: ts, SizeBytes: fi.Size()})
	}

	sortNewestFirst(backups)
	return backups, nil
}

// ListRemote returns archives in the object store, newest first
func (s *BackupService) ListRemote(ctx context.Context) ([]BackupInfo, error) {
	if s.store == nil {
		return nil, nil
	}

	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	var backups []BackupInfo
	for _, obj := range objects {
		ts, ok := parseBackupName(obj.Key)
		if !ok {
			continue
		}
		backups = append(backups, BackupInfo{Name: obj.Key, Timestamp: ts, SizeBytes: obj.SizeBytes})
	}

	sortNewestFirst(backups)
	return backups, nil
}

func (s *BackupService) snapshot(ctx context.Context, path string) error {
	// VACUUM INTO writes a transactionally consistent copy without blocking writers
	escaped := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

func (s *BackupService) upload(ctx context.Context, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	key := filepath.Base(archivePath)
	if err := s.store.Upload(ctx, key, f); err != nil {
		return err
	}
	s.log.Info().Str("key", key).Msg("Backup uploaded")
	return nil
}

func (s *BackupService) rotate(ctx context.Context) (int, error) {
	now := s.now()
	rotated := 0

	local, err := s.ListLocal()
	if err != nil {
		return 0, err
	}
	for _, b := range expiredBackups(local, s.retentionDays, now) {
		if err := os.Remove(filepath.Join(s.backupDir, b.Name)); err != nil {
			s.log.Warn().Err(err).Str("name", b.Name).Msg("Failed to remove local backup")
			continue
		}
		rotated++
	}

	remote, err := s.ListRemote(ctx)
	if err != nil {
		return rotated, err
	}
	for _, b := range expiredBackups(remote, s.retentionDays, now) {
		if err := s.store.Delete(ctx, b.Name); err != nil {
			s.log.Warn().Err(err).Str("key", b.Name).Msg("Failed to delete remote backup")
			continue
		}
		rotated++
	}

	if rotated > 0 {
		s.log.Info().Int("rotated", rotated).Int("retention_days", s.retentionDays).Msg("Old backups rotated")
	}
	return rotated, nil
}

// expiredBackups returns the backups older than the retention window,
// always sparing the newest MinBackupsKept. Input must be newest first.
// A non-positive retention keeps everything.
func expiredBackups(backups []BackupInfo, retentionDays int, now time.Time) []BackupInfo {
	if retentionDays <= 0 || len(backups) <= MinBackupsKept {
		return nil
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var expired []BackupInfo
	for _, b := range backups[MinBackupsKept:] {
		if b.Timestamp.Before(cutoff) {
			expired = append(expired, b)
		}
	}
	return expired
}

func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	ts, err := time.Parse(backupTimestamp, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func sortNewestFirst(backups []BackupInfo) {
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
}

func verifySnapshot(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to verify snapshot: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot integrity check failed: %s", result)
	}
	return nil
}

func compressFile(src, dst, entryName string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	gz, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		out.Close()
		return err
	}
	gz.Name = entryName

	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Close()
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
