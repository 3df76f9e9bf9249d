package courier

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

// CleanupTask removes aged files from the uploads directory. Files that
// belong to an active delivery are skipped regardless of age.
type CleanupTask struct {
	uploadsDir string
	ttl        time.Duration
	inFlight   func(path string) bool
	logger     arbor.ILogger
}

// NewCleanupTask creates the uploads cleanup task
func NewCleanupTask(config *common.UploadsConfig, inFlight func(path string) bool, logger arbor.ILogger) *CleanupTask {
	ttl := time.Duration(config.CleanupTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CleanupTask{
		uploadsDir: config.Dir,
		ttl:        ttl,
		inFlight:   inFlight,
		logger:     logger,
	}
}

// Run removes expired uploads, returning how many files were deleted
func (t *CleanupTask) Run() (int, error) {
	entries, err := os.ReadDir(t.uploadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-t.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(t.uploadsDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if t.inFlight != nil && t.inFlight(path) {
			continue
		}
		if err := os.Remove(path); err != nil {
			t.logger.Warn().Err(err).Str("path", path).Msg("Upload cleanup failed")
			continue
		}
		removed++
	}

	if removed > 0 {
		t.logger.Info().Int("removed", removed).Msg("Aged uploads cleaned up")
	}
	return removed, nil
}
