package courier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/common"
)

// FileResolver turns a supplier file URL into a readable local path.
// Remote files are streamed into the uploads directory and moved into
// place atomically so a crashed download never leaves a partial file
// visible. Relative paths resolve inside the uploads root only.
type FileResolver struct {
	uploadsDir string
	httpClient *http.Client
	logger     arbor.ILogger
}

// NewFileResolver creates a resolver rooted at the uploads directory
func NewFileResolver(config *common.UploadsConfig, logger arbor.ILogger) *FileResolver {
	return &FileResolver{
		uploadsDir: config.Dir,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Resolve returns a local path for the file URL. The second return value
// reports whether the path is a download owned by the resolver, eligible
// for cleanup once processing ends.
func (r *FileResolver) Resolve(ctx context.Context, fileURL string) (string, bool, error) {
	switch {
	case strings.HasPrefix(fileURL, "http://"), strings.HasPrefix(fileURL, "https://"):
		path, err := r.download(ctx, fileURL)
		return path, err == nil, err

	case strings.HasPrefix(fileURL, "file://"):
		return r.local(strings.TrimPrefix(fileURL, "file://"))

	case filepath.IsAbs(fileURL):
		return r.local(fileURL)

	default:
		return r.relative(fileURL)
	}
}

func (r *FileResolver) local(path string) (string, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return "", false, fmt.Errorf("file not accessible: %w", err)
	}
	return path, false, nil
}

// relative resolves inside the uploads root, rejecting path escapes
func (r *FileResolver) relative(rel string) (string, bool, error) {
	root, err := filepath.Abs(r.uploadsDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve uploads root: %w", err)
	}
	candidate := filepath.Clean(filepath.Join(root, rel))
	if candidate != root && !strings.HasPrefix(candidate, root+string(filepath.Separator)) {
		return "", false, fmt.Errorf("path %q escapes the uploads directory", rel)
	}
	return r.local(candidate)
}

// download streams the remote file to a temp file in the uploads root and
// renames it into place once complete.
func (r *FileResolver) download(ctx context.Context, fileURL string) (string, error) {
	if err := os.MkdirAll(r.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid file url: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	name := filepath.Base(req.URL.Path)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	final := filepath.Join(r.uploadsDir, fmt.Sprintf("%s_%s", common.NewID(), name))

	tmp, err := os.CreateTemp(r.uploadsDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download write failed: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	r.logger.Info().
		Str("url", fileURL).
		Str("path", final).
		Int64("bytes", written).
		Msg("Supplier file downloaded")
	return final, nil
}
