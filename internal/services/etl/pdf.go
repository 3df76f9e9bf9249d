package etl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/supplyline/internal/models"
)

// PDFRenderer extracts page text from PDF price lists and wraps it in the
// same chunk shape the markdown renderer produces, so the extractor treats
// both paths identically.
type PDFRenderer struct {
	logger  arbor.ILogger
	tempDir string
}

// NewPDFRenderer creates a PDF renderer with a scratch directory for
// pdfcpu content extraction
func NewPDFRenderer(logger arbor.ILogger) *PDFRenderer {
	tempDir := filepath.Join(os.TempDir(), "supplyline-pdf")
	os.MkdirAll(tempDir, 0755)
	return &PDFRenderer{logger: logger, tempDir: tempDir}
}

// RenderFile extracts text per page, one chunk per page
func (r *PDFRenderer) RenderFile(ctx context.Context, path string) ([]models.MarkdownChunk, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF %s: %w", path, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return nil, nil
	}

	outDir, err := os.MkdirTemp(r.tempDir, "pages_")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	chunks := make([]models.MarkdownChunk, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := pageTexts[pageNum]
		if text == "" {
			continue
		}
		chunks = append(chunks, models.MarkdownChunk{
			ChunkID:   len(chunks),
			StartRow:  pageNum,
			EndRow:    pageNum,
			Markdown:  text,
			TotalRows: pageCount,
		})
	}

	r.logger.Debug().
		Str("path", filepath.Base(path)).
		Int("pages", pageCount).
		Int("chunks", len(chunks)).
		Msg("PDF rendered for extraction")

	return chunks, nil
}
