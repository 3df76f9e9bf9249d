package etl

import (
	"context"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/supplyline/internal/interfaces"
	"github.com/ternarybob/supplyline/internal/models"
)

// Orchestrator drives one file-analysis job through its phases:
// analyzing (sheet selection), extracting (LLM over chunks) and
// normalizing (dedup, categories, persistence, embeddings).
// Progress flows to the job registry after every phase step; row-level
// failures accumulate as job errors without failing the job.
type Orchestrator struct {
	renderer    *Renderer
	pdfRenderer *PDFRenderer
	selector    *Selector
	extractor   *Extractor
	direct      *DirectParser
	dedup       *Deduplicator
	normalizer  interfaces.CategoryNormalizer
	embedder    interfaces.EmbeddingService
	items       interfaces.SupplierItemRepository
	logs        interfaces.ParsingLogRepository
	registry    interfaces.JobRegistry
	logger      arbor.ILogger
}

// NewOrchestrator wires the semantic ETL pipeline
func NewOrchestrator(
	renderer *Renderer,
	pdfRenderer *PDFRenderer,
	selector *Selector,
	extractor *Extractor,
	dedup *Deduplicator,
	normalizer interfaces.CategoryNormalizer,
	embedder interfaces.EmbeddingService,
	items interfaces.SupplierItemRepository,
	logs interfaces.ParsingLogRepository,
	registry interfaces.JobRegistry,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		renderer:    renderer,
		pdfRenderer: pdfRenderer,
		selector:    selector,
		extractor:   extractor,
		direct:      NewDirectParser(logger),
		dedup:       dedup,
		normalizer:  normalizer,
		embedder:    embedder,
		items:       items,
		logs:        logs,
		registry:    registry,
		logger:      logger,
	}
}

// RunOptions carries per-request processing switches from the API
type RunOptions struct {
	// FileType forces the file format (pdf, excel, csv); when empty the
	// extension decides
	FileType string
	// PrioritySheet pins workbook selection to one named sheet
	PrioritySheet string
	// UseSemanticETL routes extraction through the LLM; when false the
	// keyword-mapping direct parser runs instead
	UseSemanticETL bool
}

// DefaultRunOptions is the semantic pipeline with format autodetection
func DefaultRunOptions() RunOptions {
	return RunOptions{UseSemanticETL: true}
}

// Run processes one downloaded file for a job. The path must be local;
// download and URL resolution happen upstream.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job, path string, opts RunOptions) error {
	startTime := time.Now()
	o.logger.Info().
		Str("job_id", job.ID).
		Str("supplier_id", job.SupplierID).
		Str("file", filepath.Base(path)).
		Bool("semantic", opts.UseSemanticETL).
		Msg("Starting file analysis")

	var products []models.ExtractedProduct
	var extractionErrors []models.ExtractionError
	var totalRows int

	if opts.UseSemanticETL {
		chunks, rows, err := o.analyze(ctx, job, path, opts)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		if len(chunks) == 0 {
			// An empty file completes successfully with zero items
			o.registry.MarkCompleted(ctx, job.ID, models.JobStatusCompleted, &models.JobMetrics{SuccessRate: 1})
			return nil
		}
		totalRows = rows
		products, extractionErrors, err = o.extract(ctx, job, chunks)
		if err != nil {
			return o.fail(ctx, job, err)
		}
	} else {
		var err error
		products, extractionErrors, totalRows, err = o.analyzeDirect(ctx, job, path, opts)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		if totalRows == 0 && len(products) == 0 && len(extractionErrors) == 0 {
			o.registry.MarkCompleted(ctx, job.ID, models.JobStatusCompleted, &models.JobMetrics{SuccessRate: 1})
			return nil
		}
	}

	metrics, err := o.normalize(ctx, job, products, extractionErrors, totalRows)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	status := models.JobStatusCompleted
	if models.StatusForRate(metrics.SuccessRate) == models.ExtractionCompletedWithErrors {
		status = models.JobStatusCompletedWithErrors
	} else if models.StatusForRate(metrics.SuccessRate) == models.ExtractionFailed {
		status = models.JobStatusFailed
	}

	if err := o.registry.MarkCompleted(ctx, job.ID, status, metrics); err != nil {
		return err
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("parsed_rows", metrics.ParsedRows).
		Float64("success_rate", metrics.SuccessRate).
		Dur("duration", time.Since(startTime)).
		Msg("File analysis finished")
	return nil
}

// resolveFileKind honors an explicit file_type and falls back to the
// extension
func resolveFileKind(path, fileType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "excel", "csv", "pdf":
		return strings.ToLower(strings.TrimSpace(fileType)), nil
	case "":
	default:
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls":
		return "excel", nil
	case ".csv":
		return "csv", nil
	case ".pdf":
		return "pdf", nil
	default:
		return "", fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
}

// analyze opens the file, selects sheets and renders markdown chunks
func (o *Orchestrator) analyze(ctx context.Context, job *models.Job, path string, opts RunOptions) ([]models.MarkdownChunk, int, error) {
	o.registry.UpdateProgress(ctx, job.ID, models.PhaseAnalyzing, 5, 0, 0)

	kind, err := resolveFileKind(path, opts.FileType)
	if err != nil {
		return nil, 0, err
	}
	switch kind {
	case "excel":
		return o.analyzeWorkbook(ctx, job, path, opts)
	case "csv":
		chunks, err := o.renderer.RenderCSV(path)
		if err != nil {
			return nil, 0, err
		}
		return chunks, totalRowsOf(chunks), nil
	default:
		chunks, err := o.pdfRenderer.RenderFile(ctx, path)
		if err != nil {
			return nil, 0, err
		}
		return chunks, len(chunks), nil
	}
}

// analyzeDirect runs the keyword-mapping parser over tabular files.
// PDFs have no cell grid and always need the semantic path.
func (o *Orchestrator) analyzeDirect(ctx context.Context, job *models.Job, path string, opts RunOptions) ([]models.ExtractedProduct, []models.ExtractionError, int, error) {
	o.registry.UpdateProgress(ctx, job.ID, models.PhaseAnalyzing, 5, 0, 0)

	kind, err := resolveFileKind(path, opts.FileType)
	if err != nil {
		return nil, nil, 0, err
	}

	switch kind {
	case "csv":
		grid, err := ReadCSVRows(path)
		if err != nil {
			return nil, nil, 0, err
		}
		if len(grid) == 0 {
			return nil, nil, 0, nil
		}
		products, parseErrors := o.direct.Parse(grid)
		return products, parseErrors, len(grid) - 1, nil
	case "excel":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to open workbook: %w", err)
		}
		defer f.Close()

		sheets, err := o.renderer.ListSheets(f)
		if err != nil {
			return nil, nil, 0, err
		}
		// The direct path never calls the LLM, selection included
		selection := o.selector.Select(ctx, sheets, nil, SelectOptions{PrioritySheet: opts.PrioritySheet})
		o.logSelection(job, selection)

		var products []models.ExtractedProduct
		var parseErrors []models.ExtractionError
		totalRows := 0
		for _, name := range selection.Selected {
			grid, err := f.GetRows(name)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("failed to read sheet %q: %w", name, err)
			}
			if len(grid) == 0 {
				continue
			}
			sheetProducts, sheetErrors := o.direct.Parse(grid)
			products = append(products, sheetProducts...)
			parseErrors = append(parseErrors, sheetErrors...)
			totalRows += len(grid) - 1
		}
		return products, parseErrors, totalRows, nil
	default:
		return nil, nil, 0, fmt.Errorf("file type %q requires semantic extraction", kind)
	}
}

func (o *Orchestrator) logSelection(job *models.Job, selection models.SelectionResult) {
	o.logger.Info().
		Str("job_id", job.ID).
		Strs("selected", selection.Selected).
		Strs("skipped", selection.Skipped).
		Str("reasoning", selection.Reasoning).
		Msg("Sheet selection complete")
}

func (o *Orchestrator) analyzeWorkbook(ctx context.Context, job *models.Job, path string, opts RunOptions) ([]models.MarkdownChunk, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets, err := o.renderer.ListSheets(f)
	if err != nil {
		return nil, 0, err
	}

	headers := make(map[string][]string, len(sheets))
	for _, sheet := range sheets {
		if sheet.IsEmpty {
			continue
		}
		rows, err := f.GetRows(sheet.Name)
		if err == nil && len(rows) > 0 {
			headers[sheet.Name] = rows[0]
		}
	}

	selection := o.selector.Select(ctx, sheets, headers, SelectOptions{
		PrioritySheet: opts.PrioritySheet,
		AllowLLM:      true,
	})
	o.logSelection(job, selection)

	var chunks []models.MarkdownChunk
	totalRows := 0
	for _, name := range selection.Selected {
		sheetChunks, err := o.renderer.RenderSheet(f, name)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to render sheet %q: %w", name, err)
		}
		for _, chunk := range sheetChunks {
			chunk.ChunkID = len(chunks)
			chunks = append(chunks, chunk)
		}
		if len(sheetChunks) > 0 {
			totalRows += sheetChunks[0].TotalRows
		}
	}
	return chunks, totalRows, nil
}

// extract runs the LLM over every chunk. A failed chunk (after the LLM
// client's own retries) is logged and skipped; its rows count as failed.
func (o *Orchestrator) extract(ctx context.Context, job *models.Job, chunks []models.MarkdownChunk) ([]models.ExtractedProduct, []models.ExtractionError, error) {
	var products []models.ExtractedProduct
	var extractionErrors []models.ExtractionError

	for i, chunk := range chunks {
		chunkProducts, chunkErrors, err := o.extractor.ExtractChunk(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			o.logger.Warn().Err(err).Str("job_id", job.ID).Int("chunk_id", chunk.ChunkID).Msg("Chunk extraction failed")
			o.registry.AppendError(ctx, job.ID, fmt.Sprintf("chunk %d: %s", chunk.ChunkID, err.Error()))
			extractionErrors = append(extractionErrors, models.ExtractionError{
				ChunkID: chunk.ChunkID,
				Type:    string(models.ErrorLLM),
				Message: err.Error(),
			})
			continue
		}
		products = append(products, chunkProducts...)
		extractionErrors = append(extractionErrors, chunkErrors...)

		// Extraction spans 10..70 percent of the job
		percent := 10 + 60*float64(i+1)/float64(len(chunks))
		o.registry.UpdateProgress(ctx, job.ID, models.PhaseExtracting, percent, len(products), 0)
	}

	return products, extractionErrors, nil
}

// normalize dedups, resolves categories, persists items and embeds them
func (o *Orchestrator) normalize(ctx context.Context, job *models.Job, products []models.ExtractedProduct, extractionErrors []models.ExtractionError, totalRows int) (*models.JobMetrics, error) {
	o.registry.UpdateProgress(ctx, job.ID, models.PhaseNormalizing, 70, len(products), 0)

	unique, dedupStats := o.dedup.Dedup(products)
	o.normalizer.Reset()

	processed := 0
	persisted := 0
	for idx := range unique {
		product := &unique[idx]

		if len(product.CategoryPath) > 0 {
			leafID, _, err := o.normalizer.NormalizePath(ctx, job.SupplierID, product.CategoryPath)
			if err != nil {
				o.logger.Warn().Err(err).Str("job_id", job.ID).Str("name", product.Name).Msg("Category normalization failed")
				o.appendLog(ctx, job, models.ErrorParsing, fmt.Sprintf("category normalization failed for %q: %s", product.Name, err.Error()), product.RawData)
			} else {
				product.CategoryID = leafID
			}
		}

		item := o.toSupplierItem(job.SupplierID, idx, product)
		if _, err := o.items.Upsert(ctx, item); err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Str("name", product.Name).Msg("Supplier item upsert failed")
			o.registry.AppendError(ctx, job.ID, fmt.Sprintf("persist %q: %s", product.Name, err.Error()))
			o.appendLog(ctx, job, models.ErrorDatabase, err.Error(), product.RawData)
			processed++
			continue
		}
		persisted++

		// Embedding failures degrade matching quality but never the job
		if o.embedder != nil {
			if err := o.embedder.EmbedItem(ctx, item); err != nil {
				o.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Embedding failed")
				o.appendLog(ctx, job, models.ErrorEmbedding, err.Error(), nil)
			}
		}

		processed++
		percent := 70 + 28*float64(processed)/float64(len(unique))
		o.registry.UpdateProgress(ctx, job.ID, models.PhaseNormalizing, percent, processed, len(unique))
	}

	for _, extractionError := range extractionErrors {
		o.appendLog(ctx, job, models.ErrorType(extractionError.Type), extractionError.Message, extractionError.RawData)
	}

	normStats := o.normalizer.Stats()
	successful := persisted
	if totalRows == 0 {
		totalRows = len(products)
	}

	metrics := &models.JobMetrics{
		TotalRows:         totalRows,
		ParsedRows:        successful,
		DuplicatesRemoved: dedupStats.Removed,
		CategoriesMatched: normStats.Matched,
		CategoriesCreated: normStats.Created,
		ReviewQueueCount:  normStats.ReviewQueue,
		AverageSimilarity: normStats.AverageSimilarity(),
	}
	if totalRows > 0 {
		// Folded duplicates are successfully handled rows, not failures
		metrics.SuccessRate = float64(successful+dedupStats.Removed) / float64(totalRows)
		if metrics.SuccessRate > 1 {
			metrics.SuccessRate = 1
		}
	} else {
		metrics.SuccessRate = 1
	}

	return metrics, nil
}

// toSupplierItem converts an extracted product into a persistable item.
// The generated SKU is deterministic for a (supplier, index, name) triple
// so re-runs upsert instead of duplicating.
func (o *Orchestrator) toSupplierItem(supplierID string, idx int, product *models.ExtractedProduct) *models.SupplierItem {
	sku := product.SKU
	if sku == "" {
		sku = GenerateSKU(supplierID, idx, product.Name)
	}

	characteristics := models.Characteristics{}
	if product.Description != "" {
		characteristics["description"] = product.Description
	}
	if product.Brand != "" {
		characteristics["brand"] = product.Brand
	}
	if product.Unit != "" {
		characteristics["unit"] = product.Unit
	}
	if product.CategoryID != nil {
		characteristics["category_id"] = *product.CategoryID
	}
	if len(product.CategoryPath) > 0 {
		characteristics["category_path"] = strings.Join(product.CategoryPath, " / ")
	}
	if product.InStock != nil {
		characteristics["in_stock"] = *product.InStock
	}
	if product.PriceOpt != nil {
		characteristics["price_opt"] = product.PriceOpt.String()
	}

	return &models.SupplierItem{
		SupplierID:      supplierID,
		SupplierSKU:     sku,
		Name:            product.Name,
		CurrentPrice:    product.PriceRRC,
		Characteristics: characteristics,
		MatchStatus:     models.MatchUnmatched,
	}
}

// GenerateSKU builds a synthetic supplier SKU for rows without one
func GenerateSKU(supplierID string, idx int, name string) string {
	short := supplierID
	if len(short) > 8 {
		short = short[:8]
	}
	h := fnv.New32a()
	h.Write([]byte(models.NormalizeName(name)))
	return fmt.Sprintf("ML-%s-%d-%08x", short, idx, h.Sum32())
}

func (o *Orchestrator) fail(ctx context.Context, job *models.Job, cause error) error {
	o.logger.Error().Err(cause).Str("job_id", job.ID).Msg("File analysis failed")
	o.appendLog(ctx, job, models.ErrorParsing, cause.Error(), nil)
	o.registry.AppendError(ctx, job.ID, cause.Error())
	o.registry.MarkCompleted(ctx, job.ID, models.JobStatusFailed, nil)
	return cause
}

func (o *Orchestrator) appendLog(ctx context.Context, job *models.Job, errorType models.ErrorType, message string, rowData map[string]interface{}) {
	if o.logs == nil {
		return
	}
	supplierID := job.SupplierID
	log := &models.ParsingLog{
		TaskID:    job.ID,
		ErrorType: errorType,
		Message:   message,
		RowData:   rowData,
		CreatedAt: time.Now().UTC(),
	}
	if supplierID != "" {
		log.SupplierID = &supplierID
	}
	if err := o.logs.Append(ctx, log); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to append parsing log")
	}
}

func totalRowsOf(chunks []models.MarkdownChunk) int {
	if len(chunks) == 0 {
		return 0
	}
	return chunks[0].TotalRows
}
