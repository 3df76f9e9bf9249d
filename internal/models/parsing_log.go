package models

import "time"

// ErrorType classifies a parsing log entry. The taxonomy values identify
// failure classes; INFO/WARNING/ERROR carry plain diagnostics.
type ErrorType string

const (
	ErrorValidation ErrorType = "validation"
	ErrorParsing    ErrorType = "parsing"
	ErrorEmbedding  ErrorType = "embedding"
	ErrorMatching   ErrorType = "matching"
	ErrorDatabase   ErrorType = "database"
	ErrorNetwork    ErrorType = "network"
	ErrorLLM        ErrorType = "llm_error"
	ErrorUnknown    ErrorType = "unknown"
	LogInfo         ErrorType = "INFO"
	LogWarning      ErrorType = "WARNING"
	LogError        ErrorType = "ERROR"
)

// ParsingLog is a structured diagnostic row, append-only and bounded
// by an age-based cleanup task.
type ParsingLog struct {
	ID         string                 `json:"id"`
	TaskID     string                 `json:"task_id"`
	SupplierID *string                `json:"supplier_id,omitempty"`
	ErrorType  ErrorType              `json:"error_type"`
	Message    string                 `json:"message"`
	RowNumber  *int                   `json:"row_number,omitempty"`
	RowData    map[string]interface{} `json:"row_data,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
