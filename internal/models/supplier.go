package models

import "time"

// SourceType identifies where a supplier's price list comes from
type SourceType string

const (
	SourceGoogleSheets SourceType = "google_sheets"
	SourceCSV          SourceType = "csv"
	SourceExcel        SourceType = "excel"
)

// Valid reports whether the source type is one of the allowed values
func (s SourceType) Valid() bool {
	switch s {
	case SourceGoogleSheets, SourceCSV, SourceExcel:
		return true
	}
	return false
}

// Supplier is an external entity submitting catalogs.
// Created by onboarding, never mutated by ingestion.
type Supplier struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	SourceType SourceType        `json:"source_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
