package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the processing state of an inspection PDF.
// NotProcessed -> Processing -> {Success, Failed}.
type Status int

const (
	StatusNotProcessed Status = iota
	StatusProcessing
	StatusSuccess
	StatusFailed
)

// Column values shared by every status store backend.
const (
	storedNotProcessed = "Not Processed"
	storedProcessing   = "Processing"
	storedSuccess      = "Process Successful"
	storedFailed       = "Process Failed"
)

func (s Status) String() string {
	switch s {
	case StatusNotProcessed:
		return "NotProcessed"
	case StatusProcessing:
		return "Processing"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StoredValue is the string written to the status column.
func (s Status) StoredValue() string {
	switch s {
	case StatusNotProcessed:
		return storedNotProcessed
	case StatusProcessing:
		return storedProcessing
	case StatusSuccess:
		return storedSuccess
	case StatusFailed:
		return storedFailed
	default:
		return ""
	}
}

// ParseStoredStatus maps a status column value back to a Status.
func ParseStoredStatus(v string) (Status, error) {
	switch v {
	case storedNotProcessed:
		return StatusNotProcessed, nil
	case storedProcessing:
		return StatusProcessing, nil
	case storedSuccess:
		return StatusSuccess, nil
	case storedFailed:
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown document status %q", v)
	}
}

// Terminal reports whether no further transition happens in this run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// DocumentRef is what the orchestrator needs to process one record.
type DocumentRef struct {
	ID        string
	SourceRef string
}

// PDFDocument is the Firestore shape of a document record.
type PDFDocument struct {
	PDFFile          string    `firestore:"pdfFile"`
	Status           string    `firestore:"status"`
	DeficiencyReport *string   `firestore:"deficiencyReport"`
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty"`
}

// InspectionReport is the structured artifact produced for each PDF.
type InspectionReport struct {
	Title             string            `json:"title"`
	Location          string            `json:"location"`
	Contact           string            `json:"contact"`
	Inspector         string            `json:"inspector"`
	DeficiencySummary []DeficiencyEntry `json:"deficiency_summary"`
}

// DeficiencyEntry fields are nil when the source does not state them; they
// serialize as explicit nulls.
type DeficiencyEntry struct {
	Status      *string `json:"status"`
	Severity    *string `json:"severity"`
	Description *string `json:"description"`
	PageNo      *string `json:"page_no"`
}

// ArtifactKey is the object key the report for document id is stored under.
func ArtifactKey(id string) string {
	return fmt.Sprintf("%s/%s_report.json", id, id)
}

// MarshalArtifact renders the report as the persisted, pretty-printed JSON artifact.
func (r *InspectionReport) MarshalArtifact() ([]byte, error) {
	out := *r
	if out.DeficiencySummary == nil {
		out.DeficiencySummary = []DeficiencyEntry{}
	}
	return json.MarshalIndent(out, "", "    ")
}
