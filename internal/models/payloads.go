package models

import "net/http"

// These structs define the JSON payloads returned by the deficiency-report entry
// points and handed to the downstream workflow.

const NothingToProcessMessage = "No PDFs to process."

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "Success"
	OutcomeFailed  OutcomeStatus = "Failed"
)

// Outcome is the per-document entry of a batch result. PersistError is set only
// when the terminal status write itself failed.
type Outcome struct {
	ID           string        `json:"id"`
	Status       OutcomeStatus `json:"status"`
	ReportPath   string        `json:"report_s3_path,omitempty"`
	Error        string        `json:"error,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`
}

func SuccessOutcome(id, reportPath string) Outcome {
	return Outcome{ID: id, Status: OutcomeSuccess, ReportPath: reportPath}
}

func FailedOutcome(id string, err error) Outcome {
	return Outcome{ID: id, Status: OutcomeFailed, Error: err.Error()}
}

// BatchResult aggregates one run. An empty Processed slice means there was nothing to do.
type BatchResult struct {
	RunID     string
	Processed []Outcome
}

func (b *BatchResult) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range b.Processed {
		if o.Status == OutcomeSuccess {
			out = append(out, o)
		}
	}
	return out
}

// HandlerResponse is the entry point's return value.
type HandlerResponse struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

type ResponseBody struct {
	Message   string    `json:"message,omitempty"`
	Processed []Outcome `json:"processed,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewHandlerResponse renders a batch result, or a run-level error.
func NewHandlerResponse(result *BatchResult, err error) HandlerResponse {
	if err != nil {
		return HandlerResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       ResponseBody{Error: err.Error()},
		}
	}
	if result == nil || len(result.Processed) == 0 {
		return HandlerResponse{
			StatusCode: http.StatusOK,
			Body:       ResponseBody{Message: NothingToProcessMessage},
		}
	}
	return HandlerResponse{
		StatusCode: http.StatusOK,
		Body:       ResponseBody{Processed: result.Processed},
	}
}

// HandoffRequest is the argument of the downstream workflow execution.
type HandoffRequest struct {
	RunID   string          `json:"runId"`
	Reports []HandoffReport `json:"reports"`
}

type HandoffReport struct {
	DocumentID string `json:"documentId"`
	ReportPath string `json:"reportPath"`
}
