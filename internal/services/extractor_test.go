package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
)

type stubPages struct {
	pages []string
	err   error
}

func (s stubPages) ReadPages(string) ([]string, error) { return s.pages, s.err }

type scriptedModel struct {
	responses []string
	errs      []error
	inputs    []string
}

func (m *scriptedModel) GenerateReport(ctx context.Context, text string) ([]byte, error) {
	i := len(m.inputs)
	m.inputs = append(m.inputs, text)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("model call without deadline")
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return []byte(m.responses[i]), nil
	}
	return nil, errors.New("no scripted response")
}

const validReport = `{"title":"Fire Pump Inspection","location":"EANLUBF","contact":"J. Smith","inspector":"A. Jones",
"deficiency_summary":[{"status":null,"severity":"Critical","description":"Valve closed.","page_no":"10"}]}`

func TestExtractNormalizesTextAndParses(t *testing.T) {
	model := &scriptedModel{responses: []string{validReport}}
	ex := NewReportExtractor(stubPages{pages: []string{"Fire  Pump\n Inspection", "\tPage 2 \n"}}, model, ExtractorConfig{MaxAttempts: 3, ModelTimeout: time.Second})

	report, err := ex.Extract(context.Background(), "/tmp/42.pdf")
	require.NoError(t, err)
	assert.Equal(t, "EANLUBF", report.Location)
	require.Len(t, report.DeficiencySummary, 1)
	assert.Nil(t, report.DeficiencySummary[0].Status)
	assert.Equal(t, "10", *report.DeficiencySummary[0].PageNo)
	assert.Equal(t, []string{"Fire Pump Inspection Page 2"}, model.inputs)
}

func TestExtractRetriesUntilValid(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("503 unavailable"), nil, nil},
		responses: []string{"", `{"title":"missing the rest"}`, validReport},
	}
	ex := NewReportExtractor(stubPages{pages: []string{"text"}}, model, ExtractorConfig{MaxAttempts: 3, ModelTimeout: time.Second})

	report, err := ex.Extract(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Fire Pump Inspection", report.Title)
	assert.Len(t, model.inputs, 3)
}

func TestExtractExhaustsAttempts(t *testing.T) {
	model := &scriptedModel{responses: []string{"not json", "not json"}}
	ex := NewReportExtractor(stubPages{pages: []string{"text"}}, model, ExtractorConfig{MaxAttempts: 2, ModelTimeout: time.Second})

	_, err := ex.Extract(context.Background(), "doc.pdf")
	require.Error(t, err)
	var eerr *common.ExtractionError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, 2, eerr.Attempts)
	assert.Contains(t, err.Error(), "no valid report after 2 attempt(s)")
	assert.Len(t, model.inputs, 2)
}

func TestExtractReadFailures(t *testing.T) {
	tests := []struct {
		name    string
		pages   stubPages
		wantErr error
	}{
		{"reader error", stubPages{err: errors.New("failed to validate PDF")}, nil},
		{"no text", stubPages{pages: []string{" ", "\n\n"}}, common.ErrNoText},
		{"no pages", stubPages{}, common.ErrNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{responses: []string{validReport}}
			ex := NewReportExtractor(tt.pages, model, ExtractorConfig{})

			_, err := ex.Extract(context.Background(), "doc.pdf")
			var eerr *common.ExtractionError
			require.True(t, errors.As(err, &eerr))
			assert.Zero(t, eerr.Attempts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, model.inputs)
		})
	}
}

func TestExtractStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{errs: []error{context.Canceled}}
	ex := NewReportExtractor(stubPages{pages: []string{"text"}}, model, ExtractorConfig{MaxAttempts: 3, ModelTimeout: time.Second, Backoff: time.Hour})

	_, err := ex.Extract(ctx, "doc.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, model.inputs, 1)
}
