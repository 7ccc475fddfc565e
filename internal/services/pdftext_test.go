package services

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/deficiencyreportflow/internal/common"
	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

func TestPDFTextReaderReadsPagesInOrder(t *testing.T) {
	pages, err := PDFTextReader{}.ReadPages(filepath.Join("testdata", "two_page_inspection.pdf"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Fire Pump Inspection", models.CollapseWhitespace(pages[0]))
	assert.Equal(t, "Pump room overheated. Page 3", models.CollapseWhitespace(pages[1]))
}

func TestDocumentTextFromRealPDF(t *testing.T) {
	ex := NewReportExtractor(PDFTextReader{}, &scriptedModel{}, ExtractorConfig{})

	text, err := ex.DocumentText(filepath.Join("testdata", "two_page_inspection.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "Fire Pump Inspection Pump room overheated. Page 3", text)
}

func TestPDFTextReaderRejectsUnreadableFiles(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"corrupt", filepath.Join("testdata", "corrupt.pdf")},
		{"missing", filepath.Join(t.TempDir(), "missing.pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pages []string
			var err error
			require.NotPanics(t, func() {
				pages, err = PDFTextReader{}.ReadPages(tt.path)
			})
			require.Error(t, err)
			assert.Nil(t, pages)

			ex := NewReportExtractor(PDFTextReader{}, &scriptedModel{}, ExtractorConfig{})
			_, err = ex.DocumentText(tt.path)
			var eerr *common.ExtractionError
			require.True(t, errors.As(err, &eerr))
			assert.Zero(t, eerr.Attempts)
		})
	}
}
