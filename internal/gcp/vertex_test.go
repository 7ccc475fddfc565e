package gcp

import (
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/deficiencyreportflow/internal/models"
)

func TestResponseSchemaFromReportSchema(t *testing.T) {
	s := ResponseSchema(models.InspectionReportSchema())
	require.NotNil(t, s)

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"title", "location", "contact", "inspector", "deficiency_summary"}, s.Required)
	assert.Equal(t, genai.TypeString, s.Properties["title"].Type)
	assert.False(t, s.Properties["title"].Nullable)

	summary := s.Properties["deficiency_summary"]
	require.NotNil(t, summary)
	assert.Equal(t, genai.TypeArray, summary.Type)
	require.NotNil(t, summary.Items)

	for _, field := range []string{"status", "severity", "description", "page_no"} {
		p := summary.Items.Properties[field]
		require.NotNil(t, p, field)
		assert.Equal(t, genai.TypeString, p.Type, field)
		assert.True(t, p.Nullable, field)
		assert.NotEmpty(t, p.Description, field)
	}
}

func TestResponseTextConcatenatesParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" {\"a\":"), genai.Text("1} ")}},
		}},
	}
	assert.Equal(t, `{"a":1}`, responseText(resp))
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
}
