package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"
)

// VertexClient holds the generative model configured for report extraction.
type VertexClient struct {
	ReportModel *genai.GenerativeModel
	baseClient  *genai.Client
	modelName   string
}

// NewVertexClient creates a client whose model answers with JSON conforming to schema,
// at temperature zero, following systemInstruction.
func NewVertexClient(ctx context.Context, projectID, region, modelName, systemInstruction string, schema map[string]any) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	reportModel := baseClient.GenerativeModel(modelName)
	reportModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	reportModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   ResponseSchema(schema),
		// Output feeds a compliance record; identical text must give identical reports.
		Temperature: genai.Ptr[float32](0.0),
	}
	reportModel.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{
		ReportModel: reportModel,
		baseClient:  baseClient,
		modelName:   modelName,
	}, nil
}

// GenerateReport sends the normalized document text and returns the raw JSON answer.
func (c *VertexClient) GenerateReport(ctx context.Context, text string) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()
	slog.Info("llm.extract.start", "req_id", rid, "backend", "vertex", "model", c.modelName, "text_len", len(text))

	resp, err := c.ReportModel.GenerateContent(ctx, genai.Text(text))
	if err != nil {
		slog.Error("llm.extract.call_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("failed to generate report from gemini: %w", err)
	}

	content := responseText(resp)
	if content == "" {
		slog.Error("llm.extract.empty_response", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("gemini returned an empty response")
	}
	slog.Info("llm.extract.ok", "req_id", rid, "bytes", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return []byte(content), nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

// ResponseSchema converts the JSON-Schema subset used by models.InspectionReportSchema
// into the Vertex response schema. A "null" member of a type list marks the field nullable.
func ResponseSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	switch t := m["type"].(type) {
	case string:
		s.Type = schemaType(t)
	case []string:
		for _, name := range t {
			if name == "null" {
				s.Nullable = true
				continue
			}
			s.Type = schemaType(name)
		}
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = ResponseSchema(pm)
			}
		}
	}
	if req, ok := m["required"].([]string); ok {
		s.Required = append([]string(nil), req...)
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = ResponseSchema(items)
	}
	return s
}

func schemaType(name string) genai.Type {
	switch name {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
