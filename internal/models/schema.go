package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// InspectionReportSchema is the single definition of the report shape. It is sent to
// the model as the required response format and used to validate every response.
// Property names must match the json tags on InspectionReport and DeficiencyEntry.
func InspectionReportSchema() map[string]any {
	entry := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"status":      nullableString("Status of the deficiency, null if the report does not state one."),
			"severity":    nullableString("Severity level of the deficiency."),
			"description": nullableString("Complete description of the deficiency without referral phrases such as \"see attachment\"."),
			"page_no":     nullableString("Page number on which the deficiency description concludes."),
		},
		"required": []string{"status", "severity", "description", "page_no"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"title":     requiredString("The main title of the report."),
			"location":  requiredString("Location code, or the location name when no code is given."),
			"contact":   requiredString("Contact name or details."),
			"inspector": requiredString("Name of the inspector."),
			"deficiency_summary": map[string]any{
				"type":        "array",
				"description": "Deficiencies in document order.",
				"items":       entry,
			},
		},
		"required": []string{"title", "location", "contact", "inspector", "deficiency_summary"},
	}
}

func requiredString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func nullableString(description string) map[string]any {
	return map[string]any{"type": []string{"string", "null"}, "description": description}
}

var compiledReportSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(InspectionReportSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("inspection_report.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("inspection_report.json")
})

// ValidateReportJSON validates raw against InspectionReportSchema.
func ValidateReportJSON(raw []byte) error {
	schema, err := compiledReportSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

var (
	entryFields = []string{"status", "severity", "description", "page_no"}
	reportText  = []string{"title", "location", "contact", "inspector"}
)

// CollapseWhitespace replaces every run of Unicode whitespace (including NBSP and
// em spaces from PDF text layers) with one space and trims the result.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeReportJSON makes a model response conform to the nullable-field rules
// before validation: missing entry fields become null, "null" and empty strings
// become null, numeric page numbers become strings. It reports what it changed.
func NormalizeReportJSON(raw []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("normalize: decode: %w", err)
	}

	var changed []string
	for _, k := range reportText {
		if s, ok := m[k].(string); ok {
			m[k] = strings.TrimSpace(s)
		}
	}

	entries, _ := m["deficiency_summary"].([]any)
	for i, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		for _, k := range entryFields {
			v, present := entry[k]
			switch t := v.(type) {
			case nil:
				if !present {
					entry[k] = nil
					changed = append(changed, fmt.Sprintf("deficiency_summary[%d].%s(missing)", i, k))
				}
			case float64:
				entry[k] = strconv.FormatFloat(t, 'f', -1, 64)
				changed = append(changed, fmt.Sprintf("deficiency_summary[%d].%s(number)", i, k))
			case string:
				s := CollapseWhitespace(t)
				if s == "" || strings.EqualFold(s, "null") {
					entry[k] = nil
					changed = append(changed, fmt.Sprintf("deficiency_summary[%d].%s(null)", i, k))
					continue
				}
				entry[k] = s
			}
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("normalize: encode: %w", err)
	}
	return out, changed, nil
}

// ParseReport turns a model response into a validated InspectionReport.
func ParseReport(raw []byte) (*InspectionReport, []string, error) {
	content := strings.TrimSpace(string(raw))
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, fmt.Errorf("empty model response")
	}

	normalized, changed, err := NormalizeReportJSON([]byte(content))
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateReportJSON(normalized); err != nil {
		return nil, changed, err
	}

	var report InspectionReport
	if err := json.Unmarshal(normalized, &report); err != nil {
		return nil, changed, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, changed, nil
}
