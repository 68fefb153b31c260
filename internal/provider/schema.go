package provider

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"google.golang.org/genai"
)

const insightSchemaURL = "schema://insight.json"

// insightSchemaJSON checks structure only. Value ranges are enforced by
// Normalize so a single bad field does not discard the whole answer.
const insightSchemaJSON = `{
  "type": "object",
  "required": ["learningStyle", "confidence"],
  "properties": {
    "learningStyle": {"type": "string"},
    "confidence":    {"type": "number"},
    "explanation":   {"type": "string"},
    "nextSteps":     {"type": "array", "items": {"type": "string"}},
    "model":         {"type": "string"},
    "createdAt":     {"type": "string"}
  }
}`

var (
	insightSchema     *jsonschema.Schema
	insightSchemaErr  error
	insightSchemaOnce sync.Once
)

func compiledInsightSchema() (*jsonschema.Schema, error) {
	insightSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(insightSchemaJSON))
		if err != nil {
			insightSchemaErr = fmt.Errorf("parse insight schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(insightSchemaURL, doc); err != nil {
			insightSchemaErr = fmt.Errorf("add insight schema: %w", err)
			return
		}
		insightSchema, insightSchemaErr = c.Compile(insightSchemaURL)
	})
	return insightSchema, insightSchemaErr
}

// validateInsight checks raw model output against the insight schema.
func validateInsight(obj []byte) error {
	schema, err := compiledInsightSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(obj))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// responseSchema is the structured-output hint sent to the model.
func responseSchema() *genai.Schema {
	styles := []string{"Visual", "Auditory", "Read/Write", "Kinesthetic", "Multimodal"}
	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"learningStyle", "confidence", "explanation", "nextSteps"},
		Properties: map[string]*genai.Schema{
			"learningStyle": {Type: genai.TypeString, Enum: styles},
			"confidence":    {Type: genai.TypeNumber, Description: "0 to 1"},
			"explanation":   {Type: genai.TypeString, Description: "short parent-friendly explanation"},
			"nextSteps": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
	}
}
