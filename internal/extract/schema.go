package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

const schemaBaseURL = "https://autopilot.schemas.local/incident/"

var sectionSchemas = map[string]string{
	SectionDetection: `{
  "type": "object",
  "required": ["severity", "system", "pattern", "escalation"],
  "properties": {
    "severity": {"type": "string", "minLength": 1},
    "system": {"type": "string"},
    "pattern": {"type": "string"},
    "escalation": {"type": "boolean"}
  }
}`,
	SectionReasoning: `{
  "type": "object",
  "required": ["rootCause", "risks"],
  "properties": {
    "rootCause": {"type": "string"},
    "risks": {
      "type": "object",
      "required": ["revenue", "security", "operations"],
      "properties": {
        "revenue": {"$ref": "#/$defs/severity"},
        "security": {"$ref": "#/$defs/severity"},
        "operations": {"$ref": "#/$defs/severity"}
      }
    }
  },
  "$defs": {
    "severity": {"enum": ["Low", "Medium", "High"]}
  }
}`,
	SectionAction: `{
  "type": "object",
  "required": ["ticket", "email", "status"],
  "properties": {
    "ticket": {"type": "string"},
    "email": {"type": "string"},
    "status": {"type": "string"}
  }
}`,
	SectionTimeline: `{
  "type": "array",
  "items": {"type": "string"}
}`,
}

// Assessor classifies parsed results against the expected section shapes.
type Assessor struct {
	schemas map[string]*jsonschema.Schema
}

// NewAssessor compiles the section schemas.
func NewAssessor() (*Assessor, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	schemas := make(map[string]*jsonschema.Schema, len(sectionSchemas))
	for _, section := range Sections {
		url := schemaBaseURL + section + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(sectionSchemas[section])); err != nil {
			return nil, fmt.Errorf("load %s schema: %w", section, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", section, err)
		}
		schemas[section] = compiled
	}
	return &Assessor{schemas: schemas}, nil
}

// Assess reports which sections of block are present, absent or invalid.
// It never fails: a block that does not decode is reported as empty.
func (a *Assessor) Assess(block string) models.Coverage {
	coverage := models.Coverage{
		Level:    models.CoverageEmpty,
		Sections: make(map[string]models.SectionStatus, len(Sections)),
	}
	for _, section := range Sections {
		coverage.Sections[section] = models.SectionAbsent
	}

	doc, err := decodeSections(block)
	if err != nil {
		return coverage
	}

	present := 0
	for _, section := range Sections {
		raw := doc[section]
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			coverage.Sections[section] = models.SectionInvalid
			continue
		}
		if err := a.schemas[section].Validate(value); err != nil {
			coverage.Sections[section] = models.SectionInvalid
			continue
		}
		coverage.Sections[section] = models.SectionPresent
		present++
	}

	switch present {
	case 0:
		coverage.Level = models.CoverageEmpty
	case len(Sections):
		coverage.Level = models.CoverageComplete
	default:
		coverage.Level = models.CoveragePartial
	}
	return coverage
}
