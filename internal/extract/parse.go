package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

// ErrMalformedResult is returned when the extracted block is not valid JSON.
var ErrMalformedResult = errors.New("malformed incident result")

// Section keys of an IncidentResult document.
const (
	SectionDetection = "detection"
	SectionReasoning = "reasoning"
	SectionAction    = "action"
	SectionTimeline  = "timeline"
)

// Sections lists the result sections in pipeline order.
var Sections = []string{SectionDetection, SectionReasoning, SectionAction, SectionTimeline}

// ParseResult decodes block into an IncidentResult.
//
// Only JSON syntax is enforced. Each section is decoded on its own so that a
// section with unexpected types is dropped instead of failing the whole
// result; missing sections are simply left nil.
func ParseResult(block string) (*models.IncidentResult, error) {
	doc, err := decodeSections(block)
	if err != nil {
		return nil, err
	}

	result := &models.IncidentResult{}
	decodeSection(doc[SectionDetection], &result.Detection)
	decodeSection(doc[SectionReasoning], &result.Reasoning)
	decodeSection(doc[SectionAction], &result.Action)
	decodeSection(doc[SectionTimeline], &result.Timeline)
	return result, nil
}

// Parse runs the full extraction chain over a raw orchestration response.
func Parse(resp models.RawOrchestrationResponse) (*models.IncidentResult, string, error) {
	block, err := ExtractJSONBlock(ExtractText(resp))
	if err != nil {
		return nil, "", err
	}
	result, err := ParseResult(block)
	if err != nil {
		return nil, block, err
	}
	return result, block, nil
}

func decodeSections(block string) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return doc, nil
}

func decodeSection[T any](raw json.RawMessage, dst *T) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	var value T
	if err := json.Unmarshal(exactKeys(raw, reflect.TypeOf((*T)(nil)).Elem()), &value); err != nil {
		return
	}
	*dst = value
}

// exactKeys drops object members whose name is not the exact json name of a
// field of t, so that "SEVERITY" never fills Severity.
func exactKeys(raw json.RawMessage, t reflect.Type) json.RawMessage {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return raw
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil || members == nil {
		return raw
	}

	kept := make(map[string]json.RawMessage, len(members))
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		if value, ok := members[name]; ok {
			kept[name] = exactKeys(value, field.Type)
		}
	}
	out, err := json.Marshal(kept)
	if err != nil {
		return raw
	}
	return out
}
