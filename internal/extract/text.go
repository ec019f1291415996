// Package extract recovers a typed incident verdict from free-form model output.
package extract

import "github.com/miradorstack/incident-autopilot/internal/models"

// textFields are consulted in order on the first result entry.
var textFields = []string{"generated_text", "output_text"}

// ExtractText returns the generated text carried by the first result of resp.
// A missing or non-string field yields "", which is handed downstream as-is.
func ExtractText(resp models.RawOrchestrationResponse) string {
	results, ok := resp["results"].([]any)
	if !ok || len(results) == 0 {
		return ""
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return ""
	}
	for _, field := range textFields {
		if text, ok := first[field].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
