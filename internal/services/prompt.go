package services

import "strings"

const promptTemplate = `
You are an Enterprise Incident AI.

Return ONLY valid JSON.
Do NOT include markdown or explanations.

SCHEMA:
{
  "detection": {
    "severity": "HIGH|MEDIUM|LOW",
    "system": "string",
    "pattern": "string",
    "escalation": true
  },
  "reasoning": {
    "rootCause": "string",
    "risks": {
      "revenue": "High|Medium|Low",
      "security": "High|Medium|Low",
      "operations": "High|Medium|Low"
    }
  },
  "action": {
    "ticket": "string",
    "email": "string",
    "status": "string"
  },
  "timeline": ["string", "string", "string", "string"]
}

ALERT:
{{alert}}
`

// BuildPrompt embeds alert into the incident instruction prompt.
func BuildPrompt(alert string) string {
	return strings.Replace(promptTemplate, "{{alert}}", alert, 1)
}
