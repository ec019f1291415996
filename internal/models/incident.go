package models

// Severity captures the risk levels a model verdict may assign.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// IncidentResult is the verdict recovered from the generated text. Every
// section is optional and must be handled independently.
type IncidentResult struct {
	Detection *Detection `json:"detection,omitempty"`
	Reasoning *Reasoning `json:"reasoning,omitempty"`
	Action    *Action    `json:"action,omitempty"`
	Timeline  []string   `json:"timeline,omitempty"`
}

// Detection summarises what the detection agent saw.
type Detection struct {
	Severity   string `json:"severity"`
	System     string `json:"system"`
	Pattern    string `json:"pattern"`
	Escalation bool   `json:"escalation"`
}

// Reasoning carries the root cause and the business risk assessment.
type Reasoning struct {
	RootCause string `json:"rootCause"`
	Risks     Risks  `json:"risks"`
}

// Risks grades impact across three dimensions.
type Risks struct {
	Revenue    Severity `json:"revenue"`
	Security   Severity `json:"security"`
	Operations Severity `json:"operations"`
}

// Action records the remediation the action agent took.
type Action struct {
	Ticket string `json:"ticket"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// Empty reports whether no section was recovered.
func (r *IncidentResult) Empty() bool {
	if r == nil {
		return true
	}
	return r.Detection == nil && r.Reasoning == nil && r.Action == nil && len(r.Timeline) == 0
}

// RawOrchestrationResponse is the undecoded envelope returned by the
// orchestration endpoint. Only results[0] is ever inspected.
type RawOrchestrationResponse map[string]any
