package models

// ErrorKind classifies why a run ended without a result.
type ErrorKind string

const (
	ErrorKindNone       ErrorKind = ""
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindNoJSON     ErrorKind = "no_json"
	ErrorKindMalformed  ErrorKind = "malformed"
)

// SessionState is the observable state of an orchestration session.
type SessionState struct {
	RunID       string              `json:"runId,omitempty"`
	Alert       string              `json:"alert"`
	Loading     bool                `json:"loading"`
	Result      *IncidentResult     `json:"result,omitempty"`
	ActiveStage PipelineStage       `json:"activeStage"`
	LastError   ErrorKind           `json:"lastError,omitempty"`
	Coverage    *Coverage           `json:"coverage,omitempty"`
	Governance  []GovernanceFinding `json:"governance,omitempty"`
}

// SectionStatus reports how one result section fared against its schema.
type SectionStatus string

const (
	SectionPresent SectionStatus = "present"
	SectionAbsent  SectionStatus = "absent"
	SectionInvalid SectionStatus = "invalid"
)

// CoverageLevel summarises how much of the expected verdict came back.
type CoverageLevel string

const (
	CoverageEmpty    CoverageLevel = "empty"
	CoveragePartial  CoverageLevel = "partial"
	CoverageComplete CoverageLevel = "complete"
)

// Coverage is the outcome of the lenient post-parse schema check.
type Coverage struct {
	Level    CoverageLevel            `json:"level"`
	Sections map[string]SectionStatus `json:"sections"`
}

// GovernanceFinding is a rule-pack outcome shown in the Governance stage.
type GovernanceFinding struct {
	RuleID  string `json:"ruleId"`
	Control string `json:"control"`
}
