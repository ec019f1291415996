package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

const testRules = `rules:
  - id: escalated-high
    match:
      severity: high
      escalation: true
    controls: ["Page the incident commander", "Open a bridge call"]
  - id: security-exposure
    match:
      risk:
        dimension: security
        level: High
    controls: ["Notify the security officer"]
  - id: database
    match:
      system_contains: ["db"]
    controls: ["Open a bridge call"]
  - id: no-ticket
    match:
      ticket_missing: true
    controls: ["File a change record"]
`

func TestGovernanceEngineEvaluate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yaml")
	if err := os.WriteFile(path, []byte(testRules), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	engine, err := NewGovernanceEngine(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new governance engine: %v", err)
	}

	result := &models.IncidentResult{
		Detection: &models.Detection{Severity: "HIGH", System: "db1", Escalation: true},
		Reasoning: &models.Reasoning{Risks: models.Risks{Security: models.SeverityLow}},
		Action:    &models.Action{Ticket: "INC-1"},
	}
	findings := engine.Evaluate(result)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %+v", findings)
	}
	if findings[0].RuleID != "escalated-high" || findings[1].Control != "Open a bridge call" {
		t.Fatalf("unexpected findings: %+v", findings)
	}
}

func TestGovernanceEngineMissingSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yaml")
	if err := os.WriteFile(path, []byte(testRules), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	engine, err := NewGovernanceEngine(path, nil)
	if err != nil {
		t.Fatalf("new governance engine: %v", err)
	}

	findings := engine.Evaluate(&models.IncidentResult{Timeline: []string{"only a timeline"}})
	if len(findings) != 1 || findings[0].RuleID != "no-ticket" {
		t.Fatalf("expected only the no-ticket rule, got %+v", findings)
	}
}

func TestGovernanceEngineNoFile(t *testing.T) {
	engine, err := NewGovernanceEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if findings := engine.Evaluate(&models.IncidentResult{}); findings != nil {
		t.Fatalf("nil engine should produce no findings")
	}
}

func TestShippedGovernanceRules(t *testing.T) {
	engine, err := NewGovernanceEngine(filepath.Join("..", "..", "configs", "rules", "governance.yaml"), nil)
	if err != nil {
		t.Fatalf("load shipped rules: %v", err)
	}
	if engine == nil {
		t.Fatalf("expected shipped rule pack to be present")
	}

	findings := engine.Evaluate(&models.IncidentResult{
		Detection: &models.Detection{Severity: "High", System: "orders-db", Escalation: true},
		Reasoning: &models.Reasoning{Risks: models.Risks{Revenue: models.SeverityHigh, Security: models.SeverityLow}},
		Action:    &models.Action{Ticket: "INC-7"},
	})
	rules := make(map[string]bool)
	for _, finding := range findings {
		rules[finding.RuleID] = true
	}
	for _, want := range []string{"high-severity", "escalated", "revenue-impact", "data-tier"} {
		if !rules[want] {
			t.Fatalf("expected rule %s to fire, got %+v", want, findings)
		}
	}
	if rules["security-exposure"] || rules["untracked"] {
		t.Fatalf("unexpected rules fired: %+v", findings)
	}
}
