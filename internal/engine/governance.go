package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

// GovernanceEngine maps a parsed verdict onto the controls a governance
// reviewer must see before the incident can be closed.
type GovernanceEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single governance rule.
type Rule struct {
	ID       string    `yaml:"id"`
	Match    RuleMatch `yaml:"match"`
	Controls []string  `yaml:"controls"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match
// anything; a rule whose section is missing from the verdict never matches.
type RuleMatch struct {
	Severity       string    `yaml:"severity"`
	Escalation     *bool     `yaml:"escalation"`
	SystemContains []string  `yaml:"system_contains"`
	Risk           *RiskRule `yaml:"risk"`
	TicketMissing  bool      `yaml:"ticket_missing"`
}

// RiskRule matches one risk dimension at a given level.
type RiskRule struct {
	Dimension string `yaml:"dimension"`
	Level     string `yaml:"level"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewGovernanceEngine loads rules from the provided path. If path is empty or
// missing, returns nil engine.
func NewGovernanceEngine(path string, logger *slog.Logger) (*GovernanceEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("governance rules loaded", slog.String("path", path), slog.Int("rules", len(cfg.Rules)))
	return &GovernanceEngine{rules: cfg.Rules, logger: logger}, nil
}

// Evaluate returns one finding per control of every matching rule.
func (e *GovernanceEngine) Evaluate(result *models.IncidentResult) []models.GovernanceFinding {
	if e == nil || result == nil {
		return nil
	}

	findings := make([]models.GovernanceFinding, 0)
	seen := make(map[string]struct{})
	for _, rule := range e.rules {
		if !ruleMatches(rule.Match, result) {
			continue
		}
		for _, control := range rule.Controls {
			if control == "" {
				continue
			}
			if _, ok := seen[control]; ok {
				continue
			}
			seen[control] = struct{}{}
			findings = append(findings, models.GovernanceFinding{RuleID: rule.ID, Control: control})
		}
	}
	return findings
}

func ruleMatches(match RuleMatch, result *models.IncidentResult) bool {
	if match.Severity != "" || match.Escalation != nil || len(match.SystemContains) > 0 {
		if result.Detection == nil {
			return false
		}
		if match.Severity != "" && !strings.EqualFold(match.Severity, result.Detection.Severity) {
			return false
		}
		if match.Escalation != nil && *match.Escalation != result.Detection.Escalation {
			return false
		}
		if len(match.SystemContains) > 0 && !containsAny(result.Detection.System, match.SystemContains) {
			return false
		}
	}
	if match.Risk != nil {
		if result.Reasoning == nil {
			return false
		}
		if !strings.EqualFold(match.Risk.Level, string(riskLevel(result.Reasoning.Risks, match.Risk.Dimension))) {
			return false
		}
	}
	if match.TicketMissing && result.Action != nil && strings.TrimSpace(result.Action.Ticket) != "" {
		return false
	}
	return true
}

func riskLevel(risks models.Risks, dimension string) models.Severity {
	switch strings.ToLower(dimension) {
	case "revenue":
		return risks.Revenue
	case "security":
		return risks.Security
	case "operations", "ops":
		return risks.Operations
	default:
		return ""
	}
}

func containsAny(value string, keywords []string) bool {
	value = strings.ToLower(value)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(value, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
