// Package dashboard renders session state as a terminal pipeline view.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/miradorstack/incident-autopilot/internal/models"
)

const (
	cardWidth = 44

	// NothingAvailable fills a card whose section the model did not return.
	NothingAvailable = "nothing available"
	loadingText      = "analyzing..."

	connectorLit  = "━━━"
	connectorIdle = "───"
)

// Renderer turns session snapshots into terminal output.
type Renderer struct {
	theme *Theme
}

// NewRenderer creates a renderer using theme, or the default theme when nil.
func NewRenderer(theme *Theme) *Renderer {
	if theme == nil {
		theme = DefaultTheme()
	}
	return &Renderer{theme: theme}
}

// Render draws the pipeline bar and the four stage cards.
func (r *Renderer) Render(state models.SessionState) string {
	var b strings.Builder
	b.WriteString(r.PipelineBar(state.ActiveStage))
	b.WriteString("\n\n")

	top := lipgloss.JoinHorizontal(lipgloss.Top, r.detectionCard(state), r.reasoningCard(state))
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, r.actionCard(state), r.timelineCard(state))
	b.WriteString(lipgloss.JoinVertical(lipgloss.Left, top, bottom))

	if state.LastError != models.ErrorKindNone {
		b.WriteString("\n")
		b.WriteString(r.Failure(state.LastError))
	}
	return b.String()
}

// PipelineBar draws the stage chips. Stage i is lit once i <= active and
// the connector after stage i once i < active.
func (r *Renderer) PipelineBar(active models.PipelineStage) string {
	parts := make([]string, 0, len(models.PipelineStages)*2)
	for i, stage := range models.PipelineStages {
		if stage.Reached(active) {
			parts = append(parts, r.theme.ActiveStage.Render(stage.String()))
		} else {
			parts = append(parts, r.theme.IdleStage.Render(stage.String()))
		}
		if i == len(models.PipelineStages)-1 {
			continue
		}
		if stage < active {
			parts = append(parts, lipgloss.NewStyle().Foreground(r.theme.Primary).Render(connectorLit))
		} else {
			parts = append(parts, r.theme.MutedStyle.Render(connectorIdle))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

// Failure draws the notice shown after a failed run.
func (r *Renderer) Failure(kind models.ErrorKind) string {
	return r.theme.FailureBox.Render(fmt.Sprintf("Orchestration failed or returned invalid JSON. (%s)", kind))
}

func (r *Renderer) card(title string, lines []string) string {
	body := strings.Join(lines, "\n")
	return r.theme.CardStyle.Width(cardWidth).Render(r.theme.TitleStyle.Render(title) + "\n\n" + body)
}

func (r *Renderer) field(label, value string) string {
	return r.theme.LabelStyle.Render(label+":") + " " + value
}

func (r *Renderer) placeholder(state models.SessionState, present bool) ([]string, bool) {
	switch {
	case state.Loading:
		return []string{r.theme.MutedStyle.Render(loadingText)}, true
	case state.Result == nil:
		return []string{""}, true
	case !present:
		return []string{r.theme.MutedStyle.Render(NothingAvailable)}, true
	}
	return nil, false
}

func (r *Renderer) detectionCard(state models.SessionState) string {
	const title = "Detection Agent"
	if lines, ok := r.placeholder(state, state.Result != nil && state.Result.Detection != nil); ok {
		return r.card(title, lines)
	}
	d := state.Result.Detection
	badge := lipgloss.NewStyle().Bold(true).Foreground(r.theme.Danger).Render(d.Severity)
	return r.card(title, []string{
		badge,
		r.field("System", d.System),
		r.field("Pattern", d.Pattern),
		r.field("Escalation", fmt.Sprintf("%t", d.Escalation)),
	})
}

func (r *Renderer) reasoningCard(state models.SessionState) string {
	const title = "Reasoning Agent"
	if lines, ok := r.placeholder(state, state.Result != nil && state.Result.Reasoning != nil); ok {
		return r.card(title, lines)
	}
	reasoning := state.Result.Reasoning
	risks := lipgloss.JoinHorizontal(lipgloss.Top,
		r.risk("Revenue", reasoning.Risks.Revenue),
		r.risk("Security", reasoning.Risks.Security),
		r.risk("Ops", reasoning.Risks.Operations),
	)
	return r.card(title, []string{r.field("Root Cause", reasoning.RootCause), "", risks})
}

func (r *Renderer) risk(label string, level models.Severity) string {
	value := lipgloss.NewStyle().Bold(true).Foreground(r.theme.RiskColor(string(level))).Render(string(level))
	return lipgloss.NewStyle().Width(13).Align(lipgloss.Center).Render(r.theme.MutedStyle.Render(label) + "\n" + value)
}

func (r *Renderer) actionCard(state models.SessionState) string {
	const title = "Action Agent"
	if lines, ok := r.placeholder(state, state.Result != nil && state.Result.Action != nil); ok {
		return r.card(title, lines)
	}
	a := state.Result.Action
	status := lipgloss.NewStyle().Bold(true).Foreground(r.theme.Primary).Render("Status: " + a.Status)
	return r.card(title, []string{
		r.field("Ticket", a.Ticket),
		r.field("Email", a.Email),
		status,
	})
}

func (r *Renderer) timelineCard(state models.SessionState) string {
	const title = "AI Audit Timeline"
	present := state.Result != nil && (state.Result.Timeline != nil || len(state.Governance) > 0)
	if lines, ok := r.placeholder(state, present); ok {
		return r.card(title, lines)
	}

	lines := make([]string, 0, len(state.Result.Timeline)+len(state.Governance)+2)
	for i, step := range state.Result.Timeline {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
	}
	if len(state.Governance) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, r.theme.LabelStyle.Render("Governance controls"))
		for _, finding := range state.Governance {
			lines = append(lines, fmt.Sprintf("• %s %s", finding.Control, r.theme.MutedStyle.Render("("+finding.RuleID+")")))
		}
	}
	return r.card(title, lines)
}
