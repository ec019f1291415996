package models

// PipelineStage identifies how far the staged reveal has progressed.
type PipelineStage int

const (
	StageNotStarted PipelineStage = -1
	StageDetection  PipelineStage = 0
	StageReasoning  PipelineStage = 1
	StageAction     PipelineStage = 2
	StageGovernance PipelineStage = 3
)

// PipelineStages lists the visible stages in reveal order.
var PipelineStages = []PipelineStage{StageDetection, StageReasoning, StageAction, StageGovernance}

func (s PipelineStage) String() string {
	switch s {
	case StageDetection:
		return "Detection"
	case StageReasoning:
		return "Reasoning"
	case StageAction:
		return "Action"
	case StageGovernance:
		return "Governance"
	case StageNotStarted:
		return "NotStarted"
	default:
		return "Unknown"
	}
}

// Reached reports whether stage s is lit when the pipeline is at active.
func (s PipelineStage) Reached(active PipelineStage) bool {
	return s >= StageDetection && s <= active
}
