package domain

// TurnKind distinguishes the two request shapes within a session.
// Turns themselves are ephemeral; they exist for display and logging only.
type TurnKind string

const (
	// TurnOptimize is the initial requirement optimization.
	TurnOptimize TurnKind = "optimize"
	// TurnRefine is a feedback-driven adjustment of a prior result.
	TurnRefine TurnKind = "refine"
)
