package importer

import "fmt"

// Phase is a stage of an import run.
type Phase string

const (
	PhaseNodes         Phase = "nodes"
	PhaseRelationships Phase = "relationships"
)

// ProgressStatus is the state of a phase.
type ProgressStatus int

const (
	ProgressWorking ProgressStatus = iota
	ProgressComplete
	ProgressFailed
)

// ProgressEvent reports a phase transition.
type ProgressEvent struct {
	Phase   Phase
	Status  ProgressStatus
	Done    int
	Total   int
	Message string
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressWorking:
		return fmt.Sprintf("  ● %s (%d)...", event.Phase, event.Total)
	case ProgressComplete:
		return fmt.Sprintf("  ✓ %s complete (%d/%d)", event.Phase, event.Done, event.Total)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Phase, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Phase)
	}
}
