package jobs

import "video-transcriber/internal/domain"

// isBusy checks if a phase has an upload, transcription, or summary outstanding.
func isBusy(phase domain.Phase) bool {
	switch phase {
	case domain.PhaseUploading, domain.PhaseTranscribing, domain.PhaseSummarizing:
		return true
	default:
		return false
	}
}

// CanTransition enforces the allowed session phase edges. Reset to idle is
// always allowed and is not listed per phase.
func CanTransition(from, to domain.Phase) bool {
	if to == domain.PhaseIdle {
		return true
	}

	switch from {
	case domain.PhaseIdle:
		return to == domain.PhaseSelected
	case domain.PhaseSelected:
		return to == domain.PhaseSelected || to == domain.PhaseUploading
	case domain.PhaseUploading:
		return to == domain.PhaseTranscribing || to == domain.PhaseError
	case domain.PhaseTranscribing:
		return to == domain.PhaseUploading || to == domain.PhaseDone || to == domain.PhaseError
	case domain.PhaseDone:
		return to == domain.PhaseSummarizing
	case domain.PhaseSummarizing:
		return to == domain.PhaseSummaryDone || to == domain.PhaseError
	case domain.PhaseSummaryDone, domain.PhaseError:
		return false
	default:
		return false
	}
}
