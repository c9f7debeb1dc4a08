package jobs

import (
	"fmt"
	"slices"
	"strings"

	"video-transcriber/internal/artifacts"
	"video-transcriber/internal/domain"
)

const idleMessage = "Select video file(s) to transcribe."

// IdleSession returns the default session: no jobs, index 0, idle, eta 0.
func IdleSession() domain.Session {
	return domain.Session{
		Phase:         domain.PhaseIdle,
		StatusMessage: idleMessage,
	}
}

// Reduce applies one action to the session. It never mutates its input and
// returns the session unchanged, with no effects, for actions that do not
// apply to the current phase.
func Reduce(s domain.Session, action Action) (domain.Session, []Effect) {
	switch a := action.(type) {
	case Reset:
		return reset(s)
	case SelectFiles:
		return selectFiles(s, a)
	case StartBatch:
		if s.Phase != domain.PhaseSelected || len(s.Jobs) == 0 {
			return s, nil
		}
		return startSequence(s)
	case UploadSucceeded:
		return uploadSucceeded(s, a)
	case UploadFailed:
		return uploadFailed(s, a)
	case ProgressReceived:
		return progressReceived(s, a)
	case JobCompleted:
		return jobCompleted(s, a)
	case JobFailed:
		return jobFailed(s, a)
	case SummaryRequested:
		return summaryRequested(s, a)
	case SummaryCompleted:
		return summaryCompleted(s, a)
	case SummaryFailed:
		if s.Phase != domain.PhaseSummarizing {
			return s, nil
		}
		msg := messageOr(a.Message, "Summary generation failed.")
		return abort(s, domain.ErrorKindSummary, msg, "Error: "+msg)
	case Tick:
		return tick(s)
	case WatchdogExpired:
		if s.Phase != domain.PhaseTranscribing {
			return s, nil
		}
		msg := fmt.Sprintf("no response from transcription service for %ds", a.Seconds)
		return abort(s, domain.ErrorKindTranscription, msg, "Error: "+msg)
	default:
		return s, nil
	}
}

func reset(s domain.Session) (domain.Session, []Effect) {
	var effects []Effect
	if s.Phase == domain.PhaseTranscribing {
		effects = append(effects, StopTicker{})
	}
	return IdleSession(), effects
}

func selectFiles(s domain.Session, a SelectFiles) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseIdle && s.Phase != domain.PhaseSelected {
		return s, nil
	}
	if len(a.Jobs) == 0 {
		return s, nil
	}

	jobs := slices.Clone(a.Jobs)
	for i := range jobs {
		jobs[i].ServerPath = ""
	}

	next := IdleSession()
	next.BatchID = a.BatchID
	next.Jobs = jobs
	next.Phase = domain.PhaseSelected
	next.Batch = len(jobs) > 1
	if next.Batch {
		next.StatusMessage = fmt.Sprintf("%d files selected. Ready to transcribe.", len(jobs))
	} else {
		next.StatusMessage = "1 file selected. Ready to transcribe."
	}
	return next, nil
}

// matchesActiveUpload rejects results from an abandoned batch or an earlier job.
func matchesActiveUpload(s domain.Session, batchID string, index int) bool {
	return s.Phase == domain.PhaseUploading &&
		s.BatchID == batchID &&
		s.CurrentIndex == index &&
		index < len(s.Jobs)
}

func uploadSucceeded(s domain.Session, a UploadSucceeded) (domain.Session, []Effect) {
	if !matchesActiveUpload(s, a.BatchID, a.Index) {
		return s, nil
	}
	serverPath := strings.TrimSpace(a.ServerPath)
	if serverPath == "" {
		return uploadFailed(s, UploadFailed{
			BatchID: a.BatchID,
			Index:   a.Index,
			Message: "upload response did not include a server path",
		})
	}

	s.Jobs = slices.Clone(s.Jobs)
	s.Jobs[s.CurrentIndex].ServerPath = serverPath
	s.Phase = domain.PhaseTranscribing
	s.ProgressPercent = max(s.ProgressPercent, uploadAckPercent)
	s.StatusMessage = jobPrefix(s) + "Upload complete. Starting transcription..."
	return s, []Effect{StartTranscription{ServerPath: serverPath}}
}

func uploadFailed(s domain.Session, a UploadFailed) (domain.Session, []Effect) {
	if !matchesActiveUpload(s, a.BatchID, a.Index) {
		return s, nil
	}
	msg := messageOr(a.Message, "File upload failed.")
	name := s.Jobs[s.CurrentIndex].DisplayName
	return abort(s, domain.ErrorKindUpload, msg, fmt.Sprintf("Error processing %s: %s", name, msg))
}

// progressReceived applies last-write-wins for the estimate and keeps the
// percentage non-decreasing, since channel events may arrive out of order.
func progressReceived(s domain.Session, a ProgressReceived) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseTranscribing {
		return s, nil
	}

	if status := strings.TrimSpace(a.Status); status != "" {
		s.StatusMessage = status
	}
	s.ProgressPercent = max(s.ProgressPercent, min(max(a.Percent, 0), 100))

	seconds, ok := ParseETA(a.ETA)
	if !ok {
		return s, nil
	}
	s.EtaSeedSeconds = seconds
	s.EtaDisplaySeconds = seconds
	if seconds > 0 {
		return s, []Effect{ArmTicker{Seconds: seconds}}
	}
	return s, []Effect{StopTicker{}}
}

func jobCompleted(s domain.Session, a JobCompleted) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseTranscribing {
		return s, nil
	}

	effects := []Effect{StopTicker{}}
	if s.Batch {
		job := s.Jobs[s.CurrentIndex]
		effects = append(effects, PersistArtifact{
			DisplayName: job.DisplayName,
			Content:     []byte(a.Transcript),
		})
	} else {
		s.Transcript = a.Transcript
	}

	next, more := advance(s)
	return next, append(effects, more...)
}

func jobFailed(s domain.Session, a JobFailed) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseUploading && s.Phase != domain.PhaseTranscribing {
		return s, nil
	}
	msg := messageOr(a.Message, "An unexpected error occurred during transcription.")
	return abort(s, domain.ErrorKindTranscription, msg, "Error: "+msg)
}

func summaryRequested(s domain.Session, a SummaryRequested) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseDone || s.Batch || strings.TrimSpace(s.Transcript) == "" {
		return s, nil
	}
	slides := strings.TrimSpace(a.SlidesPath)
	if slides == "" {
		return s, nil
	}

	outputName := strings.TrimSpace(a.OutputName)
	if outputName == "" && len(s.Jobs) > 0 {
		outputName = artifacts.SummaryName(s.Jobs[0].DisplayName)
	}

	s.Phase = domain.PhaseSummarizing
	s.StatusMessage = "Generating summary..."
	return s, []Effect{RequestSummary{
		Transcript: s.Transcript,
		SlidesPath: slides,
		OutputName: outputName,
	}}
}

func summaryCompleted(s domain.Session, a SummaryCompleted) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseSummarizing {
		return s, nil
	}
	s.Phase = domain.PhaseSummaryDone
	s.Summary = a.Summary
	s.SummaryFile = a.SavedPath
	s.StatusMessage = "Summary generated successfully!"
	if a.SavedPath != "" {
		s.StatusMessage += " Saved to " + a.SavedPath
	}
	return s, nil
}

// tick counts the display down by one second, floored at zero.
func tick(s domain.Session) (domain.Session, []Effect) {
	if s.Phase != domain.PhaseTranscribing || s.EtaDisplaySeconds <= 0 {
		return s, nil
	}
	s.EtaDisplaySeconds--
	if s.EtaDisplaySeconds == 0 {
		return s, []Effect{StopTicker{}}
	}
	return s, nil
}

func messageOr(msg, fallback string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return fallback
}
