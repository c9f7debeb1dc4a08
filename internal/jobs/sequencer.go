package jobs

import (
	"fmt"

	"video-transcriber/internal/domain"
)

const (
	uploadSeedPercent = 5
	uploadAckPercent  = 10
)

// startSequence seeds index 0 and dispatches the first job.
func startSequence(s domain.Session) (domain.Session, []Effect) {
	s.CurrentIndex = 0
	s.Error = nil
	s.Transcript = ""
	s.Summary = ""
	s.SummaryFile = ""
	return beginJob(s)
}

// beginJob moves the job at CurrentIndex into uploading. This is the only
// place a DispatchUpload is produced, so the phase doubles as the in-flight guard.
func beginJob(s domain.Session) (domain.Session, []Effect) {
	job := s.Jobs[s.CurrentIndex]
	s.Phase = domain.PhaseUploading
	s.ProgressPercent = uploadSeedPercent
	s.EtaSeedSeconds = 0
	s.EtaDisplaySeconds = 0
	s.StatusMessage = jobPrefix(s) + "Uploading file..."

	return s, []Effect{DispatchUpload{
		BatchID: s.BatchID,
		Index:   s.CurrentIndex,
		Job:     job,
	}}
}

// advance moves past a job whose artifact was emitted and dispatches the next one.
func advance(s domain.Session) (domain.Session, []Effect) {
	s.CurrentIndex++
	if s.CurrentIndex < len(s.Jobs) {
		return beginJob(s)
	}

	s.Phase = domain.PhaseDone
	s.ProgressPercent = 100
	s.EtaSeedSeconds = 0
	s.EtaDisplaySeconds = 0
	if s.Batch {
		s.StatusMessage = fmt.Sprintf("All %d files processed successfully!", len(s.Jobs))
	} else {
		s.StatusMessage = "Transcription successful!"
	}
	return s, nil
}

// abort halts the batch in the error phase without advancing the index.
func abort(s domain.Session, kind domain.ErrorKind, message, status string) (domain.Session, []Effect) {
	var effects []Effect
	if s.Phase == domain.PhaseTranscribing {
		effects = append(effects, StopTicker{})
	}

	fileName := ""
	if job, ok := s.CurrentJob(); ok {
		fileName = job.DisplayName
	}

	s.Phase = domain.PhaseError
	s.ProgressPercent = 0
	s.EtaSeedSeconds = 0
	s.EtaDisplaySeconds = 0
	s.StatusMessage = status
	s.Error = &domain.SessionError{
		Kind:    kind,
		Message: message,
		File:    fileName,
	}

	if s.Batch && kind != domain.ErrorKindSummary {
		name := fileName
		if name == "" {
			name = "a file"
		}
		effects = append(effects, Notify{
			Title:   "Batch stopped",
			Message: fmt.Sprintf("An error occurred processing %s: %s", name, message),
		})
	}
	return s, effects
}

// jobPrefix labels status text with the batch position in batch mode.
func jobPrefix(s domain.Session) string {
	if !s.Batch {
		return ""
	}
	job, ok := s.CurrentJob()
	if !ok {
		return ""
	}
	return fmt.Sprintf("(File %d of %d: %s) ", s.CurrentIndex+1, len(s.Jobs), job.DisplayName)
}
