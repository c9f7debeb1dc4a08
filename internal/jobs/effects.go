package jobs

import "video-transcriber/internal/domain"

// Effect is work the event loop performs after a reducer step.
type Effect interface {
	effectName() string
}

// DispatchUpload hands one job to the upload client.
type DispatchUpload struct {
	BatchID string
	Index   int
	Job     domain.FileJob
}

// StartTranscription sends the one-way start signal over the channel.
type StartTranscription struct {
	ServerPath string
}

// PersistArtifact saves a finished transcript under a name derived from DisplayName.
type PersistArtifact struct {
	DisplayName string
	Content     []byte
}

// Notify raises an interruptive notification.
type Notify struct {
	Title   string
	Message string
}

// ArmTicker (re)creates the one-second countdown ticker.
type ArmTicker struct {
	Seconds int
}

// StopTicker tears the countdown ticker down.
type StopTicker struct{}

// RequestSummary uploads slides and requests the summary document.
type RequestSummary struct {
	Transcript string
	SlidesPath string
	OutputName string
}

func (DispatchUpload) effectName() string     { return "dispatch_upload" }
func (StartTranscription) effectName() string { return "start_transcription" }
func (PersistArtifact) effectName() string    { return "persist_artifact" }
func (Notify) effectName() string             { return "notify" }
func (ArmTicker) effectName() string          { return "arm_ticker" }
func (StopTicker) effectName() string         { return "stop_ticker" }
func (RequestSummary) effectName() string     { return "request_summary" }

// EffectName returns the stable log name of an effect.
func EffectName(e Effect) string {
	if e == nil {
		return ""
	}
	return e.effectName()
}
