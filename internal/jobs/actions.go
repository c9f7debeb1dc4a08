package jobs

import "video-transcriber/internal/domain"

// Action is one external event fed into the session reducer.
type Action interface {
	actionName() string
}

// SelectFiles assembles a new batch from user-chosen files.
type SelectFiles struct {
	BatchID string
	Jobs    []domain.FileJob
}

// StartBatch asks the sequencer to dispatch the first job of the selected batch.
type StartBatch struct{}

// UploadSucceeded reports the server-side reference for an uploaded job.
type UploadSucceeded struct {
	BatchID    string
	Index      int
	ServerPath string
}

// UploadFailed reports a transport or server failure on the upload call.
type UploadFailed struct {
	BatchID string
	Index   int
	Message string
}

// ProgressReceived carries one channel progress_update event.
type ProgressReceived struct {
	Status  string
	Percent int
	ETA     string
}

// JobCompleted carries the transcript of the active job.
type JobCompleted struct {
	Transcript string
}

// JobFailed carries a channel-reported transcription failure.
type JobFailed struct {
	Message string
}

// SummaryRequested starts the optional summary stage for a finished single job.
type SummaryRequested struct {
	SlidesPath string
	OutputName string
}

// SummaryCompleted carries the summary text and, when a document was saved, its path.
type SummaryCompleted struct {
	Summary   string
	SavedPath string
}

// SummaryFailed carries a request- or channel-reported summary failure.
type SummaryFailed struct {
	Message string
}

// Tick is one second of the local ETA countdown.
type Tick struct{}

// WatchdogExpired reports that the channel stayed silent for the watchdog window.
type WatchdogExpired struct {
	Seconds int
}

// Reset returns the session to its idle default.
type Reset struct{}

func (SelectFiles) actionName() string      { return "select_files" }
func (StartBatch) actionName() string       { return "start_batch" }
func (UploadSucceeded) actionName() string  { return "upload_succeeded" }
func (UploadFailed) actionName() string     { return "upload_failed" }
func (ProgressReceived) actionName() string { return "progress_received" }
func (JobCompleted) actionName() string     { return "job_completed" }
func (JobFailed) actionName() string        { return "job_failed" }
func (SummaryRequested) actionName() string { return "summary_requested" }
func (SummaryCompleted) actionName() string { return "summary_completed" }
func (SummaryFailed) actionName() string    { return "summary_failed" }
func (Tick) actionName() string             { return "tick" }
func (WatchdogExpired) actionName() string  { return "watchdog_expired" }
func (Reset) actionName() string            { return "reset" }

// ActionName returns the stable log name of an action.
func ActionName(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionName()
}
