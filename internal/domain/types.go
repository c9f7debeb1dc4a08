package domain

// Phase tracks where the session is in the upload, transcription, and summary flow.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseSelected     Phase = "selected"
	PhaseUploading    Phase = "uploading"
	PhaseTranscribing Phase = "transcribing"
	PhaseDone         Phase = "done"
	PhaseSummarizing  Phase = "summarizing"
	PhaseSummaryDone  Phase = "summary_done"
	PhaseError        Phase = "error"
)

// Terminal reports whether no operation is outstanding in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseSummaryDone, PhaseError:
		return true
	default:
		return false
	}
}

// ErrorKind classifies the failure that moved a session into the error phase.
type ErrorKind string

const (
	ErrorKindUpload        ErrorKind = "upload"
	ErrorKindTranscription ErrorKind = "transcription"
	ErrorKindSummary       ErrorKind = "summary"
)

// SessionError is the structured failure kept while the session is in error.
type SessionError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	File    string    `json:"file,omitempty"`
}

// FileJob is one file's upload-through-transcription unit of work.
type FileJob struct {
	DisplayName string `json:"displayName"`
	SourcePath  string `json:"sourcePath"`
	ServerPath  string `json:"serverPath,omitempty"`
}

// Session is the single state record merged from uploads, channel events, and ticks.
type Session struct {
	BatchID           string        `json:"batchId,omitempty"`
	Jobs              []FileJob     `json:"jobs"`
	CurrentIndex      int           `json:"currentIndex"`
	Phase             Phase         `json:"phase"`
	Batch             bool          `json:"batch"`
	ProgressPercent   int           `json:"progressPercent"`
	EtaSeedSeconds    int           `json:"etaSeedSeconds"`
	EtaDisplaySeconds int           `json:"etaDisplaySeconds"`
	StatusMessage     string        `json:"statusMessage"`
	Error             *SessionError `json:"error,omitempty"`
	Transcript        string        `json:"transcript,omitempty"`
	Summary           string        `json:"summary,omitempty"`
	SummaryFile       string        `json:"summaryFile,omitempty"`
}

// CurrentJob returns the active job, or false once the index is past the end.
func (s Session) CurrentJob() (FileJob, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Jobs) {
		return FileJob{}, false
	}
	return s.Jobs[s.CurrentIndex], true
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ServerURL             string        `json:"serverUrl" yaml:"server_url"`
	ChannelURL            string        `json:"channelUrl" yaml:"channel_url"`
	OutputDir             string        `json:"outputDir" yaml:"output_dir"`
	TranscriptSuffix      string        `json:"transcriptSuffix" yaml:"transcript_suffix"`
	UploadTimeoutSeconds  int           `json:"uploadTimeoutSeconds" yaml:"upload_timeout_seconds"`
	SummaryTimeoutSeconds int           `json:"summaryTimeoutSeconds" yaml:"summary_timeout_seconds"`
	WatchdogSeconds       int           `json:"watchdogSeconds" yaml:"watchdog_seconds"`
	WatchSettleMillis     int           `json:"watchSettleMillis" yaml:"watch_settle_millis"`
	LogLevel              string        `json:"logLevel" yaml:"log_level"`
	Notifications         Notifications `json:"notifications" yaml:"notifications"`
}

// Notifications configures the interruptive alerts raised for batch failures.
type Notifications struct {
	Dialog                bool   `json:"dialog" yaml:"dialog"`
	NtfyTopic             string `json:"ntfyTopic" yaml:"ntfy_topic"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds" yaml:"request_timeout_seconds"`
}
