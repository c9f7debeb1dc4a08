package jobs

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"video-transcriber/internal/domain"
)

// almostFinished is shown once the countdown runs out before the job does.
const almostFinished = "Almost finished..."

// maxETASeconds bounds accepted estimates; anything larger is rejected.
const maxETASeconds = math.MaxInt32

// ParseETA extracts whole seconds from estimates such as "42s remaining".
// It reports false for missing, non-numeric, negative, or out-of-range estimates.
func ParseETA(raw string) (int, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimSpace(strings.TrimSuffix(value, "remaining"))
	for _, unit := range []string{"seconds", "second", "secs", "sec", "s"} {
		if strings.HasSuffix(value, unit) {
			value = strings.TrimSpace(strings.TrimSuffix(value, unit))
			break
		}
	}
	if value == "" {
		return 0, false
	}

	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 || n > maxETASeconds {
			return 0, false
		}
		return n, true
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f > maxETASeconds {
		return 0, false
	}
	return int(f), true
}

// FormatETA renders seconds as "42s" or "1m 05s"; non-positive values render empty.
func FormatETA(totalSeconds int) string {
	if totalSeconds <= 0 {
		return ""
	}
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	return fmt.Sprintf("%dm %02ds", totalSeconds/60, totalSeconds%60)
}

// EtaLine returns the countdown text for the progress view.
func EtaLine(s domain.Session) string {
	if s.Phase != domain.PhaseTranscribing {
		return ""
	}
	if s.EtaDisplaySeconds > 0 {
		line := "~" + FormatETA(s.EtaDisplaySeconds) + " remaining"
		if job, ok := s.CurrentJob(); ok {
			line += " for current file (" + job.DisplayName + ")"
		}
		return line
	}
	if s.EtaSeedSeconds > 0 {
		return almostFinished
	}
	return ""
}
