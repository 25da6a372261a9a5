package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/ivlev/chatreel/internal/system"
)

// Report summarizes one run. Fields are filled as stages complete.
type Report struct {
	RunID        string `json:"run_id"`
	Dir          string `json:"dir"`
	TimelinePath string `json:"timeline_path,omitempty"`
	ConcatPath   string `json:"concat_path,omitempty"`
	Output       string `json:"output,omitempty"`

	Lines          int `json:"lines"`
	SkippedLines   int `json:"skipped_lines"`
	Entries        int `json:"entries"`
	SkippedFrames  int `json:"skipped_frames"`
	DegradedMemes  int `json:"degraded_memes"`
	Injected       int `json:"injected"`
	Frames         int `json:"frames"`
	SkippedEntries int `json:"skipped_entries"`

	Closing       bool          `json:"closing"`
	Total         float64       `json:"total"`
	AudioFallback bool          `json:"audio_fallback"`
	Elapsed       time.Duration `json:"elapsed"`
	Stats         *system.Stats `json:"stats,omitempty"`
}

// Print writes the human-readable summary shown by the CLI with --stats.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "\n[+++] Run %s\n", r.RunID)
	fmt.Fprintf(w, "      Lines:           %d (%d skipped)\n", r.Lines, r.SkippedLines)
	fmt.Fprintf(w, "      Timeline:        %d entries, %d frames skipped, %d memes degraded, %d injected\n",
		r.Entries, r.SkippedFrames, r.DegradedMemes, r.Injected)
	fmt.Fprintf(w, "      Manifest:        %d frames, %d skipped, closing card: %v\n", r.Frames, r.SkippedEntries, r.Closing)
	fmt.Fprintf(w, "      Total duration:  %.2fs\n", r.Total)
	if r.Output != "" {
		fmt.Fprintf(w, "      Output:          %s\n", r.Output)
	}
	if r.AudioFallback {
		fmt.Fprintf(w, "[!]   Audio mix failed, video has no sound\n")
	}
	fmt.Fprintf(w, "      Wall time:       %v\n", r.Elapsed.Round(time.Millisecond))
	if r.Stats != nil {
		fmt.Fprintf(w, "      Memory (RSS):    %s\n", system.FormatBytes(r.Stats.RSS))
		fmt.Fprintf(w, "      CPU:             %.1f%% of %d cores\n", r.Stats.CPUPercent, r.Stats.LogicalCPUs)
		fmt.Fprintf(w, "      Goroutines:      %d\n", r.Stats.Goroutines)
	}
}
