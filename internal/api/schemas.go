package api

import (
	"github.com/ivlev/chatreel/internal/history"
	"github.com/ivlev/chatreel/internal/timeline"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	UptimeS int64  `json:"uptime_s"`
}

// StartRunRequest carries either inline script lines or a script path on the server.
type StartRunRequest struct {
	Lines      []string `json:"lines,omitempty"`
	Script     string   `json:"script,omitempty"`
	Output     string   `json:"output,omitempty"`
	SkipEncode bool     `json:"skip_encode,omitempty"`
}

type StartRunResponse struct {
	RunID string `json:"run_id"`
}

type RunsResponse struct {
	Runs []*history.Run `json:"runs"`
}

type EntryResponse struct {
	Index     int     `json:"index"`
	Line      int     `json:"line"`
	Kind      string  `json:"kind"`
	Frame     string  `json:"frame"`
	Duration  float64 `json:"duration"`
	Speaker   string  `json:"speaker"`
	Primary   bool    `json:"is_primary_user"`
	Text      string  `json:"text,omitempty"`
	Media     string  `json:"media,omitempty"`
	Sound     bool    `json:"sound,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

type TimelineResponse struct {
	RunID   string          `json:"run_id"`
	Total   float64         `json:"total"`
	Entries []EntryResponse `json:"entries"`
}

func EntryToResponse(e *timeline.Entry) EntryResponse {
	resp := EntryResponse{
		Index:     e.Index,
		Line:      e.Line,
		Kind:      string(e.Kind()),
		Frame:     e.Frame,
		Duration:  e.Duration,
		Speaker:   e.Speaker,
		Primary:   e.Primary,
		Text:      e.Text(),
		Sound:     e.Sound(),
		SessionID: e.SessionID(),
	}
	if a := e.Media(); a != nil {
		resp.Media = a.Path
	}
	return resp
}

func TimelineToResponse(doc *timeline.Document) TimelineResponse {
	resp := TimelineResponse{RunID: doc.RunID, Total: doc.Total(), Entries: make([]EntryResponse, len(doc.Entries))}
	for i, e := range doc.Entries {
		resp.Entries[i] = EntryToResponse(e)
	}
	return resp
}
