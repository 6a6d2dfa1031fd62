package api

import "github.com/callrunner/callrunner/internal/history"

// ManifestResponse is the dry-run view of the manifest that would run next.
type ManifestResponse struct {
	Bucket     string              `json:"bucket"`
	Key        string              `json:"key"`
	Policy     string              `json:"selection"`
	Total      int                 `json:"total_procedures"`
	Directives []DirectiveResponse `json:"directives"`
	Nearby     []string            `json:"nearby_files"`
}

// DirectiveResponse is one normalized manifest line.
type DirectiveResponse struct {
	Number        int    `json:"procedure_number"`
	Raw           string `json:"line"`
	ProcedureName string `json:"procedure_name,omitempty"`
	Statement     string `json:"statement,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RunsResponse lists recorded runs, newest first.
type RunsResponse struct {
	Runs []history.Summary `json:"runs"`
}
