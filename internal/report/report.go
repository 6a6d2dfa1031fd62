// Package report renders finished runs for people and files.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/callrunner/callrunner/internal/runner"
	"github.com/callrunner/callrunner/internal/warehouse"
)

// RunReport is a finished run plus the response it produced.
type RunReport struct {
	Version     string         `json:"version"`
	GeneratedAt time.Time      `json:"generated_at"`
	Run         *runner.Result `json:"run"`
	StatusCode  int            `json:"status_code"`
	Duration    string         `json:"duration"`
	Problems    []Problem      `json:"problems,omitempty"`
}

// Problem is one directive that did not finish.
type Problem struct {
	ProcedureNumber int              `json:"procedure_number"`
	ProcedureName   string           `json:"procedure_name"`
	Status          warehouse.Status `json:"status"`
	Error           string           `json:"error,omitempty"`
}

// Generate builds a report for r.
func Generate(r *runner.Result) *RunReport {
	rep := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now(),
		Run:         r,
		StatusCode:  r.StatusCode(),
		Duration:    r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String(),
	}
	for _, er := range r.Results {
		if er.Status != warehouse.StatusFinished {
			rep.Problems = append(rep.Problems, Problem{
				ProcedureNumber: er.ProcedureNumber,
				ProcedureName:   er.ProcedureName,
				Status:          er.Status,
				Error:           er.Error,
			})
		}
	}
	return rep
}

// Write stores the report at path, as JSON when the extension is .json and
// as text otherwise.
func Write(rep *RunReport, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return WriteJSON(rep, path)
	}
	return WriteText(rep, path)
}

// WriteJSON writes the report as JSON.
func WriteJSON(rep *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// WriteText writes the report as human-readable text.
func WriteText(rep *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(rep)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(rep *RunReport) string {
	var b strings.Builder
	r := rep.Run

	b.WriteString("=== callrunner run report ===\n")
	b.WriteString(fmt.Sprintf("Run:       %s\n", r.RunID))
	b.WriteString(fmt.Sprintf("Generated: %s\n", rep.GeneratedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("Duration:  %s\n\n", rep.Duration))

	b.WriteString("Manifest:\n")
	b.WriteString(fmt.Sprintf("  Bucket: %s\n", r.Bucket))
	if r.Key != "" {
		b.WriteString(fmt.Sprintf("  Key:    %s\n", r.Key))
	}
	b.WriteString("\n")

	if r.Failed() {
		b.WriteString(fmt.Sprintf("FAILED: %s\n", r.Error))
		if len(r.AvailableFiles) > 0 {
			b.WriteString("Available files:\n")
			for _, f := range r.AvailableFiles {
				b.WriteString(fmt.Sprintf("  %s\n", f))
			}
		}
		return b.String()
	}

	b.WriteString("Target:\n")
	if r.Target.WorkgroupName != "" {
		b.WriteString(fmt.Sprintf("  Workgroup: %s\n", r.Target.WorkgroupName))
	} else {
		b.WriteString(fmt.Sprintf("  Cluster:   %s\n", r.Target.ClusterIdentifier))
	}
	b.WriteString(fmt.Sprintf("  Database:  %s\n\n", r.Target.Database))

	b.WriteString(fmt.Sprintf("Procedures: %d/%d finished\n", r.Successful(), len(r.Results)))
	for _, er := range r.Results {
		b.WriteString(fmt.Sprintf("  [%-8s] %d. %s", er.Status, er.ProcedureNumber, er.ProcedureName))
		if er.QueryID != "" {
			b.WriteString(fmt.Sprintf(" (%s)", er.QueryID))
		}
		b.WriteString("\n")
	}

	if len(rep.Problems) > 0 {
		b.WriteString("\nProblems:\n")
		for _, p := range rep.Problems {
			b.WriteString(fmt.Sprintf("  %d. %s: %s\n", p.ProcedureNumber, p.ProcedureName, p.Error))
		}
	}

	return b.String()
}
