package runner

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/callrunner/callrunner/internal/warehouse"
)

// Request is the invocation event.
//
// StoredProcedureName and Parameters are accepted for compatibility with
// existing callers. They are logged but the manifest alone decides what runs.
type Request struct {
	StoredProcedureName string `json:"stored_procedure_name,omitempty"`
	Parameters          []any  `json:"parameters,omitempty"`
	ClusterIdentifier   string `json:"cluster_identifier,omitempty"`
	Database            string `json:"database,omitempty"`
	DbUser              string `json:"db_user,omitempty"`
}

// Response is the invocation result. Body holds JSON text.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// ExecutionResult is the record kept for one directive.
type ExecutionResult struct {
	ProcedureNumber int              `json:"procedure_number"`
	ProcedureName   string           `json:"procedure_name"`
	QueryID         string           `json:"query_id,omitempty"`
	Status          warehouse.Status `json:"status"`
	SQLExecuted     string           `json:"sql_executed,omitempty"`
	Error           string           `json:"error,omitempty"`

	Duration time.Duration `json:"-"`
}

// SuccessBody is the response body once the execution loop has run.
type SuccessBody struct {
	Message              string            `json:"message"`
	TotalProcedures      int               `json:"total_procedures"`
	SuccessfulProcedures int               `json:"successful_procedures"`
	ExecutionResults     []ExecutionResult `json:"execution_results"`
	S3Content            string            `json:"s3_content"`
}

// FailureBody is the response body when discovery or fetch failed.
type FailureBody struct {
	Error          string   `json:"error"`
	Bucket         string   `json:"bucket"`
	Key            string   `json:"key"`
	AvailableFiles []string `json:"available_files"`
}

// Target is the resolved cluster, database and user for a run.
type Target struct {
	ClusterIdentifier string `json:"cluster_identifier,omitempty"`
	WorkgroupName     string `json:"workgroup_name,omitempty"`
	SecretARN         string `json:"secret_arn,omitempty"`
	Database          string `json:"database"`
	DbUser            string `json:"db_user,omitempty"`
}

func (t Target) statement(sql string) warehouse.StatementInput {
	return warehouse.StatementInput{
		ClusterIdentifier: t.ClusterIdentifier,
		WorkgroupName:     t.WorkgroupName,
		SecretARN:         t.SecretARN,
		Database:          t.Database,
		DbUser:            t.DbUser,
		SQL:               sql,
	}
}

// Result is the full record of one invocation.
type Result struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Request    Request           `json:"request"`
	Target     Target            `json:"target"`
	Bucket     string            `json:"bucket"`
	Key        string            `json:"key"`
	Content    string            `json:"content,omitempty"`
	Results    []ExecutionResult `json:"execution_results"`

	// Set only when the run stopped before the execution loop.
	Error          string   `json:"error,omitempty"`
	AvailableFiles []string `json:"available_files,omitempty"`
}

// Failed reports whether the run stopped before the execution loop.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Successful counts directives that finished.
func (r *Result) Successful() int {
	n := 0
	for _, er := range r.Results {
		if er.Status == warehouse.StatusFinished {
			n++
		}
	}
	return n
}

// Succeeded reports whether every directive finished.
func (r *Result) Succeeded() bool {
	return !r.Failed() && r.Successful() == len(r.Results)
}

// StatusCode is 200 when every directive finished, else 500.
func (r *Result) StatusCode() int {
	if r.Succeeded() {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// Body builds the response body for r.
func (r *Result) Body() any {
	if r.Failed() {
		files := r.AvailableFiles
		if files == nil {
			files = []string{}
		}
		return FailureBody{
			Error:          r.Error,
			Bucket:         r.Bucket,
			Key:            r.Key,
			AvailableFiles: files,
		}
	}

	results := r.Results
	if results == nil {
		results = []ExecutionResult{}
	}
	msg := fmt.Sprintf("Executed %d stored procedures", len(results))
	if r.Succeeded() {
		msg += " successfully"
	} else {
		msg += " with some failures"
	}
	return SuccessBody{
		Message:              msg,
		TotalProcedures:      len(results),
		SuccessfulProcedures: r.Successful(),
		ExecutionResults:     results,
		S3Content:            r.Content,
	}
}

// Response encodes r into the statusCode/body envelope.
func (r *Result) Response() Response {
	body, err := json.Marshal(r.Body())
	if err != nil {
		body, _ = json.Marshal(FailureBody{Error: fmt.Sprintf("encoding response: %v", err), Bucket: r.Bucket, Key: r.Key, AvailableFiles: []string{}})
		return Response{StatusCode: http.StatusInternalServerError, Body: string(body)}
	}
	return Response{StatusCode: r.StatusCode(), Body: string(body)}
}
