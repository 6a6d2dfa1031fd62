// Package warehouse defines the asynchronous statement execution port.
//
// A statement is submitted with ExecuteStatement, which returns an opaque
// query identifier immediately. Progress is observed with DescribeStatement
// until the status becomes terminal.
package warehouse

import "context"

// Status is the lifecycle state of a submitted statement.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPicked    Status = "PICKED"
	StatusStarted   Status = "STARTED"
	StatusFinished  Status = "FINISHED"
	StatusFailed    Status = "FAILED"
	StatusAborted   Status = "ABORTED"

	// Local outcomes, never reported by a warehouse.
	StatusTimeout Status = "TIMEOUT"
	StatusError   Status = "ERROR"
)

// Terminal reports whether no further transition can happen remotely.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// StatementInput is one execution request.
type StatementInput struct {
	ClusterIdentifier string `json:"cluster_identifier,omitempty"`
	WorkgroupName     string `json:"workgroup_name,omitempty"`
	SecretARN         string `json:"secret_arn,omitempty"`
	Database          string `json:"database"`
	DbUser            string `json:"db_user,omitempty"`
	SQL               string `json:"sql"`
}

// StatementStatus is the result of a describe call.
type StatementStatus struct {
	ID     string
	Status Status
	Error  string
}

// Warehouse submits statements and reports their status.
type Warehouse interface {
	ExecuteStatement(ctx context.Context, in StatementInput) (string, error)
	DescribeStatement(ctx context.Context, id string) (*StatementStatus, error)
	CancelStatement(ctx context.Context, id string) error
}
