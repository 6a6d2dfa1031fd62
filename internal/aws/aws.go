// Package aws adapts the AWS SDK v2 to the storage and warehouse ports and
// provides credential preflight checks.
package aws

import "context"

// Client defines the account-level AWS operations used by preflight checks.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckAccess(ctx context.Context, action, resource string) (bool, error)
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"user_id"`
}
