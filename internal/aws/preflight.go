package aws

import (
	"context"
	"fmt"
	"strings"
)

// AccessCheck is the outcome of one simulated IAM action.
type AccessCheck struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Allowed  bool   `json:"allowed"`
	Error    string `json:"error,omitempty"`
}

// PreflightResult holds the identity and the permission checks for a run.
type PreflightResult struct {
	Identity *CallerIdentity `json:"identity"`
	Checks   []AccessCheck   `json:"checks"`
	Message  string          `json:"message"`
}

// Ready reports whether every action is allowed.
func (r *PreflightResult) Ready() bool {
	for _, c := range r.Checks {
		if !c.Allowed {
			return false
		}
	}
	return true
}

// PreflightTarget names the resources a run touches.
type PreflightTarget struct {
	Bucket            string
	Prefix            string
	ClusterIdentifier string
	WorkgroupName     string
}

// RequiredActions lists the IAM actions needed to run a manifest.
func RequiredActions(t PreflightTarget) []AccessCheck {
	warehouseARN := "arn:aws:redshift:*:*:cluster:" + t.ClusterIdentifier
	if t.WorkgroupName != "" {
		warehouseARN = "arn:aws:redshift-serverless:*:*:workgroup/*"
	}
	return []AccessCheck{
		{Action: "s3:ListBucket", Resource: "arn:aws:s3:::" + t.Bucket},
		{Action: "s3:GetObject", Resource: fmt.Sprintf("arn:aws:s3:::%s/%s*", t.Bucket, t.Prefix)},
		{Action: "redshift-data:ExecuteStatement", Resource: warehouseARN},
		{Action: "redshift-data:DescribeStatement", Resource: "*"},
		{Action: "redshift-data:CancelStatement", Resource: "*"},
	}
}

// RunPreflight verifies credentials and simulates every required action.
// Only a credential failure is returned as an error; denied or unverifiable
// actions are reported in the result.
func RunPreflight(ctx context.Context, client Client, t PreflightTarget) (*PreflightResult, error) {
	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	result := &PreflightResult{Identity: identity, Checks: RequiredActions(t)}
	var denied []string
	for i := range result.Checks {
		c := &result.Checks[i]
		c.Allowed, err = client.CheckAccess(ctx, c.Action, c.Resource)
		if err != nil {
			c.Error = err.Error()
		}
		if !c.Allowed {
			denied = append(denied, c.Action)
		}
	}

	if len(denied) == 0 {
		result.Message = fmt.Sprintf("%s can run manifests from s3://%s/%s.", identity.ARN, t.Bucket, t.Prefix)
	} else {
		result.Message = fmt.Sprintf("Not allowed: %s. Check IAM permissions.", strings.Join(denied, ", "))
	}
	return result, nil
}
