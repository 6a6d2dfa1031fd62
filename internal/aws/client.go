package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// RealClient implements Client using the AWS SDK v2.
type RealClient struct {
	stsClient *sts.Client
	iamClient *iam.Client
}

// NewRealClient creates a Client from a loaded SDK config.
func NewRealClient(cfg aws.Config) *RealClient {
	return &RealClient{
		stsClient: sts.NewFromConfig(cfg),
		iamClient: iam.NewFromConfig(cfg),
	}
}

// VerifyCredentials checks the current AWS credentials using STS.
func (c *RealClient) VerifyCredentials(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}

	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckAccess simulates the caller's IAM policies for one action.
func (c *RealClient) CheckAccess(ctx context.Context, action, resource string) (bool, error) {
	identity, err := c.VerifyCredentials(ctx)
	if err != nil {
		return false, err
	}

	out, err := c.iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(identity.ARN),
		ActionNames:     []string{action},
		ResourceArns:    []string{resource},
	})
	if err != nil {
		return false, fmt.Errorf("simulating %s: %w", action, err)
	}

	for _, result := range out.EvaluationResults {
		if result.EvalDecision == "allowed" {
			return true, nil
		}
	}
	return false, nil
}
