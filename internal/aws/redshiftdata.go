package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"

	"github.com/callrunner/callrunner/internal/warehouse"
)

// statementName tags submitted statements so they are easy to find in the
// Redshift console and in ListStatements output.
const statementName = "callrunner"

// RedshiftDataAPI is the subset of the Redshift Data API client used here.
type RedshiftDataAPI interface {
	ExecuteStatement(ctx context.Context, params *redshiftdata.ExecuteStatementInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error)
	DescribeStatement(ctx context.Context, params *redshiftdata.DescribeStatementInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error)
	CancelStatement(ctx context.Context, params *redshiftdata.CancelStatementInput, optFns ...func(*redshiftdata.Options)) (*redshiftdata.CancelStatementOutput, error)
}

// RedshiftData implements warehouse.Warehouse on the Redshift Data API.
type RedshiftData struct {
	api RedshiftDataAPI
}

// NewRedshiftData wraps a Redshift Data API client.
func NewRedshiftData(api RedshiftDataAPI) *RedshiftData {
	return &RedshiftData{api: api}
}

// NewRedshiftDataFromConfig builds the client from cfg.
func NewRedshiftDataFromConfig(cfg aws.Config) *RedshiftData {
	return NewRedshiftData(redshiftdata.NewFromConfig(cfg))
}

func (r *RedshiftData) ExecuteStatement(ctx context.Context, in warehouse.StatementInput) (string, error) {
	out, err := r.api.ExecuteStatement(ctx, &redshiftdata.ExecuteStatementInput{
		Sql:               aws.String(in.SQL),
		Database:          aws.String(in.Database),
		ClusterIdentifier: optional(in.ClusterIdentifier),
		WorkgroupName:     optional(in.WorkgroupName),
		DbUser:            optional(in.DbUser),
		SecretArn:         optional(in.SecretARN),
		StatementName:     aws.String(statementName),
	})
	if err != nil {
		return "", fmt.Errorf("executing statement: %w", err)
	}
	return aws.ToString(out.Id), nil
}

func (r *RedshiftData) DescribeStatement(ctx context.Context, id string) (*warehouse.StatementStatus, error) {
	out, err := r.api.DescribeStatement(ctx, &redshiftdata.DescribeStatementInput{Id: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("describing statement %s: %w", id, err)
	}
	return &warehouse.StatementStatus{
		ID:     id,
		Status: warehouse.Status(out.Status),
		Error:  aws.ToString(out.Error),
	}, nil
}

func (r *RedshiftData) CancelStatement(ctx context.Context, id string) error {
	out, err := r.api.CancelStatement(ctx, &redshiftdata.CancelStatementInput{Id: aws.String(id)})
	if err != nil {
		return fmt.Errorf("cancelling statement %s: %w", id, err)
	}
	if !aws.ToBool(out.Status) {
		return fmt.Errorf("cancelling statement %s: not cancelled", id)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}
