package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/redshiftdata"
	rstypes "github.com/aws/aws-sdk-go-v2/service/redshiftdata/types"

	"github.com/callrunner/callrunner/internal/warehouse"
)

type fakeRedshiftData struct {
	executed  *redshiftdata.ExecuteStatementInput
	status    rstypes.StatusString
	errDetail string
	cancelled bool
	execErr   error
}

func (f *fakeRedshiftData) ExecuteStatement(_ context.Context, in *redshiftdata.ExecuteStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.ExecuteStatementOutput, error) {
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.executed = in
	return &redshiftdata.ExecuteStatementOutput{Id: aws.String("d9b6c0c9-0747-4bf4-b142-e8883122f766")}, nil
}

func (f *fakeRedshiftData) DescribeStatement(_ context.Context, in *redshiftdata.DescribeStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.DescribeStatementOutput, error) {
	out := &redshiftdata.DescribeStatementOutput{Id: in.Id, Status: f.status}
	if f.errDetail != "" {
		out.Error = aws.String(f.errDetail)
	}
	return out, nil
}

func (f *fakeRedshiftData) CancelStatement(_ context.Context, _ *redshiftdata.CancelStatementInput, _ ...func(*redshiftdata.Options)) (*redshiftdata.CancelStatementOutput, error) {
	return &redshiftdata.CancelStatementOutput{Status: aws.Bool(f.cancelled)}, nil
}

func TestRedshiftData_ExecuteStatement(t *testing.T) {
	tests := []struct {
		name        string
		in          warehouse.StatementInput
		wantCluster *string
		wantUser    *string
		wantWG      *string
	}{
		{
			name:        "provisioned cluster",
			in:          warehouse.StatementInput{ClusterIdentifier: "analytics", Database: "dev", DbUser: "awsuser", SQL: "CALL a();"},
			wantCluster: aws.String("analytics"),
			wantUser:    aws.String("awsuser"),
		},
		{
			name:   "serverless workgroup",
			in:     warehouse.StatementInput{WorkgroupName: "wg", Database: "dev", SQL: "CALL a();"},
			wantWG: aws.String("wg"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeRedshiftData{}
			id, err := NewRedshiftData(api).ExecuteStatement(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("ExecuteStatement: %v", err)
			}
			if id == "" {
				t.Error("expected statement id")
			}
			got := api.executed
			if aws.ToString(got.Sql) != tt.in.SQL || aws.ToString(got.Database) != "dev" {
				t.Errorf("input = %+v", got)
			}
			if aws.ToString(got.ClusterIdentifier) != aws.ToString(tt.wantCluster) || (got.ClusterIdentifier == nil) != (tt.wantCluster == nil) {
				t.Errorf("ClusterIdentifier = %v, want %v", got.ClusterIdentifier, tt.wantCluster)
			}
			if (got.DbUser == nil) != (tt.wantUser == nil) {
				t.Errorf("DbUser = %v, want %v", got.DbUser, tt.wantUser)
			}
			if (got.WorkgroupName == nil) != (tt.wantWG == nil) {
				t.Errorf("WorkgroupName = %v, want %v", got.WorkgroupName, tt.wantWG)
			}
		})
	}
}

func TestRedshiftData_ExecuteError(t *testing.T) {
	api := &fakeRedshiftData{execErr: errors.New("ValidationException")}
	if _, err := NewRedshiftData(api).ExecuteStatement(context.Background(), warehouse.StatementInput{SQL: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedshiftData_DescribeStatement(t *testing.T) {
	api := &fakeRedshiftData{status: rstypes.StatusStringFailed, errDetail: "ERROR: permission denied"}

	st, err := NewRedshiftData(api).DescribeStatement(context.Background(), "q1")
	if err != nil {
		t.Fatalf("DescribeStatement: %v", err)
	}
	if st.Status != warehouse.StatusFailed {
		t.Errorf("Status = %s, want FAILED", st.Status)
	}
	if !st.Status.Terminal() {
		t.Error("FAILED should be terminal")
	}
	if st.Error != "ERROR: permission denied" {
		t.Errorf("Error = %q", st.Error)
	}
}

func TestRedshiftData_CancelStatement(t *testing.T) {
	if err := NewRedshiftData(&fakeRedshiftData{cancelled: true}).CancelStatement(context.Background(), "q1"); err != nil {
		t.Errorf("CancelStatement: %v", err)
	}
	if err := NewRedshiftData(&fakeRedshiftData{}).CancelStatement(context.Background(), "q1"); err == nil {
		t.Error("expected error when the service does not cancel")
	}
}
