package warehouse

import (
	"context"
	"errors"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusSubmitted, false},
		{StatusPicked, false},
		{StatusStarted, false},
		{StatusFinished, true},
		{StatusFailed, true},
		{StatusAborted, true},
		{StatusTimeout, false},
		{StatusError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestMockWarehouse_ScriptRepeatsLastStatus(t *testing.T) {
	m := NewMockWarehouse()
	m.Script["CALL a();"] = []Status{StatusSubmitted, StatusStarted, StatusFailed}
	m.Errors["CALL a();"] = "division by zero"

	id, err := m.ExecuteStatement(context.Background(), StatementInput{SQL: "CALL a();"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Status{StatusSubmitted, StatusStarted, StatusFailed, StatusFailed}
	for i, w := range want {
		st, err := m.DescribeStatement(context.Background(), id)
		if err != nil {
			t.Fatalf("describe %d: %v", i, err)
		}
		if st.Status != w {
			t.Errorf("describe %d: status = %s, want %s", i, st.Status, w)
		}
	}

	st, _ := m.DescribeStatement(context.Background(), id)
	if st.Error != "division by zero" {
		t.Errorf("Error = %q, want %q", st.Error, "division by zero")
	}
}

func TestMockWarehouse_ExecuteErr(t *testing.T) {
	m := NewMockWarehouse()
	m.ExecuteErr["CALL bad();"] = errors.New("ValidationException")

	if _, err := m.ExecuteStatement(context.Background(), StatementInput{SQL: "CALL bad();"}); err == nil {
		t.Fatal("expected error")
	}
	if len(m.Executed) != 1 {
		t.Errorf("Executed = %d, want 1", len(m.Executed))
	}
}
