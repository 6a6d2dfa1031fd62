package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/execution"
	"github.com/callrunner/callrunner/internal/manifest"
	"github.com/callrunner/callrunner/internal/storage"
	"github.com/callrunner/callrunner/internal/warehouse"
)

const manifestKey = "Redshift/Rel_2024.txt"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(store storage.ObjectStore, wh warehouse.Warehouse, cfg Config, opts ...Option) *Runner {
	exec := execution.New(wh,
		execution.WithPollInterval(time.Millisecond),
		execution.WithMaxWait(50*time.Millisecond),
		execution.WithLogger(quietLogger()),
	)
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(store, exec, cfg, opts...)
}

func storeWith(content string) *storage.MockStore {
	store := storage.NewMockStore()
	store.Put("Redshift/README.md", []byte("notes"))
	store.Put(manifestKey, []byte(content))
	return store
}

func decodeSuccess(t *testing.T, resp Response) SuccessBody {
	t.Helper()
	var body SuccessBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decoding body: %v\n%s", err, resp.Body)
	}
	return body
}

func decodeFailure(t *testing.T, resp Response) FailureBody {
	t.Helper()
	var body FailureBody
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decoding body: %v\n%s", err, resp.Body)
	}
	return body
}

func TestInvoke_AllFinished(t *testing.T) {
	content := "CALL etl.load_orders(1,2)\n\n  stage.refresh()  \r\nreport.rebuild\n"
	store := storeWith(content)
	wh := warehouse.NewMockWarehouse()

	resp := newTestRunner(store, wh, Config{}).Invoke(context.Background(), Request{})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200\n%s", resp.StatusCode, resp.Body)
	}
	body := decodeSuccess(t, resp)
	if body.Message != "Executed 3 stored procedures successfully" {
		t.Errorf("Message = %q", body.Message)
	}
	if body.TotalProcedures != 3 || body.SuccessfulProcedures != 3 {
		t.Errorf("counts = %d/%d, want 3/3", body.SuccessfulProcedures, body.TotalProcedures)
	}
	if body.S3Content != strings.TrimSpace(content) {
		t.Errorf("S3Content = %q", body.S3Content)
	}

	want := []struct {
		name string
		sql  string
	}{
		{"etl.load_orders", "CALL etl.load_orders(1,2);"},
		{"stage.refresh", "CALL stage.refresh();"},
		{"report.rebuild", "CALL report.rebuild();"},
	}
	for i, er := range body.ExecutionResults {
		if er.ProcedureNumber != i+1 {
			t.Errorf("result %d: ProcedureNumber = %d", i, er.ProcedureNumber)
		}
		if er.ProcedureName != want[i].name {
			t.Errorf("result %d: ProcedureName = %q, want %q", i, er.ProcedureName, want[i].name)
		}
		if er.SQLExecuted != want[i].sql {
			t.Errorf("result %d: SQLExecuted = %q, want %q", i, er.SQLExecuted, want[i].sql)
		}
		if er.QueryID == "" {
			t.Errorf("result %d: missing query id", i)
		}
		if er.Error != "" {
			t.Errorf("result %d: unexpected error %q", i, er.Error)
		}
	}

	if len(wh.Executed) != 3 {
		t.Fatalf("Executed = %d statements, want 3", len(wh.Executed))
	}
	in := wh.Executed[0]
	if in.ClusterIdentifier != DefaultClusterIdentifier || in.Database != DefaultDatabase || in.DbUser != DefaultDbUser {
		t.Errorf("target = %+v, want built-in defaults", in)
	}
}

func TestInvoke_ResultCountMatchesLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"single", "a", 1},
		{"blank lines", "\n\na\n\n\nb\n", 2},
		{"crlf", "a\r\nb\r\nc\r\n", 3},
		{"whitespace only lines", "a\n   \n\t\nb", 2},
		{"empty manifest", "   \n", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := newTestRunner(storeWith(tt.content), warehouse.NewMockWarehouse(), Config{}).
				Invoke(context.Background(), Request{})

			body := decodeSuccess(t, resp)
			if len(body.ExecutionResults) != tt.want {
				t.Fatalf("results = %d, want %d", len(body.ExecutionResults), tt.want)
			}
			for i, er := range body.ExecutionResults {
				if er.ProcedureNumber != i+1 {
					t.Errorf("ProcedureNumber[%d] = %d", i, er.ProcedureNumber)
				}
			}
		})
	}
}

func TestInvoke_PartialFailure(t *testing.T) {
	store := storeWith("a\nb\nc\nd")
	wh := warehouse.NewMockWarehouse()
	wh.Script["CALL b();"] = []warehouse.Status{warehouse.StatusStarted, warehouse.StatusFailed}
	wh.Errors["CALL b();"] = "division by zero"
	wh.Script["CALL c();"] = []warehouse.Status{warehouse.StatusStarted}
	wh.Script["CALL d();"] = []warehouse.Status{warehouse.StatusAborted}

	resp := newTestRunner(store, wh, Config{}).Invoke(context.Background(), Request{})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", resp.StatusCode)
	}
	body := decodeSuccess(t, resp)
	if body.Message != "Executed 4 stored procedures with some failures" {
		t.Errorf("Message = %q", body.Message)
	}
	if body.SuccessfulProcedures != 1 {
		t.Errorf("SuccessfulProcedures = %d, want 1", body.SuccessfulProcedures)
	}

	want := []struct {
		status warehouse.Status
		err    string
	}{
		{warehouse.StatusFinished, ""},
		{warehouse.StatusFailed, "division by zero"},
		{warehouse.StatusTimeout, "no terminal status"},
		{warehouse.StatusAborted, "Unknown error"},
	}
	for i, w := range want {
		er := body.ExecutionResults[i]
		if er.Status != w.status {
			t.Errorf("result %d: Status = %s, want %s", i+1, er.Status, w.status)
		}
		if w.err == "" && er.Error != "" {
			t.Errorf("result %d: unexpected error %q", i+1, er.Error)
		}
		if w.err != "" && !strings.Contains(er.Error, w.err) {
			t.Errorf("result %d: Error = %q, want %q", i+1, er.Error, w.err)
		}
	}
}

// panickingWarehouse panics when asked to run one particular statement.
type panickingWarehouse struct {
	*warehouse.MockWarehouse
	sql string
}

func (p *panickingWarehouse) ExecuteStatement(ctx context.Context, in warehouse.StatementInput) (string, error) {
	if in.SQL == p.sql {
		panic("driver exploded")
	}
	return p.MockWarehouse.ExecuteStatement(ctx, in)
}

func TestInvoke_FaultOnSecondDirective(t *testing.T) {
	tests := []struct {
		name    string
		wh      func() warehouse.Warehouse
		wantErr string
	}{
		{
			name: "submission error",
			wh: func() warehouse.Warehouse {
				wh := warehouse.NewMockWarehouse()
				wh.ExecuteErr["CALL two();"] = errors.New("ValidationException: procedure does not exist")
				return wh
			},
			wantErr: "procedure does not exist",
		},
		{
			name: "panic",
			wh: func() warehouse.Warehouse {
				return &panickingWarehouse{MockWarehouse: warehouse.NewMockWarehouse(), sql: "CALL two();"}
			},
			wantErr: "driver exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storeWith("one\ntwo\nthree")
			resp := newTestRunner(store, tt.wh(), Config{}).Invoke(context.Background(), Request{})

			if resp.StatusCode != http.StatusInternalServerError {
				t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
			}
			body := decodeSuccess(t, resp)
			if len(body.ExecutionResults) != 3 {
				t.Fatalf("results = %d, want 3", len(body.ExecutionResults))
			}
			if body.ExecutionResults[0].Status != warehouse.StatusFinished {
				t.Errorf("directive 1 Status = %s, want FINISHED", body.ExecutionResults[0].Status)
			}
			second := body.ExecutionResults[1]
			if second.Status != warehouse.StatusError {
				t.Errorf("directive 2 Status = %s, want ERROR", second.Status)
			}
			if second.ProcedureName != "two" {
				t.Errorf("directive 2 ProcedureName = %q, want raw line", second.ProcedureName)
			}
			if !strings.Contains(second.Error, tt.wantErr) {
				t.Errorf("directive 2 Error = %q, want %q", second.Error, tt.wantErr)
			}
			if body.ExecutionResults[2].Status != warehouse.StatusFinished {
				t.Errorf("directive 3 Status = %s, want FINISHED", body.ExecutionResults[2].Status)
			}
		})
	}
}

func TestInvoke_StrictModeRejectsLine(t *testing.T) {
	store := storeWith("good(1)\nbad('x\nalso_good")
	wh := warehouse.NewMockWarehouse()

	resp := newTestRunner(store, wh, Config{Mode: directive.ModeStrict}).Invoke(context.Background(), Request{})

	body := decodeSuccess(t, resp)
	bad := body.ExecutionResults[1]
	if bad.Status != warehouse.StatusError {
		t.Errorf("Status = %s, want ERROR", bad.Status)
	}
	if bad.SQLExecuted != "" || bad.QueryID != "" {
		t.Errorf("rejected line should not be submitted: %+v", bad)
	}
	if len(wh.Executed) != 2 {
		t.Errorf("Executed = %d, want 2", len(wh.Executed))
	}
}

func TestRun_CallerCancellationDoesNotCutRunShort(t *testing.T) {
	store := storeWith("slow_proc()\nnext_proc()")
	wh := warehouse.NewMockWarehouse()
	wh.Script["CALL slow_proc();"] = []warehouse.Status{warehouse.StatusStarted}

	exec := execution.New(wh,
		execution.WithPollInterval(5*time.Millisecond),
		execution.WithMaxWait(200*time.Millisecond),
		execution.WithLogger(quietLogger()),
	)
	r := New(store, exec, Config{}, WithLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result, err := r.Run(ctx, Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if got := result.Results[0]; got.Status != warehouse.StatusTimeout {
		t.Errorf("#1 status = %s (error %q), want TIMEOUT", got.Status, got.Error)
	}
	if got := result.Results[1]; got.Status != warehouse.StatusFinished {
		t.Errorf("#2 status = %s (error %q), want FINISHED", got.Status, got.Error)
	}
	if len(wh.Executed) != 2 {
		t.Errorf("submitted %d statements, want 2", len(wh.Executed))
	}
}

func TestInvoke_NoObjectsUnderPrefix(t *testing.T) {
	store := storage.NewMockStore()
	store.Put("Redshift/other.csv", []byte("x"))
	store.Put("Redshift/notes.md", []byte("y"))
	wh := warehouse.NewMockWarehouse()

	resp := newTestRunner(store, wh, Config{}).Invoke(context.Background(), Request{})

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d, want 500", resp.StatusCode)
	}
	body := decodeFailure(t, resp)
	if !strings.Contains(body.Error, "Redshift/Rel") {
		t.Errorf("Error = %q, want the searched prefix", body.Error)
	}
	if body.Bucket != manifest.DefaultBucket {
		t.Errorf("Bucket = %q", body.Bucket)
	}
	if body.Key != "" {
		t.Errorf("Key = %q, want empty", body.Key)
	}
	if len(body.AvailableFiles) != 2 {
		t.Errorf("AvailableFiles = %v, want both nearby files", body.AvailableFiles)
	}
	if len(wh.Executed) != 0 {
		t.Errorf("no statement should run, got %d", len(wh.Executed))
	}
}

func TestInvoke_ListingFailsDuringFailure(t *testing.T) {
	store := storage.NewMockStore()
	store.FailListing("Redshift/", errors.New("AccessDenied"))

	resp := newTestRunner(store, warehouse.NewMockWarehouse(), Config{}).Invoke(context.Background(), Request{})

	body := decodeFailure(t, resp)
	if len(body.AvailableFiles) != 1 || body.AvailableFiles[0] != manifest.UnlistedPlaceholder {
		t.Errorf("AvailableFiles = %v, want placeholder", body.AvailableFiles)
	}
}

func TestRun_FetchFailure(t *testing.T) {
	store := storage.NewMockStore()
	store.Put(manifestKey, []byte{0xff, 0xfe, 'a'})

	result, err := newTestRunner(store, warehouse.NewMockWarehouse(), Config{}).Run(context.Background(), Request{})

	var fe *manifest.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *manifest.FetchError", err)
	}
	if result.Key != manifestKey {
		t.Errorf("Key = %q, want %q", result.Key, manifestKey)
	}
	if result.Response().StatusCode != http.StatusInternalServerError {
		t.Error("fetch failure should map to 500")
	}
}

func TestRun_DiagnosticListingFailureIsIgnored(t *testing.T) {
	store := storeWith("a")
	store.FailListing("Redshift/", errors.New("throttled"))

	result, err := newTestRunner(store, warehouse.NewMockWarehouse(), Config{}).Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Succeeded() {
		t.Error("run should succeed despite listing failure")
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  Target
		req  Request
		want Target
	}{
		{
			name: "built-in defaults",
			want: Target{ClusterIdentifier: DefaultClusterIdentifier, Database: DefaultDatabase, DbUser: DefaultDbUser},
		},
		{
			name: "configuration",
			cfg:  Target{ClusterIdentifier: "prod", Database: "analytics", DbUser: "etl"},
			want: Target{ClusterIdentifier: "prod", Database: "analytics", DbUser: "etl"},
		},
		{
			name: "request wins",
			cfg:  Target{ClusterIdentifier: "prod", Database: "analytics", DbUser: "etl"},
			req:  Request{ClusterIdentifier: "adhoc", DbUser: "me"},
			want: Target{ClusterIdentifier: "adhoc", Database: "analytics", DbUser: "me"},
		},
		{
			name: "serverless workgroup",
			cfg:  Target{WorkgroupName: "wg", SecretARN: "arn:secret"},
			want: Target{WorkgroupName: "wg", SecretARN: "arn:secret", Database: DefaultDatabase},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(storage.NewMockStore(), warehouse.NewMockWarehouse(), Config{Target: tt.cfg})
			if got := r.resolveTarget(tt.req); got != tt.want {
				t.Errorf("resolveTarget() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInvoke_HintAndParametersIgnored(t *testing.T) {
	store := storeWith("a")
	wh := warehouse.NewMockWarehouse()
	req := Request{StoredProcedureName: "something_else", Parameters: []any{1, "x"}}

	newTestRunner(store, wh, Config{}).Invoke(context.Background(), req)

	if len(wh.Executed) != 1 || wh.Executed[0].SQL != "CALL a();" {
		t.Errorf("Executed = %+v, want only the manifest statement", wh.Executed)
	}
}

type recordingObserver struct {
	NopObserver
	phases []Phase
	starts []int
	dones  []int
	final  *Result
}

func (o *recordingObserver) OnPhase(_ string, p Phase) { o.phases = append(o.phases, p) }
func (o *recordingObserver) OnDirectiveStart(_ string, n, _ int, _ directive.Directive) {
	o.starts = append(o.starts, n)
}
func (o *recordingObserver) OnDirectiveDone(_ string, _ int, er ExecutionResult) {
	o.dones = append(o.dones, er.ProcedureNumber)
}
func (o *recordingObserver) OnRunDone(r *Result) { o.final = r }

type fakeRecorder struct {
	runs []*Result
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, r *Result) error {
	f.runs = append(f.runs, r)
	return f.err
}

func TestRun_ObserverAndRecorder(t *testing.T) {
	obs := &recordingObserver{}
	rec := &fakeRecorder{err: errors.New("redis down")}
	r := newTestRunner(storeWith("a\nb"), warehouse.NewMockWarehouse(), Config{},
		WithObserver(Observers{obs}), WithRecorder(rec))

	result, err := r.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPhases := []Phase{PhaseDiscover, PhaseFetch, PhaseExecute, PhaseAggregate}
	if len(obs.phases) != len(wantPhases) {
		t.Fatalf("phases = %v, want %v", obs.phases, wantPhases)
	}
	for i := range wantPhases {
		if obs.phases[i] != wantPhases[i] {
			t.Errorf("phase %d = %s, want %s", i, obs.phases[i], wantPhases[i])
		}
	}
	if len(obs.starts) != 2 || len(obs.dones) != 2 {
		t.Errorf("starts=%v dones=%v", obs.starts, obs.dones)
	}
	if obs.final != result {
		t.Error("OnRunDone should receive the run result")
	}
	if len(rec.runs) != 1 || rec.runs[0].RunID != result.RunID {
		t.Error("recorder should receive the run even if it fails to store it")
	}
	if result.RunID == "" {
		t.Error("RunID should be set")
	}
}

func TestPreview(t *testing.T) {
	r := newTestRunner(storeWith("CALL a(1)\nb"), warehouse.NewMockWarehouse(), Config{})

	m, directives, errs, err := r.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if m.Key != manifestKey {
		t.Errorf("Key = %q", m.Key)
	}
	if len(directives) != 2 || directives[1].Statement != "CALL b();" {
		t.Errorf("directives = %+v", directives)
	}
	for i, e := range errs {
		if e != nil {
			t.Errorf("errs[%d] = %v", i, e)
		}
	}
}
