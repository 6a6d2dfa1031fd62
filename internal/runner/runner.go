// Package runner executes the stored procedures listed in a manifest.
//
// A run moves through DISCOVER, FETCH, EXECUTE and AGGREGATE. Failures in the
// first two phases stop the run and produce a failure body with a listing of
// nearby files. Inside the execution loop every directive is attempted and
// its own outcome recorded, whatever happened to the previous ones.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callrunner/callrunner/internal/directive"
	"github.com/callrunner/callrunner/internal/execution"
	"github.com/callrunner/callrunner/internal/manifest"
	"github.com/callrunner/callrunner/internal/storage"
	"github.com/callrunner/callrunner/internal/warehouse"
)

// Fallbacks used when neither the request nor configuration names a target.
const (
	DefaultClusterIdentifier = "daab-redshift-cluster-jr-bedrock"
	DefaultDatabase          = "dev"
	DefaultDbUser            = "awsuser"

	DefaultListingPrefix         = "Redshift/"
	DefaultListingMaxKeys        = 10
	DefaultFailureListingMaxKeys = 20
)

// Config holds the per-process settings of a Runner.
type Config struct {
	Locator manifest.Locator
	Target  Target
	Mode    directive.Mode

	ListingPrefix         string
	ListingMaxKeys        int
	FailureListingMaxKeys int
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, result *Result) error
}

// Runner wires the object store, the directive normalizer and the executor.
type Runner struct {
	store    storage.ObjectStore
	executor *execution.Executor
	cfg      Config
	observer Observer
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers progress callbacks.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRecorder stores every finished run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner. Zero values in cfg are replaced by defaults.
func New(store storage.ObjectStore, exec *execution.Executor, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		executor: exec,
		cfg:      withDefaults(cfg),
		observer: NopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func withDefaults(cfg Config) Config {
	if cfg.Locator.Bucket == "" {
		cfg.Locator.Bucket = manifest.DefaultBucket
	}
	if cfg.Locator.Prefix == "" {
		cfg.Locator.Prefix = manifest.DefaultPrefix
	}
	if cfg.Locator.Suffix == "" {
		cfg.Locator.Suffix = manifest.DefaultSuffix
	}
	if cfg.Locator.Policy == "" {
		cfg.Locator.Policy = manifest.SelectFirst
	}
	if cfg.Mode == "" {
		cfg.Mode = directive.ModeTextual
	}
	if cfg.ListingPrefix == "" {
		cfg.ListingPrefix = DefaultListingPrefix
	}
	if cfg.ListingMaxKeys <= 0 {
		cfg.ListingMaxKeys = DefaultListingMaxKeys
	}
	if cfg.FailureListingMaxKeys <= 0 {
		cfg.FailureListingMaxKeys = DefaultFailureListingMaxKeys
	}
	return cfg
}

// Locator returns the manifest location this runner searches.
func (r *Runner) Locator() manifest.Locator {
	return r.cfg.Locator
}

// Invoke runs req and encodes the result as a statusCode/body response.
func (r *Runner) Invoke(ctx context.Context, req Request) Response {
	result, _ := r.Run(ctx, req)
	return result.Response()
}

// Run executes every directive of the selected manifest. The returned error
// is non-nil only when discovery or fetch failed; the Result is always set.
// A cancelled ctx does not stop the run: every directive is still attempted
// and each wait ends only on a terminal status or the wait budget.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Request:   req,
		Target:    r.resolveTarget(req),
		Bucket:    r.cfg.Locator.Bucket,
	}
	log := r.logger.With("run_id", result.RunID)
	log.Info("received event", "request", req)
	if req.StoredProcedureName != "" || len(req.Parameters) > 0 {
		log.Info("procedure hint and parameters are not applied; the manifest decides what runs",
			"stored_procedure_name", req.StoredProcedureName, "parameters", len(req.Parameters))
	}

	m, err := r.load(ctx, result, log)
	if err != nil {
		result.Error = err.Error()
		result.AvailableFiles = manifest.ListNearby(ctx, r.store, r.cfg.Locator.Bucket,
			r.cfg.ListingPrefix, r.cfg.FailureListingMaxKeys, log)
		r.finish(ctx, result, log)
		return result, err
	}

	r.observer.OnPhase(result.RunID, PhaseExecute)
	total := len(m.Directives)
	result.Results = make([]ExecutionResult, 0, total)
	for i, line := range m.Directives {
		er := r.runDirective(ctx, result.RunID, i+1, total, line, result.Target, log)
		result.Results = append(result.Results, er)
		r.observer.OnDirectiveDone(result.RunID, total, er)
	}

	r.finish(ctx, result, log)
	return result, nil
}

// Preview discovers and fetches the manifest and normalizes its directives
// without executing anything.
func (r *Runner) Preview(ctx context.Context) (*manifest.Manifest, []directive.Directive, []error, error) {
	obj, err := manifest.Discover(ctx, r.store, r.cfg.Locator)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := manifest.Fetch(ctx, r.store, r.cfg.Locator.Bucket, obj.Key)
	if err != nil {
		return nil, nil, nil, err
	}

	directives := make([]directive.Directive, len(m.Directives))
	errs := make([]error, len(m.Directives))
	for i, line := range m.Directives {
		directives[i], errs[i] = r.cfg.Mode.Normalize(line)
		if errs[i] != nil {
			directives[i].Raw = line
		}
	}
	return m, directives, errs, nil
}

// Nearby lists keys under the diagnostic listing prefix.
func (r *Runner) Nearby(ctx context.Context, maxKeys int) []string {
	if maxKeys <= 0 {
		maxKeys = r.cfg.ListingMaxKeys
	}
	return manifest.ListNearby(ctx, r.store, r.cfg.Locator.Bucket, r.cfg.ListingPrefix, maxKeys, r.logger)
}

func (r *Runner) load(ctx context.Context, result *Result, log *slog.Logger) (*manifest.Manifest, error) {
	r.observer.OnPhase(result.RunID, PhaseDiscover)
	obj, err := manifest.Discover(ctx, r.store, r.cfg.Locator)
	if err != nil {
		log.Error("manifest discovery failed", "bucket", r.cfg.Locator.Bucket, "prefix", r.cfg.Locator.Prefix, "error", err)
		return nil, err
	}
	result.Key = obj.Key
	log.Info("using manifest", "bucket", r.cfg.Locator.Bucket, "key", obj.Key, "policy", r.cfg.Locator.Policy)

	r.observer.OnPhase(result.RunID, PhaseFetch)
	nearby := manifest.ListNearby(ctx, r.store, r.cfg.Locator.Bucket, r.cfg.ListingPrefix, r.cfg.ListingMaxKeys, log)
	log.Debug("files near manifest", "prefix", r.cfg.ListingPrefix, "files", nearby)

	m, err := manifest.Fetch(ctx, r.store, r.cfg.Locator.Bucket, obj.Key)
	if err != nil {
		log.Error("manifest fetch failed", "bucket", r.cfg.Locator.Bucket, "key", obj.Key, "error", err)
		return nil, err
	}
	result.Content = m.Content
	log.Info("read manifest", "key", obj.Key, "directives", len(m.Directives), "preview", preview(m.Content, 100))
	return m, nil
}

// runDirective never panics and never returns an error; every failure ends
// up in the record's status.
func (r *Runner) runDirective(ctx context.Context, runID string, number, total int, line string, target Target, log *slog.Logger) (er ExecutionResult) {
	er = ExecutionResult{ProcedureNumber: number, ProcedureName: line}

	defer func() {
		if p := recover(); p != nil {
			log.Error("directive panicked", "procedure_number", number, "panic", p)
			er.Status = warehouse.StatusError
			er.Error = fmt.Sprintf("panic: %v", p)
			er.ProcedureName = line
		}
	}()

	d, err := r.cfg.Mode.Normalize(line)
	if err != nil {
		log.Warn("directive rejected", "procedure_number", number, "line", line, "error", err)
		r.observer.OnDirectiveStart(runID, number, total, directive.Directive{Raw: line, ProcedureName: line})
		er.Status = warehouse.StatusError
		er.Error = err.Error()
		return er
	}
	r.observer.OnDirectiveStart(runID, number, total, d)
	log.Info("executing procedure", "procedure_number", number, "procedure", d.ProcedureName, "sql", d.Statement)

	er.SQLExecuted = d.Statement
	out := r.executor.Run(ctx, target.statement(d.Statement))
	er.QueryID = out.QueryID
	er.Status = out.Status
	er.Error = out.Error
	er.Duration = out.Duration
	if out.Status != warehouse.StatusError {
		er.ProcedureName = d.ProcedureName
	}

	log.Info("procedure completed", "procedure_number", number, "procedure", er.ProcedureName,
		"query_id", out.QueryID, "status", out.Status, "duration", out.Duration)
	return er
}

func (r *Runner) finish(ctx context.Context, result *Result, log *slog.Logger) {
	r.observer.OnPhase(result.RunID, PhaseAggregate)
	result.FinishedAt = r.now()

	if result.Failed() {
		log.Error("run failed before execution", "error", result.Error, "available_files", result.AvailableFiles)
	} else {
		log.Info("run finished", "total", len(result.Results), "successful", result.Successful(),
			"status_code", result.StatusCode(), "elapsed", result.FinishedAt.Sub(result.StartedAt))
	}

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, result); err != nil {
			log.Warn("recording run history failed", "error", err)
		}
	}
	r.observer.OnRunDone(result)
}

// resolveTarget picks each field from the request, then configuration,
// then the built-in defaults.
func (r *Runner) resolveTarget(req Request) Target {
	t := r.cfg.Target
	t.ClusterIdentifier = firstNonEmpty(req.ClusterIdentifier, t.ClusterIdentifier, fallbackCluster(t))
	t.Database = firstNonEmpty(req.Database, t.Database, DefaultDatabase)
	t.DbUser = firstNonEmpty(req.DbUser, t.DbUser, fallbackUser(t))
	return t
}

// Serverless workgroups and secret-based auth take no cluster or user.
func fallbackCluster(t Target) string {
	if t.WorkgroupName != "" {
		return ""
	}
	return DefaultClusterIdentifier
}

func fallbackUser(t Target) string {
	if t.WorkgroupName != "" || t.SecretARN != "" {
		return ""
	}
	return DefaultDbUser
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
