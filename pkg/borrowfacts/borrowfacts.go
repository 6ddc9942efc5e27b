// Package borrowfacts loads borrow-checker input facts, shrinks their
// control-flow graph and hands the result on: to a fact store, to
// tab-separated files and to a Datalog program for the solver.
package borrowfacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dan-solli/borrowfacts/pkg/atom"
	"github.com/dan-solli/borrowfacts/pkg/facts"
	"github.com/dan-solli/borrowfacts/pkg/metrics"
	"github.com/dan-solli/borrowfacts/pkg/solver"
	"github.com/dan-solli/borrowfacts/pkg/store"
	"github.com/dan-solli/borrowfacts/pkg/tabdelim"
	"github.com/dan-solli/borrowfacts/pkg/trace"
)

var (
	// ErrPipelineClosed is returned by operations on a closed Pipeline.
	ErrPipelineClosed = errors.New("pipeline is closed")

	// ErrDuplicateOutputName is returned by ProcessAll when two directories
	// would write their output under the same name.
	ErrDuplicateOutputName = errors.New("duplicate output name")
)

// Config holds configuration for a Pipeline
type Config struct {
	// Path to the SQLite database. Empty keeps fact sets in memory only.
	DBPath string

	// database/sql driver for DBPath (default: "sqlite")
	DBDriver string

	// Skip the CFG simplification pass and pass facts through unchanged.
	SkipSimplify bool

	// Reuse a stored fact set when the source files hash to one already
	// processed, instead of loading them again.
	SkipProcessed bool

	// Write the resulting facts as <OutputDir>/<name>/<relation>.facts.
	OutputDir string

	// Write the resulting facts as a Mangle program <MangleOutput>/<name>.mg.
	MangleOutput string

	// Attach an OperationTrace to every Result.
	TraceEnabled bool

	// JSON Lines trace file. Only written in builds with the tracing tag.
	TracePath string

	// Collect Prometheus metrics in a fresh registry.
	MetricsEnabled bool

	// Number of fact sets processed in parallel by ProcessAll (default: 1)
	Jobs int
}

// Result describes one processed fact set. Stats is zero when Reused is
// set: no simplification ran.
type Result struct {
	FactSetID string          `json:"factSetId"`
	Name      string          `json:"name"`
	Dir       string          `json:"dir"`
	Reused    bool            `json:"reused,omitempty"`
	Stats     SimplifyStats   `json:"stats"`
	Counts    RelationCounts  `json:"counts"`
	Trace     *OperationTrace `json:"trace,omitempty"`
}

// Pipeline is the main entry point. Configure it with the With* methods
// before the first Process call; Process itself is safe for concurrent use
// on different directories.
type Pipeline struct {
	config    Config
	store     store.FactStore
	ownsStore bool
	logger    *slog.Logger
	metrics   metrics.Collector
	exporter  trace.Exporter

	loggedConfig bool

	mu     sync.Mutex
	closed bool
}

// New creates a Pipeline, opening the fact store and any configured
// trace exporter and metrics collector.
func New(cfg Config) (*Pipeline, error) {
	var fs store.FactStore
	if cfg.DBPath != "" {
		driver := cfg.DBDriver
		if driver == "" {
			driver = store.DefaultDriver
		}
		sqlStore, err := store.OpenSQLiteFactStore(driver, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open fact store: %w", err)
		}
		fs = sqlStore
	} else {
		fs = store.NewMemoryFactStore()
	}

	p, err := NewWithStore(cfg, fs)
	if err != nil {
		fs.Close()
		return nil, err
	}
	p.ownsStore = true
	return p, nil
}

// NewWithStore creates a Pipeline on top of an existing fact store. The
// caller keeps ownership of fs; Close does not close it.
func NewWithStore(cfg Config, fs store.FactStore) (*Pipeline, error) {
	if fs == nil {
		return nil, fmt.Errorf("fact store must not be nil")
	}

	// Apply defaults
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}

	p := &Pipeline{config: cfg, store: fs, metrics: metrics.NewNoopCollector()}

	if cfg.TracePath != "" {
		exp, err := trace.NewFileExporter(cfg.TracePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace exporter: %w", err)
		}
		p.exporter = exp
	}
	if cfg.MetricsEnabled {
		p.metrics = metrics.NewCollector()
	}

	return p, nil
}

// WithLogger sets the logger and returns the same Pipeline. A nil logger
// disables logging. The first call logs the effective configuration.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	if logger != nil && !p.loggedConfig {
		p.loggedConfig = true
		persistence := "memory"
		if p.config.DBPath != "" {
			persistence = "sqlite"
		}
		logger.Info("borrowfacts configured",
			slog.String("persistence", persistence),
			slog.Bool("simplify", !p.config.SkipSimplify),
			slog.Bool("skip_processed", p.config.SkipProcessed),
			slog.Bool("trace_enabled", p.config.TraceEnabled),
			slog.Bool("trace_export", trace.Enabled && p.config.TracePath != ""),
			slog.Bool("metrics_enabled", p.metricsEnabled()),
			slog.Int("jobs", p.config.Jobs),
		)
	}
	return p
}

// WithMetrics replaces the metrics collector. Nil disables metrics.
func (p *Pipeline) WithMetrics(c metrics.Collector) *Pipeline {
	if c == nil {
		c = metrics.NewNoopCollector()
	}
	p.metrics = c
	return p
}

func (p *Pipeline) metricsEnabled() bool {
	_, noop := p.metrics.(*metrics.NoopCollector)
	return !noop
}

// WithExporter replaces the trace exporter. Nil disables export. A
// previously configured exporter is not closed.
func (p *Pipeline) WithExporter(e trace.Exporter) *Pipeline {
	p.exporter = e
	return p
}

// Metrics returns the active collector. It is a *metrics.NoopCollector
// when metrics are disabled.
func (p *Pipeline) Metrics() metrics.Collector {
	return p.metrics
}

// Store returns the underlying fact store.
func (p *Pipeline) Store() store.FactStore {
	return p.store
}

// Close releases the trace exporter and, when New opened it, the fact store.
// Closing twice is a no-op.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.exporter != nil {
		if err := p.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close trace exporter: %w", err))
		}
	}
	if p.ownsStore {
		if err := p.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close fact store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) checkOpen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}
	return nil
}

// Process runs one facts directory through load, simplify, persist and
// export. The fact set is owned by this call from start to finish.
func (p *Pipeline) Process(ctx context.Context, dir string) (*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}

	start := time.Now()
	opID := uuid.New().String()
	tr := newTrace()
	timed := p.config.TraceEnabled || p.exporter != nil || p.metricsEnabled()
	res := &Result{Dir: dir, Name: factSetName(dir)}

	err := p.process(ctx, dir, res, tr, timed)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.finish(ctx, opID, start, status, err, res, tr)
	if p.config.TraceEnabled {
		res.Trace = tr
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, dir string, res *Result, tr *OperationTrace, timed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// load
	timer := newSpanTimer(SpanLoad, tr, timed)
	hash, err := tabdelim.HashDir(dir)
	if err != nil {
		err = &StageError{Stage: SpanLoad, Err: err}
		timer.finish(false, err, nil)
		return err
	}

	if p.config.SkipProcessed {
		set, err := p.findProcessed(ctx, hash)
		if err != nil {
			timer.finish(false, err, nil)
			return err
		}
		if set != nil {
			res.FactSetID = set.ID
			res.Reused = true
			res.Counts = set.Facts.Counts()
			timer.finish(true, nil, map[string]int64{"reused": 1})
			p.debug("reusing stored fact set", slog.String("dir", dir), slog.String("fact_set_id", set.ID))
			return p.exportStage(res, tr, timed, set.Tables, set.Facts)
		}
	}

	tables := atom.NewTables()
	f, err := tabdelim.Load(tables, dir)
	if err != nil {
		err = &StageError{Stage: SpanLoad, Err: err}
		timer.finish(false, err, nil)
		return err
	}
	timer.finish(true, nil, map[string]int64{
		"tuples": int64(f.Counts().Total()),
		"points": int64(tables.Points.Len()),
	})

	// simplify
	if !p.config.SkipSimplify {
		if err := ctx.Err(); err != nil {
			return err
		}
		timer = newSpanTimer(SpanSimplify, tr, timed)
		res.Stats = f.SimplifyCFG()
		timer.finish(true, nil, map[string]int64{
			"edgesBefore": int64(res.Stats.EdgesBefore),
			"edgesAfter":  int64(res.Stats.EdgesAfter),
			"chains":      int64(res.Stats.Chains),
			"collapses":   int64(res.Stats.Collapses),
			"skipped":     int64(res.Stats.Skipped),
		})
	} else {
		res.Stats = SimplifyStats{EdgesBefore: len(f.CFGEdge), EdgesAfter: len(f.CFGEdge)}
	}
	res.Counts = f.Counts()

	// persist
	timer = newSpanTimer(SpanPersist, tr, timed)
	set := &store.FactSet{
		Name:       res.Name,
		Source:     dir,
		SourceHash: hash,
		Simplified: !p.config.SkipSimplify,
		Tables:     tables,
		Facts:      f,
	}
	if err := p.store.SaveFactSet(ctx, set); err != nil {
		err = &StageError{Stage: SpanPersist, Err: err}
		timer.finish(false, err, nil)
		return err
	}
	res.FactSetID = set.ID
	timer.finish(true, nil, map[string]int64{"tuples": int64(res.Counts.Total())})

	return p.exportStage(res, tr, timed, tables, f)
}

func (p *Pipeline) exportStage(res *Result, tr *OperationTrace, timed bool, tables *atom.Tables, f *facts.Facts) error {
	if p.config.OutputDir == "" && p.config.MangleOutput == "" {
		return nil
	}
	timer := newSpanTimer(SpanExport, tr, timed)
	if err := p.export(res.Name, tables, f); err != nil {
		err = &StageError{Stage: SpanExport, Err: err}
		timer.finish(false, err, nil)
		return err
	}
	timer.finish(true, nil, nil)
	return nil
}

// findProcessed returns the stored fact set built from the same source files
// with the same simplification setting, or nil.
func (p *Pipeline) findProcessed(ctx context.Context, hash string) (*store.FactSet, error) {
	tracker, ok := p.store.(store.SourceTracker)
	if !ok {
		return nil, nil
	}
	prev, err := tracker.FindFactSetBySource(ctx, hash, !p.config.SkipSimplify)
	if err != nil {
		return nil, &StageError{Stage: SpanPersist, Err: err}
	}
	if prev == nil {
		return nil, nil
	}
	set, err := p.store.GetFactSet(ctx, prev.ID)
	if err != nil {
		return nil, &StageError{Stage: SpanPersist, Err: err}
	}
	return set, nil
}

func (p *Pipeline) export(name string, tables *atom.Tables, f *facts.Facts) error {
	if p.config.OutputDir != "" {
		if err := tabdelim.Write(tables, filepath.Join(p.config.OutputDir, name), f); err != nil {
			return err
		}
	}
	if p.config.MangleOutput != "" {
		if err := writeDatalogFile(filepath.Join(p.config.MangleOutput, name+".mg"), f); err != nil {
			return err
		}
	}
	return nil
}

func writeDatalogFile(path string, f *facts.Facts) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create mangle output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := solver.WriteDatalog(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// finish reports a finished Process call to the logger, metrics and the
// trace exporter.
func (p *Pipeline) finish(ctx context.Context, opID string, start time.Time, status string, err error, res *Result, tr *OperationTrace) {
	const operation = "process"
	durationMs := time.Since(start).Milliseconds()
	errType := ClassifyError(err)

	for _, span := range tr.Spans {
		p.metrics.RecordStage(ctx, operation, span.Name, span.DurationMs)
	}
	p.metrics.RecordOperation(ctx, operation, status, durationMs)
	if err != nil {
		p.metrics.RecordError(ctx, operation, errType)
	} else if !res.Reused {
		for relation, n := range res.Counts.ByRelation() {
			p.metrics.SetFactCount(ctx, relation, int64(n))
		}
		if !p.config.SkipSimplify {
			p.metrics.RecordSimplification(ctx, res.Stats.EdgesBefore, res.Stats.EdgesAfter, res.Stats.Collapses)
		}
	}

	if p.exporter != nil {
		ids := map[string]interface{}{"name": res.Name}
		if res.FactSetID != "" {
			ids["factSetId"] = res.FactSetID
		}
		record := tr.record(opID, operation, start, status, errType, ids)
		record.DurationMs = durationMs
		if exportErr := p.exporter.Export(ctx, record); exportErr != nil {
			p.warn("trace export failed", slog.String("error", exportErr.Error()))
		}
	}

	if p.logger == nil {
		return
	}
	for _, span := range tr.Spans {
		p.logger.Debug("stage complete",
			slog.String("dir", res.Dir),
			slog.String("stage", span.Name),
			slog.Int64("duration_ms", span.DurationMs),
			slog.Bool("ok", span.OK),
		)
	}
	if err != nil {
		p.logger.Error("fact set processing failed",
			slog.String("dir", res.Dir),
			slog.String("error_type", errType),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Info("fact set processed",
		slog.String("dir", res.Dir),
		slog.String("fact_set_id", res.FactSetID),
		slog.Bool("reused", res.Reused),
		slog.Int("edges_before", res.Stats.EdgesBefore),
		slog.Int("edges_after", res.Stats.EdgesAfter),
		slog.Int("chains", res.Stats.Chains),
		slog.Int("collapses", res.Stats.Collapses),
		slog.Int64("duration_ms", durationMs),
	)
}

// factSetName is the name a directory's fact set is stored and exported under.
func factSetName(dir string) string {
	return filepath.Base(filepath.Clean(dir))
}

// ProcessAll processes dirs with at most Config.Jobs running at once.
// Results are returned in the order of dirs; the entry of a directory that
// failed or never ran is nil. The first error cancels the remaining work
// and is returned.
//
// When output is configured, directories sharing a base name are rejected
// with ErrDuplicateOutputName before any of them is processed.
func (p *Pipeline) ProcessAll(ctx context.Context, dirs []string) ([]*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if p.config.OutputDir != "" || p.config.MangleOutput != "" {
		if err := checkOutputNames(dirs); err != nil {
			return nil, err
		}
	}

	results := make([]*Result, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Jobs)

	for i, dir := range dirs {
		g.Go(func() error {
			res, err := p.Process(gctx, dir)
			if err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			results[i] = res
			return nil
		})
	}

	err := g.Wait()
	return results, err
}

func checkOutputNames(dirs []string) error {
	seen := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		name := factSetName(dir)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s and %s both export as %q: %w", prev, dir, name, ErrDuplicateOutputName)
		}
		seen[name] = dir
	}
	return nil
}

// Report summarizes a facts directory without simplifying or storing it.
type Report struct {
	Dir           string         `json:"dir"`
	Counts        RelationCounts `json:"counts"`
	Points        int            `json:"points"`
	Regions       int            `json:"regions"`
	Loans         int            `json:"loans"`
	IsolatedEdges int            `json:"isolatedEdges"`
	Chains        int            `json:"chains"`
	LongestChain  int            `json:"longestChain"`
}

// Inspect loads dir and reports its size and chain structure.
func (p *Pipeline) Inspect(ctx context.Context, dir string) (*Report, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tables := atom.NewTables()
	f, err := tabdelim.Load(tables, dir)
	if err != nil {
		return nil, &StageError{Stage: SpanLoad, Err: err}
	}

	rep := &Report{
		Dir:           dir,
		Counts:        f.Counts(),
		Points:        tables.Points.Len(),
		Regions:       tables.Regions.Len(),
		Loans:         tables.Loans.Len(),
		IsolatedEdges: len(f.IsolatedEdges()),
	}
	for _, chain := range f.IsolatedChains() {
		rep.Chains++
		if len(chain) > rep.LongestChain {
			rep.LongestChain = len(chain)
		}
	}
	return rep, nil
}

// ListFactSets returns summaries of every stored fact set.
func (p *Pipeline) ListFactSets(ctx context.Context) ([]FactSetSummary, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	return p.store.ListFactSets(ctx)
}

// Checkout writes a stored fact set back out as relation files in dir.
// Returns ErrFactSetNotFound if id is unknown.
func (p *Pipeline) Checkout(ctx context.Context, id, dir string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	set, err := p.store.GetFactSet(ctx, id)
	if err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("%s: %w", id, ErrFactSetNotFound)
	}
	if err := tabdelim.Write(set.Tables, dir, set.Facts); err != nil {
		return &StageError{Stage: SpanExport, Err: err}
	}
	return nil
}

func (p *Pipeline) debug(msg string, attrs ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, attrs...)
	}
}

func (p *Pipeline) warn(msg string, attrs ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, attrs...)
	}
}
