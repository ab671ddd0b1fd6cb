package app

import (
	"context"
	"sync/atomic"
	"time"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/run"
	"genescore/domain/scoring"
	"genescore/internal"
	"genescore/internal/engine"
	"genescore/internal/errors"
	"genescore/internal/report"
	"genescore/ports"
)

// ScoreService runs the batch pipeline: load, filter, align, score, write
// and optionally persist and report.
type ScoreService struct {
	rng      ports.RNGPort
	matrices ports.MatrixReader
	geneSets ports.GeneSetSource
	repo     ports.ScoreRepository
	observer engine.Observer
	logger   *internal.Logger
}

// ServiceOption configures a ScoreService
type ServiceOption func(*ScoreService)

// WithRepository stores every run; without one runs are not persisted
func WithRepository(repo ports.ScoreRepository) ServiceOption {
	return func(s *ScoreService) { s.repo = repo }
}

// WithObserver adds an observer notified by every run, typically metrics
func WithObserver(o engine.Observer) ServiceOption {
	return func(s *ScoreService) { s.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *internal.Logger) ServiceOption {
	return func(s *ScoreService) { s.logger = l }
}

// NewScoreService creates the scoring pipeline
func NewScoreService(rng ports.RNGPort, matrices ports.MatrixReader, geneSets ports.GeneSetSource, opts ...ServiceOption) *ScoreService {
	s := &ScoreService{
		rng:      rng,
		matrices: matrices,
		geneSets: geneSets,
		observer: engine.NopObserver{},
		logger:   internal.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Persistent reports whether runs are stored
func (s *ScoreService) Persistent() bool { return s.repo != nil }

// ScoreRequest describes one file-based scoring job
type ScoreRequest struct {
	MatrixPath    string
	GeneSetsPath  string
	CellFilter    string // file of cell ids or a regular expression
	GeneSetFilter string // file of set names or a comma separated list
	Params        scoring.Params

	OutPrefix  string
	Writer     ports.ResultWriter // nil writes nothing
	ReportPath string             // .html renders HTML, anything else markdown
	Progress   bool
}

// ScoreOutcome is what a file-based job produced
type ScoreOutcome struct {
	Run   *run.Run
	Files []string
}

// Run executes a file-based job end to end
func (s *ScoreService) Run(ctx context.Context, req ScoreRequest) (*ScoreOutcome, error) {
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	d, err := s.matrices.ReadMatrix(ctx, req.MatrixPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load matrix %s", req.MatrixPath)
	}
	s.logger.Info("loaded %s: %d cells, %d genes in %v", req.MatrixPath, d.CellCount(), d.GeneCount(), time.Since(start).Round(time.Millisecond))

	if req.CellFilter != "" {
		if d, err = s.FilterCells(ctx, d, req.CellFilter); err != nil {
			return nil, err
		}
	}

	sets, err := s.geneSets.ReadGeneSets(ctx, req.GeneSetsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load gene sets %s", req.GeneSetsPath)
	}
	if req.GeneSetFilter != "" {
		if sets, err = s.geneSets.SelectGeneSets(sets, req.GeneSetFilter); err != nil {
			return nil, err
		}
	}

	var obs engine.Observer
	if req.Progress {
		obs = newProgressLogger(s.logger, len(sets))
	}
	rn, err := s.ScoreDataset(ctx, req.MatrixPath, d, sets, req.Params, obs)
	if err != nil {
		return nil, err
	}

	out := &ScoreOutcome{Run: rn}
	if req.Writer != nil {
		for _, set := range rn.Result.Sets {
			path, err := req.Writer.WriteSet(ctx, req.OutPrefix, set)
			if err != nil {
				return out, errors.Wrapf(err, "failed to write results for %s", set.Name)
			}
			out.Files = append(out.Files, path)
		}
	}

	if req.ReportPath != "" {
		r, err := report.Build(rn, report.DefaultAlpha)
		if err != nil {
			return out, err
		}
		if err := r.Write(req.ReportPath); err != nil {
			return out, err
		}
		out.Files = append(out.Files, req.ReportPath)
	}
	return out, nil
}

// ScoreDataset aligns sets with the dataset, scores them and stores the
// run when a repository is configured. obs, when non-nil, is notified in
// addition to the service observer. The returned run is failed, not nil,
// when scoring or persistence went wrong after the run started.
func (s *ScoreService) ScoreDataset(ctx context.Context, source string, d *dataset.Dataset, sets []dataset.GeneSet, params scoring.Params, obs engine.Observer) (*run.Run, error) {
	return s.scoreRun(ctx, run.New(dataset.NewManifest(source, d), params), d, sets, obs)
}

// StartRun creates the run record for d without scoring it, so callers can
// hand out the id before the work finishes. Finish it with CompleteRun.
func (s *ScoreService) StartRun(source string, d *dataset.Dataset, params scoring.Params) *run.Run {
	return run.New(dataset.NewManifest(source, d), params)
}

// CompleteRun scores a run created by StartRun
func (s *ScoreService) CompleteRun(ctx context.Context, rn *run.Run, d *dataset.Dataset, sets []dataset.GeneSet, obs engine.Observer) error {
	_, err := s.scoreRun(ctx, rn, d, sets, obs)
	return err
}

func (s *ScoreService) scoreRun(ctx context.Context, rn *run.Run, d *dataset.Dataset, sets []dataset.GeneSet, obs engine.Observer) (*run.Run, error) {
	cols, err := dataset.AlignGeneSets(sets, d.GeneIDs)
	if err != nil {
		return s.fail(ctx, rn, err)
	}

	observer := s.observer
	if obs != nil {
		observer = engine.Observers{s.observer, obs}
	}
	eng := engine.New(s.rng, engine.WithLogger(s.logger), engine.WithObserver(observer))

	start := time.Now()
	batch, err := eng.ScoreGeneSets(ctx, d, cols, rn.Params)
	if err != nil {
		return s.fail(ctx, rn, err)
	}
	rn.Complete(batch)
	s.logger.Info("run %s (%s): %d sets, %d rows, %d failed in %v", rn.ID, rn.Fingerprint.Short(), len(batch.Sets), batch.Rows(), len(batch.Failures), time.Since(start).Round(time.Millisecond))

	if err := s.save(ctx, rn); err != nil {
		return rn, err
	}
	return rn, nil
}

func (s *ScoreService) fail(ctx context.Context, rn *run.Run, cause error) (*run.Run, error) {
	rn.Fail(cause)
	if err := s.save(ctx, rn); err != nil {
		s.logger.Warn("failed to store failed run %s: %v", rn.ID, err)
	}
	return rn, cause
}

func (s *ScoreService) save(ctx context.Context, rn *run.Run) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveRun(ctx, rn); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "failed to store run %s", rn.ID))
	}
	s.logger.Debug("stored run %s", rn.ID)
	return nil
}

// GetRun loads a stored run
func (s *ScoreService) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if s.repo == nil {
		return nil, errors.NotFound("run storage")
	}
	runID, err := core.ParseRunID(id)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, err)
	}
	return s.repo.GetRun(ctx, runID)
}

// ListRuns lists stored runs, newest first
func (s *ScoreService) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	if s.repo == nil {
		return nil, errors.NotFound("run storage")
	}
	return s.repo.ListRuns(ctx, limit)
}

// progressLogger logs each finished set at INFO
type progressLogger struct {
	logger *internal.Logger
	total  int
	done   atomic.Int64
}

func newProgressLogger(l *internal.Logger, total int) *progressLogger {
	return &progressLogger{logger: l, total: total}
}

func (p *progressLogger) SetScored(res *scoring.SetResult) {
	n := p.done.Add(1)
	p.logger.Info("[%d/%d] %s: %d genes, %s sampling, %d permutations, %d cells frozen",
		n, p.total, res.Name, res.SetSize, res.Mode, res.Permutations, res.Frozen)
}

func (p *progressLogger) SetFailed(name string, err error) {
	n := p.done.Add(1)
	p.logger.Warn("[%d/%d] %s failed: %v", n, p.total, name, err)
}

func (p *progressLogger) Permutations(int) {}
