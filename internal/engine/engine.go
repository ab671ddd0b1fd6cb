package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/scoring"
	"genescore/internal"
	"genescore/internal/errors"
	"genescore/internal/significance"
	"genescore/ports"
)

// subsetsPerWorker sizes a permutation batch relative to the worker count
const subsetsPerWorker = 8

// Engine scores gene sets and estimates their per-cell significance by
// adaptive permutation.
type Engine struct {
	rng      ports.RNGPort
	logger   *internal.Logger
	observer Observer
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *internal.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver sets the observer notified of progress
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates an engine drawing random subsets from rng
func New(rng ports.RNGPort, opts ...Option) *Engine {
	e := &Engine{rng: rng, logger: internal.Nop(), observer: NopObserver{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// prepared holds what every set of one call shares
type prepared struct {
	scorer  *Scorer
	matcher *BackgroundMatcher
	sem     *semaphore.Weighted
	workers int
}

func (e *Engine) prepare(d *dataset.Dataset, params *scoring.Params) (*prepared, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if d == nil {
		return nil, core.NewDataShapeError("no dataset")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	scorer, err := NewScorer(params.Method, d.Matrix)
	if err != nil {
		return nil, err
	}
	workers := params.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &prepared{
		scorer:  scorer,
		workers: workers,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
	if params.Significance() {
		p.matcher = NewBackgroundMatcher(d.Matrix, params.NeighborMode, params.Neighbors)
	}
	return p, nil
}

// ScoreGeneSet scores one gene set against the dataset.
func (e *Engine) ScoreGeneSet(ctx context.Context, d *dataset.Dataset, col dataset.GeneSetColumn, params scoring.Params) (*scoring.SetResult, error) {
	prep, err := e.prepare(d, &params)
	if err != nil {
		return nil, errors.Wrapf(err, "gene set %s", col.Name)
	}
	res, err := e.scoreSet(ctx, d, prep, col, params)
	if err != nil {
		e.observer.SetFailed(col.Name, err)
		return nil, errors.Wrapf(err, "gene set %s", col.Name)
	}
	e.observer.SetScored(res)
	return res, nil
}

func (e *Engine) scoreSet(ctx context.Context, d *dataset.Dataset, prep *prepared, col dataset.GeneSetColumn, params scoring.Params) (*scoring.SetResult, error) {
	start := time.Now()
	if len(col.Members) != d.GeneCount() {
		return nil, core.NewDataShapeError("membership has %d entries for %d genes", len(col.Members), d.GeneCount())
	}
	genes := col.Indices()
	if len(genes) == 0 {
		return nil, core.ErrEmptyGeneSet
	}

	cells := d.CellCount()
	observed := prep.scorer.Score(genes)
	res := &scoring.SetResult{
		Name:         col.Name,
		Description:  col.Description,
		SetSize:      len(genes),
		Mode:         scoring.SamplingNone,
		Significance: params.Significance(),
		WithBounds:   params.DropFrequency > 0,
		Cells:        make([]scoring.CellResult, cells),
	}
	for i := range res.Cells {
		res.Cells[i] = scoring.CellResult{CellID: d.CellIDs[i], Score: observed[i], PValue: 1, FDR: 1}
	}
	if !params.Significance() {
		res.Duration = time.Since(start)
		e.logger.Info("scored set %s: %d cells, no permutations", col.Name, cells)
		return res, nil
	}

	pool := prep.matcher.Pool(genes)
	src, err := e.rng.Stream(ctx, col.Name, params.Seed)
	if err != nil {
		return nil, err
	}
	sampler := NewSubsetSampler(pool, len(genes), params.Permutations, src)
	res.Mode = sampler.Mode()
	res.PoolSize = len(pool)
	e.logger.Debug("set %s: %d genes, pool of %d, %s sampling of %d subsets",
		col.Name, len(genes), len(pool), res.Mode, sampler.Total())

	states := make([]cellState, cells)
	for i := range states {
		states[i] = cellState{observed: observed[i], active: true}
	}
	active := dataset.AllRows(cells)
	stopper := NewStoppingController(params.DropFrequency, params.DropThreshold, params.Confidence)
	perm := newPermuter(prep, cells, len(genes), observed)

	for len(active) > 0 && sampler.Drawn() < sampler.Total() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := prep.workers * subsetsPerWorker
		if u := stopper.UntilCheckpoint(sampler.Drawn()); u > 0 && u < batch {
			batch = u
		}
		subsets := perm.draw(sampler, batch)
		if len(subsets) == 0 {
			break
		}
		if err := perm.run(ctx, subsets, states, active); err != nil {
			return nil, err
		}
		e.observer.Permutations(len(subsets))

		if stopper.IsCheckpoint(sampler.Drawn()) {
			var frozen int
			active, frozen = stopper.Checkpoint(states, active)
			res.Frozen += frozen
			e.logger.Trace("set %s: checkpoint at %d permutations froze %d cells, %d active",
				col.Name, sampler.Drawn(), frozen, len(active))
		}
	}
	res.Permutations = sampler.Drawn()

	k := make([]int, cells)
	n := make([]int, cells)
	lower := make([]float64, cells)
	for i, st := range states {
		k[i], n[i], lower[i] = st.k, st.n, st.lower
	}
	summary := significance.Aggregate(k, n, significance.Options{
		Smooth:     params.Smooth,
		Bounds:     res.WithBounds,
		Confidence: params.Confidence,
		Lower:      lower,
	})
	for i := range res.Cells {
		c := &res.Cells[i]
		c.K, c.N = k[i], n[i]
		c.PValue = summary.PValues[i]
		c.FDR = summary.FDR[i]
		if res.WithBounds {
			c.Bounds = &scoring.CellBounds{
				PValueCI: summary.Lower[i],
				FDRLow:   summary.FDRLow[i],
				FDRHigh:  summary.FDRHigh[i],
			}
		}
	}
	res.Duration = time.Since(start)
	e.logger.Info("scored set %s: %d cells, pool %d, %s, %d permutations, %d frozen in %s",
		col.Name, cells, res.PoolSize, res.Mode, res.Permutations, res.Frozen, res.Duration.Round(time.Millisecond))
	return res, nil
}

// permuter evaluates batches of null subsets across workers. Each worker
// counts exceedances into its own buffer; buffers are merged after the
// batch so no worker sees another's partial counts.
type permuter struct {
	scorer   *Scorer
	sem      *semaphore.Weighted
	observed []float64
	scratch  []workerScratch
	subsets  [][]int
}

type workerScratch struct {
	scores []float64
	acc    []float64
	delta  []int
}

func newPermuter(prep *prepared, cells, setSize int, observed []float64) *permuter {
	p := &permuter{
		scorer:   prep.scorer,
		sem:      prep.sem,
		observed: observed,
		scratch:  make([]workerScratch, prep.workers),
		subsets:  make([][]int, prep.workers*subsetsPerWorker),
	}
	for i := range p.scratch {
		p.scratch[i] = workerScratch{
			scores: make([]float64, cells),
			acc:    make([]float64, cells),
			delta:  make([]int, cells),
		}
	}
	for i := range p.subsets {
		p.subsets[i] = make([]int, setSize)
	}
	return p
}

// draw takes up to n subsets from the sampler, in order
func (p *permuter) draw(s *SubsetSampler, n int) [][]int {
	if n > len(p.subsets) {
		n = len(p.subsets)
	}
	for i := 0; i < n; i++ {
		if !s.Next(p.subsets[i]) {
			return p.subsets[:i]
		}
	}
	return p.subsets[:n]
}

func (p *permuter) run(ctx context.Context, subsets [][]int, states []cellState, active []int) error {
	workers := len(p.scratch)
	if workers > len(subsets) {
		workers = len(subsets)
	}
	chunk := (len(subsets) + workers - 1) / workers

	var wg sync.WaitGroup
	used := 0
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= len(subsets) {
			break
		}
		hi := min(lo+chunk, len(subsets))
		if err := p.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		used++
		wg.Add(1)
		go func(sc *workerScratch, part [][]int) {
			defer wg.Done()
			defer p.sem.Release(1)
			for _, r := range active {
				sc.delta[r] = 0
			}
			for _, genes := range part {
				p.scorer.ScoreInto(sc.scores, sc.acc, genes, active)
				for _, r := range active {
					if sc.scores[r] >= p.observed[r] {
						sc.delta[r]++
					}
				}
			}
		}(&p.scratch[w], subsets[lo:hi])
	}
	wg.Wait()

	for _, r := range active {
		st := &states[r]
		for w := 0; w < used; w++ {
			st.k += p.scratch[w].delta[r]
		}
		st.n += len(subsets)
	}
	return nil
}
