package engine

import (
	"context"
	stderrors "errors"

	"golang.org/x/sync/errgroup"

	"genescore/domain/dataset"
	"genescore/domain/scoring"
	"genescore/internal/errors"
	"genescore/internal/significance"
)

// ScoreGeneSets scores every column against the dataset. Sets run
// concurrently and share the worker budget; results keep the input order.
// A set that fails is logged and reported in Failures while the others
// carry on. The returned error is reserved for problems that affect every
// set: invalid parameters, an invalid dataset, or cancellation.
func (e *Engine) ScoreGeneSets(ctx context.Context, d *dataset.Dataset, cols []dataset.GeneSetColumn, params scoring.Params) (*scoring.BatchResult, error) {
	prep, err := e.prepare(d, &params)
	if err != nil {
		return nil, err
	}

	results := make([]*scoring.SetResult, len(cols))
	failures := make([]error, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(prep.workers, max(len(cols), 1)))
	for i, col := range cols {
		g.Go(func() error {
			res, err := e.scoreSet(gctx, d, prep, col, params)
			if err != nil {
				if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
					return err
				}
				failures[i] = errors.Wrapf(err, "gene set %s", col.Name)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &scoring.BatchResult{GlobalFDR: params.GlobalFDR && params.Significance()}
	for i, col := range cols {
		if failures[i] != nil {
			e.logger.Warn("%v", failures[i])
			e.observer.SetFailed(col.Name, failures[i])
			batch.Failures = append(batch.Failures, scoring.SetFailure{Name: col.Name, Error: failures[i].Error()})
			continue
		}
		e.observer.SetScored(results[i])
		batch.Sets = append(batch.Sets, results[i])
	}
	if batch.GlobalFDR {
		applyGlobalFDR(batch)
	}
	e.logger.Info("scored %d of %d gene sets", len(batch.Sets), len(cols))
	return batch, nil
}

// applyGlobalFDR adjusts the p-values of all (set, cell) rows together
func applyGlobalFDR(b *scoring.BatchResult) {
	var pvals []float64
	for _, s := range b.Sets {
		for _, c := range s.Cells {
			pvals = append(pvals, c.PValue)
		}
	}
	fdr := significance.BenjaminiHochberg(pvals)
	i := 0
	for _, s := range b.Sets {
		for j := range s.Cells {
			v := fdr[i]
			s.Cells[j].GlobalFDR = &v
			i++
		}
	}
}
