package app

import (
	"context"
	"regexp"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/internal/errors"
	"genescore/internal/fileutil"
)

// FilterCells restricts the dataset to the cells selected by filter. When
// filter names an existing file it is read as a gene set file and the
// members of its first set are the cell ids to keep; otherwise filter is a
// regular expression matched against cell ids.
func (s *ScoreService) FilterCells(ctx context.Context, d *dataset.Dataset, filter string) (*dataset.Dataset, error) {
	var keep func(id string) bool

	if fileutil.Exists(filter) {
		sets, err := s.geneSets.ReadGeneSets(ctx, filter)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read cell filter %s", filter)
		}
		if len(sets) == 0 {
			return nil, core.NewConfigurationError("cell_filter", "file "+filter+" lists no cells")
		}
		ids := make(map[string]struct{}, len(sets[0].Genes))
		for _, id := range sets[0].Genes {
			ids[id] = struct{}{}
		}
		keep = func(id string) bool {
			_, ok := ids[id]
			return ok
		}
	} else {
		re, err := regexp.Compile(filter)
		if err != nil {
			return nil, core.NewConfigurationError("cell_filter", err.Error())
		}
		keep = re.MatchString
	}

	var rows []int
	for i, id := range d.CellIDs {
		if keep(id) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, core.NewConfigurationError("cell_filter", "no cells matched "+filter)
	}
	s.logger.Info("cell filter kept %d of %d cells", len(rows), d.CellCount())
	if len(rows) == d.CellCount() {
		return d, nil
	}
	return d.SelectCells(rows)
}
