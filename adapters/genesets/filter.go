package genesets

import (
	"bufio"
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/internal/fileutil"
)

// Filter keeps the sets listed in names, which is either a file with one
// name per line or a comma separated list. An empty list keeps every set;
// a filter that keeps nothing is an error.
func Filter(sets []dataset.GeneSet, names string) ([]dataset.GeneSet, error) {
	names = strings.TrimSpace(names)
	if names == "" {
		return sets, nil
	}

	var wanted []string
	if fileutil.Exists(names) {
		f, err := fileutil.Open(names)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if name := strings.TrimSpace(sc.Text()); name != "" {
				wanted = append(wanted, name)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
	} else {
		wanted = splitNames(names)
	}

	kept := keepNamed(append([]dataset.GeneSet(nil), sets...), wanted)
	if len(kept) == 0 {
		return nil, core.ErrNoGeneSets
	}
	return kept, nil
}

// SelectGeneSets implements ports.GeneSetSelector
func (r *Reader) SelectGeneSets(sets []dataset.GeneSet, filter string) ([]dataset.GeneSet, error) {
	kept, err := Filter(sets, filter)
	if err != nil {
		return nil, err
	}
	if len(kept) < len(sets) {
		r.logger.Debug("gene set filter kept %d of %d sets", len(kept), len(sets))
	}
	return kept, nil
}
