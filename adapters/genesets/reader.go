package genesets

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/internal"
	"genescore/internal/fileutil"
)

// Reader loads gene sets in gmt, gmx or grp format. A path may end in
// #name1,name2 to keep only the named sets.
type Reader struct {
	logger *internal.Logger
}

// NewReader creates a gene set reader
func NewReader(logger *internal.Logger) *Reader {
	return &Reader{logger: logger}
}

// ReadGeneSets implements ports.GeneSetReader
func (r *Reader) ReadGeneSets(ctx context.Context, path string) ([]dataset.GeneSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var only []string
	if i := strings.LastIndexByte(path, '#'); i >= 0 {
		only = splitNames(path[i+1:])
		path = path[:i]
	}

	base, ext := fileutil.SplitExt(path)
	var parse func(io.Reader) ([]dataset.GeneSet, error)
	switch ext {
	case "gmt":
		parse = parseGMT
	case "gmx":
		parse = parseGMX
	case "grp", "txt":
		parse = func(rd io.Reader) ([]dataset.GeneSet, error) { return parseGRP(rd, base) }
	default:
		return nil, core.NewConfigurationError("gene_sets", fmt.Sprintf("unknown gene set format %q", ext))
	}

	f, err := fileutil.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sets, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if only != nil {
		sets = keepNamed(sets, only)
	}
	r.logger.Info("read %d gene sets from %s", len(sets), path)
	return sets, nil
}

// parseGMT reads one set per line: name, description, then genes, all tab
// separated. Lines with fewer than three fields are skipped.
func parseGMT(r io.Reader) ([]dataset.GeneSet, error) {
	var sets []dataset.GeneSet
	err := eachLine(r, func(line string) {
		if line == "" || line[0] == '#' {
			return
		}
		tokens := strings.Split(line, "\t")
		if len(tokens) < 3 {
			return
		}
		desc := strings.TrimSpace(tokens[1])
		if desc == "BLANK" {
			desc = ""
		}
		sets = append(sets, dataset.GeneSet{
			Name:        strings.TrimSpace(tokens[0]),
			Description: desc,
			Genes:       nonEmpty(tokens[2:]),
		})
	})
	return sets, err
}

// parseGMX reads sets laid out as columns: names on the first row,
// descriptions on the second, members below.
func parseGMX(r io.Reader) ([]dataset.GeneSet, error) {
	var sets []dataset.GeneSet
	row := 0
	err := eachLine(r, func(line string) {
		tokens := strings.Split(line, "\t")
		switch row {
		case 0:
			for _, name := range tokens {
				sets = append(sets, dataset.GeneSet{Name: strings.TrimSpace(name)})
			}
		case 1:
			for j := 0; j < len(sets) && j < len(tokens); j++ {
				sets[j].Description = strings.TrimSpace(tokens[j])
			}
		default:
			for j := 0; j < len(sets) && j < len(tokens); j++ {
				if g := strings.TrimSpace(tokens[j]); g != "" {
					sets[j].Genes = append(sets[j].Genes, g)
				}
			}
		}
		row++
	})
	named := sets[:0]
	for _, s := range sets {
		if s.Name != "" {
			named = append(named, s)
		}
	}
	return named, err
}

// parseGRP reads a single set, one gene per line, named after the file
func parseGRP(r io.Reader, name string) ([]dataset.GeneSet, error) {
	set := dataset.GeneSet{Name: name}
	err := eachLine(r, func(line string) {
		if line == "" || line[0] == '#' {
			return
		}
		if g := strings.TrimSpace(line); g != "" {
			set.Genes = append(set.Genes, g)
		}
	})
	return []dataset.GeneSet{set}, err
}

// WriteGMT writes sets in gmt format
func WriteGMT(w io.Writer, sets []dataset.GeneSet) error {
	bw := bufio.NewWriter(w)
	for _, s := range sets {
		desc := s.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(bw, "%s\t%s\t%s\n", s.Name, desc, strings.Join(s.Genes, "\t"))
	}
	return bw.Flush()
}

func eachLine(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	for sc.Scan() {
		fn(strings.TrimRight(sc.Text(), "\r\n"))
	}
	return sc.Err()
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func splitNames(list string) []string {
	return nonEmpty(strings.Split(list, ","))
}

func keepNamed(sets []dataset.GeneSet, names []string) []dataset.GeneSet {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	kept := sets[:0]
	for _, s := range sets {
		if want[s.Name] {
			kept = append(kept, s)
		}
	}
	return kept
}
