package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/montanaflynn/stats"

	"genescore/domain/run"
	"genescore/domain/scoring"
	"genescore/internal/errors"
)

// DefaultAlpha is the FDR cut used to count significant cells
const DefaultAlpha = 0.05

// SetSummary condenses one set's rows
type SetSummary struct {
	Name         string
	SetSize      int
	Cells        int
	PoolSize     int
	Mode         scoring.SamplingMode
	Permutations int
	Frozen       int
	Median       float64
	Mean         float64
	Max          float64
	Significance bool
	Significant  int // cells with fdr < alpha
}

// Report describes a finished run for humans
type Report struct {
	Run      *run.Run
	Alpha    float64
	Sets     []SetSummary
	Failures []scoring.SetFailure
}

// Build summarises a completed run
func Build(rn *run.Run, alpha float64) (*Report, error) {
	if rn == nil || rn.Result == nil {
		return nil, errors.InvalidInput("report needs a completed run")
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	r := &Report{Run: rn, Alpha: alpha, Failures: rn.Result.Failures}
	for _, set := range rn.Result.Sets {
		s, err := summarize(set, alpha)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to summarise %s", set.Name)
		}
		r.Sets = append(r.Sets, s)
	}
	return r, nil
}

func summarize(res *scoring.SetResult, alpha float64) (SetSummary, error) {
	s := SetSummary{
		Name:         res.Name,
		SetSize:      res.SetSize,
		Cells:        len(res.Cells),
		PoolSize:     res.PoolSize,
		Mode:         res.Mode,
		Permutations: res.Permutations,
		Frozen:       res.Frozen,
		Significance: res.Significance,
	}
	if len(res.Cells) == 0 {
		return s, nil
	}

	scores := stats.Float64Data(res.Scores())
	var err error
	if s.Median, err = scores.Median(); err != nil {
		return s, err
	}
	if s.Mean, err = scores.Mean(); err != nil {
		return s, err
	}
	if s.Max, err = scores.Max(); err != nil {
		return s, err
	}

	if res.Significance {
		for _, c := range res.Cells {
			if c.FDR < alpha {
				s.Significant++
			}
		}
	}
	return s, nil
}

// Markdown renders the report as a markdown document
func (r *Report) Markdown() []byte {
	var b bytes.Buffer
	rn := r.Run
	p := rn.Params

	b.WriteString("# Gene set scores\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", rn.ID)
	if m := rn.Manifest; m != nil {
		layout := "dense"
		if m.Sparse {
			layout = "sparse"
		}
		fmt.Fprintf(&b, "- Source: %s (%d cells, %d genes, %s)\n", m.Source, m.CellCount, m.GeneCount, layout)
	}
	fmt.Fprintf(&b, "- Method: %s, permutations: %d, seed: %d\n", p.Method, p.Permutations, p.Seed)
	if p.NeighborMode == scoring.NeighborNone {
		b.WriteString("- Background: all genes\n")
	} else {
		fmt.Fprintf(&b, "- Background: %d neighbours by %s\n", p.Neighbors, p.NeighborMode)
	}
	if p.DropFrequency > 0 {
		fmt.Fprintf(&b, "- Early stopping: every %d permutations above p = %g\n", p.DropFrequency, p.DropThreshold)
	}
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n\n", rn.Fingerprint.Short())

	b.WriteString("## Sets\n\n")
	fmt.Fprintf(&b, "| Set | Genes | Cells | Pool | Mode | Permutations | Frozen | Median | Mean | Max | FDR < %g |\n", r.Alpha)
	b.WriteString("|---|---:|---:|---:|---|---:|---:|---:|---:|---:|---:|\n")
	for _, s := range r.Sets {
		significant := "-"
		if s.Significance {
			significant = fmt.Sprintf("%d", s.Significant)
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %s | %d | %d | %.4g | %.4g | %.4g | %s |\n",
			escapeCell(s.Name), s.SetSize, s.Cells, s.PoolSize, s.Mode, s.Permutations, s.Frozen,
			s.Median, s.Mean, s.Max, significant)
	}

	if len(r.Failures) > 0 {
		b.WriteString("\n## Failed sets\n\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Name, f.Error)
		}
	}
	return b.Bytes()
}

// HTML renders the report as a complete HTML page
func (r *Report) HTML() []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(r.Markdown())

	renderer := html.NewRenderer(html.RendererOptions{
		Title: "Gene set scores " + r.Run.ID.String(),
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

// Write saves the report to path: HTML when it ends in .html or .htm,
// markdown otherwise.
func (r *Report) Write(path string) error {
	body := r.Markdown()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		body = r.HTML()
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write report %s", path)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
